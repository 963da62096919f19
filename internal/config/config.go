// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var ErrAdminTokenUnset = errors.New("config: admin_token must be set")

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Timer    TimerConfig    `mapstructure:"timer"`
	Session  SessionConfig  `mapstructure:"session"`
}

// ServerConfig holds HTTP/WebSocket listener configuration.
type ServerConfig struct {
	Port       int      `mapstructure:"port"`
	CORSOrigin []string `mapstructure:"cors_origin"`
	AdminToken string   `mapstructure:"admin_token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

// GameConfig holds table rules.
type GameConfig struct {
	StartingStack   int64 `mapstructure:"starting_stack"`
	SmallBlind      int64 `mapstructure:"small_blind"`
	BigBlind        int64 `mapstructure:"big_blind"`
	NumSeats        int   `mapstructure:"num_seats"`
	MinBuyIn        int64 `mapstructure:"min_buyin"`
	MaxBuyIn        int64 `mapstructure:"max_buyin"`
	RatholeWindowMs int64 `mapstructure:"rathole_window_ms"`
}

// TimerConfig holds the action-timer and sit-out timings.
type TimerConfig struct {
	BaseActionMs        int64 `mapstructure:"base_action_ms"`
	DefaultTimeBankMs   int64 `mapstructure:"default_time_bank_ms"`
	TimeBankCapMs       int64 `mapstructure:"time_bank_cap_ms"`
	TimeBankGrowthMs    int64 `mapstructure:"time_bank_growth_ms"`
	TimeBankGrowthHands int   `mapstructure:"time_bank_growth_hands"`
	SitOutKickMs        int64 `mapstructure:"sit_out_kick_ms"`
	DisconnectGraceMs   int64 `mapstructure:"disconnect_grace_ms"`
	ReconnectSwapMs     int64 `mapstructure:"reconnect_swap_grace_ms"`
}

// SessionConfig holds authentication lifetimes.
type SessionConfig struct {
	ChallengeTTLSeconds int64 `mapstructure:"challenge_ttl_s"`
	SessionTTLSeconds   int64 `mapstructure:"session_ttl_s"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables. The
// server refuses to start without an admin token.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. SERVER_PORT, DATABASE_HOST, SERVER_ADMIN_TOKEN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// config file not found is OK, env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Server.AdminToken == "" {
		return nil, ErrAdminTokenUnset
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origin", []string{})
	// registered empty so the env override is visible to Unmarshal
	v.SetDefault("server.admin_token", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "satoshistacks")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "satoshistacks")
	v.SetDefault("database.pool_size", 20)

	v.SetDefault("game.starting_stack", 5000)
	v.SetDefault("game.small_blind", 50)
	v.SetDefault("game.big_blind", 100)
	v.SetDefault("game.num_seats", 6)
	v.SetDefault("game.min_buyin", 2000)
	v.SetDefault("game.max_buyin", 10000)
	v.SetDefault("game.rathole_window_ms", 7_200_000)

	v.SetDefault("timer.base_action_ms", 15000)
	v.SetDefault("timer.default_time_bank_ms", 15000)
	v.SetDefault("timer.time_bank_cap_ms", 60000)
	v.SetDefault("timer.time_bank_growth_ms", 5000)
	v.SetDefault("timer.time_bank_growth_hands", 10)
	v.SetDefault("timer.sit_out_kick_ms", 300000)
	v.SetDefault("timer.disconnect_grace_ms", 60000)
	v.SetDefault("timer.reconnect_swap_grace_ms", 10000)

	v.SetDefault("session.challenge_ttl_s", 300)
	v.SetDefault("session.session_ttl_s", 86400)
}
