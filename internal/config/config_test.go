package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_RefusesToStartWithoutAdminToken(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Equal(t, ErrAdminTokenUnset, err)
}

func TestLoad_DefaultsWithEnvOverride(t *testing.T) {
	t.Setenv("SERVER_ADMIN_TOKEN", "secret")
	t.Setenv("SERVER_PORT", "9999")

	cfg, err := Load(t.TempDir())
	assert.Nil(t, err)

	assert.Equal(t, "secret", cfg.Server.AdminToken)
	assert.Equal(t, 9999, cfg.Server.Port)

	assert.Equal(t, 6, cfg.Game.NumSeats)
	assert.Equal(t, int64(50), cfg.Game.SmallBlind)
	assert.Equal(t, int64(100), cfg.Game.BigBlind)
	assert.Equal(t, int64(2000), cfg.Game.MinBuyIn)
	assert.Equal(t, int64(10000), cfg.Game.MaxBuyIn)
	assert.Equal(t, int64(7_200_000), cfg.Game.RatholeWindowMs)

	assert.Equal(t, int64(15000), cfg.Timer.BaseActionMs)
	assert.Equal(t, int64(15000), cfg.Timer.DefaultTimeBankMs)
	assert.Equal(t, int64(60000), cfg.Timer.TimeBankCapMs)
	assert.Equal(t, int64(5000), cfg.Timer.TimeBankGrowthMs)
	assert.Equal(t, 10, cfg.Timer.TimeBankGrowthHands)
	assert.Equal(t, int64(300000), cfg.Timer.SitOutKickMs)
	assert.Equal(t, int64(60000), cfg.Timer.DisconnectGraceMs)
	assert.Equal(t, int64(10000), cfg.Timer.ReconnectSwapMs)

	assert.Equal(t, int64(300), cfg.Session.ChallengeTTLSeconds)
	assert.Equal(t, int64(86400), cfg.Session.SessionTTLSeconds)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "stacks"}
	assert.Equal(t, "postgres://u:p@db:5432/stacks?sslmode=disable", d.DSN())
}
