package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/evenkeel/SatoshiStacks/internal/admin"
	"github.com/evenkeel/SatoshiStacks/internal/auth"
	"github.com/evenkeel/SatoshiStacks/internal/config"
	"github.com/evenkeel/SatoshiStacks/internal/coordinator"
	"github.com/evenkeel/SatoshiStacks/internal/store"
	"github.com/evenkeel/SatoshiStacks/internal/table"
	"github.com/evenkeel/SatoshiStacks/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := "."
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	authService := auth.NewService(st, auth.Options{
		ChallengeTTL: time.Duration(cfg.Session.ChallengeTTLSeconds) * time.Second,
		SessionTTL:   time.Duration(cfg.Session.SessionTTLSeconds) * time.Second,
	}, log.With().Str("component", "auth").Logger())

	manager := table.NewManager(
		table.WithManagerRecorder(st),
		table.WithManagerLogger(log.With().Str("component", "table").Logger()),
	)
	defer manager.Close()

	coordOptions := coordinator.NewOptions()
	coordOptions.DisconnectGraceMs = cfg.Timer.DisconnectGraceMs
	coordOptions.ReconnectSwapMs = cfg.Timer.ReconnectSwapMs
	coordOptions.DefaultBuyIn = cfg.Game.StartingStack

	coord := coordinator.NewCoordinator(authService, st,
		coordOptions, log.With().Str("component", "coordinator").Logger())
	defer coord.Close()

	// the default deployment runs a single 6-seat table
	mainTable := manager.CreateTable(tableOptions(cfg))
	coord.AttachTable(mainTable)
	log.Info().Str("table_id", mainTable.GetTable().ID).Msg("table ready")

	mux := http.NewServeMux()
	authService.Register(mux)
	admin.NewHandler(st, manager, cfg.Server.AdminToken, log.With().Str("component", "admin").Logger()).Register(mux)
	mux.Handle("/ws", transport.NewHandler(coord, cfg.Server.CORSOrigin, log.With().Str("component", "transport").Logger()))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           withCORS(cfg.Server.CORSOrigin, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
}

func tableOptions(cfg *config.Config) *table.Options {
	options := table.NewOptions()
	options.NumSeats = cfg.Game.NumSeats
	options.SmallBlind = cfg.Game.SmallBlind
	options.BigBlind = cfg.Game.BigBlind
	options.MinBuyIn = cfg.Game.MinBuyIn
	options.MaxBuyIn = cfg.Game.MaxBuyIn
	options.RatholeWindowMs = cfg.Game.RatholeWindowMs
	options.BaseActionMs = cfg.Timer.BaseActionMs
	options.DefaultTimeBankMs = cfg.Timer.DefaultTimeBankMs
	options.TimeBankCapMs = cfg.Timer.TimeBankCapMs
	options.TimeBankGrowthMs = cfg.Timer.TimeBankGrowthMs
	options.TimeBankGrowthHands = cfg.Timer.TimeBankGrowthHands
	options.SitOutKickMs = cfg.Timer.SitOutKickMs
	return options
}

func withCORS(origins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-session-token, x-admin-token")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(origins []string, origin string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, candidate := range origins {
		if candidate == origin || candidate == "*" {
			return true
		}
	}
	return false
}
