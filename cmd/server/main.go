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
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/huddle/internal/adapters/http"
	"github.com/dkeye/huddle/internal/adapters/rtc"
	sig "github.com/dkeye/huddle/internal/adapters/signal"
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/authstore"
	"github.com/dkeye/huddle/internal/app/ledger"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	iceServers, err := rtc.ICEServers(cfg.ICEServers)
	if err != nil {
		return err
	}
	admin, err := router.NewAdminCredentials(cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.PasswordHash, cfg.Rooms.BcryptCost)
	if err != nil {
		return fmt.Errorf("admin credentials: %w", err)
	}

	led := ledger.New(ledger.Config{
		MaxQualitySamples:    cfg.Ledger.MaxQualitySamples,
		SessionRetention:     cfg.Ledger.SessionRetention,
		OrphanTimeout:        cfg.Ledger.OrphanTimeout,
		RoomMetricsRetention: cfg.Ledger.RoomMetricsRetention,
	})
	o := &orch.Orchestrator{
		Rooms:    app.NewRoomManager(app.WithBcryptCost(cfg.Rooms.BcryptCost)),
		Presence: app.NewPresence(),
		Ledger:   led,
		Policy:   app.PolicyByName(cfg.Rooms.BackpressurePolicy),
	}
	auth := authstore.New[router.AdminSession](cfg.Auth.TTL)

	var limiter *sig.RoomRateLimiter
	if cfg.Rooms.JoinRateLimit > 0 {
		limiter = sig.NewRoomRateLimiter(cfg.Rooms.JoinRateLimit, cfg.Rooms.JoinRateWindow)
	}
	ctl := sig.NewSignalWSController(o, limiter, sig.Options{
		ReadLimit:  cfg.ReadLimit,
		PongWait:   cfg.PongWait,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:       o,
		Signal:     ctl,
		Auth:       auth,
		Admin:      admin,
		ICEServers: iceServers,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("huddle server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return led.Run(ctx, cfg.Ledger.ReclaimInterval, o.Liveness())
	})
	g.Go(func() error {
		return auth.Run(ctx, cfg.Auth.SweepInterval)
	})
	if limiter != nil {
		g.Go(func() error {
			return limiter.Run(ctx, cfg.Rooms.JoinRateWindow)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
