package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlink/internal/linking"
	"github.com/desertthunder/spotlink/internal/server"
)

// Serve runs the linking server until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = port
	}
	if err := r.config.Validate(); err != nil {
		return err
	}

	provider, err := r.newProvider()
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	db, repo, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}

	states, err := r.newStateStore()
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create state store: %w", err)
	}

	cfg := r.config
	linker := linking.New(repo, states, provider, r.logger, linking.Options{
		StateMode: cfg.State.Mode,
		StateTTL:  cfg.State.TTL,
	})

	checks := []server.Check{{Name: "database", Ping: db.PingContext}}
	if pinger, ok := states.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, server.Check{Name: "state", Ping: pinger.Ping})
	}

	limiter := server.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	router := server.NewRouter(server.Options{
		Linker:     linker,
		Logger:     r.logger,
		SuccessURL: cfg.Server.SuccessURL,
		Limiter:    limiter,
		Checks:     checks,
	})

	srv := server.New(cfg.Server, router, r.logger)
	srv.OnShutdown(func() {
		limiter.Close()
		if err := states.Close(); err != nil {
			r.logger.Warn("failed to close state store", "err", err)
		}
		if err := db.Close(); err != nil {
			r.logger.Warn("failed to close database", "err", err)
		}
	})

	r.logger.Info("starting linking server",
		"addr", srv.Addr(),
		"provider", provider.Name(),
		"database", cfg.Database.Driver,
		"state_mode", cfg.State.Mode,
		"state_driver", cfg.State.Driver,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
