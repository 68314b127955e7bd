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

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/wildcommand/wildcommand/internal/app"
	"github.com/wildcommand/wildcommand/internal/config"
	"github.com/wildcommand/wildcommand/internal/identity"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		os.Exit(runAdmin(os.Args[2:]))
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	cronScheduler, err := setupLinkSweepCron(cfg, application.Provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup link sweep cron: %v\n", err)
		os.Exit(1)
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- application.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			os.Exit(1)
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
			os.Exit(1)
		}
	}
}

// setupLinkSweepCron schedules deletion of expired, unredeemed sign-in
// links. Hourly in production, every minute in dev.
func setupLinkSweepCron(cfg *config.Config, provider *identity.PGProvider) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	schedule := "15 * * * *"
	if cfg.IsDev() {
		schedule = "* * * * *"
	}

	_, err := c.AddFunc(schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Link sweep job panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		deleted, err := provider.SweepExpiredLinks(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Link sweep job failed")
			return
		}
		if deleted > 0 {
			log.Info().Int64("deleted", deleted).Msg("Swept expired sign-in links")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule link sweep job: %w", err)
	}

	return c, nil
}
