package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlink/internal/shared"
)

// Setup creates the config file from the embedded template when missing and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("using existing config file", "path", configPath)
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		config, err := shared.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load created config: %w", err)
		}
		r.config = config
	}

	r.logger.Info("running database migrations", "driver", r.config.Database.Driver)
	if err := shared.RunMigrations(r.config.Database, r.logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.writePlain("%s setup complete\n", r.palette.ok.Render("✓"))
	if r.config.Credentials.Spotify.ClientID == "" {
		r.writePlainln("Next steps:")
		r.writePlain("1. Set credentials.spotify.client_id and client_secret in %s (or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET)\n", configPath)
		r.writePlain("2. Run 'spotlink serve'\n")
	}
	return nil
}

// MigrateUp applies pending migrations.
func (r *Runner) MigrateUp(ctx context.Context, cmd *cli.Command) error {
	if err := shared.RunMigrations(r.config.Database, r.logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return r.MigrateStatus(ctx, cmd)
}

// MigrateDown rolls back one migration.
func (r *Runner) MigrateDown(ctx context.Context, cmd *cli.Command) error {
	if err := shared.RollbackMigration(r.config.Database, r.logger); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return r.MigrateStatus(ctx, cmd)
}

// MigrateStatus prints the schema version.
func (r *Runner) MigrateStatus(ctx context.Context, cmd *cli.Command) error {
	status, err := shared.GetMigrationStatus(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	dirty := ""
	if status.Dirty {
		dirty = " " + r.palette.err.Render("(dirty)")
	}
	return r.writePlain("schema version: %d%s\n", status.Version, dirty)
}
