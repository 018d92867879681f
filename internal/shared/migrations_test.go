package shared

import (
	"context"
	"io"
	"path/filepath"
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	logger := NewLogger(io.Discard)
	cfg := DatabaseConfig{Driver: DriverSQLite, URL: filepath.Join(t.TempDir(), "migrate.db")}

	t.Run("fresh database reports version 0", func(t *testing.T) {
		status, err := GetMigrationStatus(cfg)
		if err != nil {
			t.Fatalf("failed to read status: %v", err)
		}
		if status.Version != 0 || status.Dirty {
			t.Errorf("expected clean version 0, got %+v", status)
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		if err := RunMigrations(cfg, logger); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		if err := RunMigrations(cfg, logger); err != nil {
			t.Fatalf("re-running migrations should be a no-op: %v", err)
		}

		db, err := NewDatabase(context.Background(), cfg)
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := db.Exec("SELECT device_id, refresh_token FROM devices LIMIT 1"); err != nil {
			t.Errorf("devices table should exist after migrations: %v", err)
		}

		status, err := GetMigrationStatus(cfg)
		if err != nil {
			t.Fatalf("failed to read status: %v", err)
		}
		if status.Version != 2 {
			t.Errorf("expected version 2, got %d", status.Version)
		}

		if err := RollbackMigration(cfg, logger); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}
		if err := RollbackMigration(cfg, logger); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		if _, err := db.Exec("SELECT 1 FROM devices LIMIT 1"); err == nil {
			t.Error("devices table should be dropped after rolling back every migration")
		}

		if err := RollbackMigration(cfg, logger); err == nil {
			t.Error("expected error when nothing is left to roll back")
		}
	})
}

func TestNewDatabase(t *testing.T) {
	t.Run("unsupported driver", func(t *testing.T) {
		_, err := NewDatabase(context.Background(), DatabaseConfig{Driver: "oracle", URL: "x"})
		if err == nil {
			t.Error("expected error for unsupported driver")
		}
	})

	t.Run("sqlite file", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: DriverSQLite, URL: filepath.Join(t.TempDir(), "db.sqlite"), MaxOpenConns: 2}
		db, err := NewDatabase(context.Background(), cfg)
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if got := db.Stats().MaxOpenConnections; got != 2 {
			t.Errorf("expected max open conns 2, got %d", got)
		}
	})
}
