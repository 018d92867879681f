package repositories

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/desertthunder/spotlink/internal/models"
	"github.com/desertthunder/spotlink/internal/shared"
)

// setupTestDB creates a file-backed SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := shared.DatabaseConfig{Driver: shared.DriverSQLite, URL: filepath.Join(t.TempDir(), "test.db")}
	if err := shared.RunMigrations(cfg, shared.NewLogger(io.Discard)); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db, err := shared.NewDatabase(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestDeviceRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("GetToken for unknown device", func(t *testing.T) {
		repo := NewDeviceRepository(setupTestDB(t), DialectSQLite)

		got, err := repo.GetToken(ctx, "AA11BB22CC33")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Exists {
			t.Error("unknown device should not exist")
		}
	})

	t.Run("UpsertDevice creates unlinked row once", func(t *testing.T) {
		repo := NewDeviceRepository(setupTestDB(t), DialectSQLite)

		created, err := repo.UpsertDevice(ctx, "AA11BB22CC33")
		if err != nil {
			t.Fatalf("failed to upsert device: %v", err)
		}
		if !created {
			t.Error("first upsert should create the row")
		}

		created, err = repo.UpsertDevice(ctx, "AA11BB22CC33")
		if err != nil {
			t.Fatalf("failed to upsert device: %v", err)
		}
		if created {
			t.Error("second upsert should not create a row")
		}

		got, err := repo.GetToken(ctx, "AA11BB22CC33")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Exists || got.RefreshToken != "" {
			t.Errorf("expected registered unlinked device, got %+v", got)
		}
	})

	t.Run("UpsertDevice never clears an existing token", func(t *testing.T) {
		repo := NewDeviceRepository(setupTestDB(t), DialectSQLite)

		if _, err := repo.UpsertDevice(ctx, "AA11BB22CC33"); err != nil {
			t.Fatalf("failed to upsert device: %v", err)
		}
		if err := repo.SetRefreshToken(ctx, "AA11BB22CC33", "rt-1"); err != nil {
			t.Fatalf("failed to set token: %v", err)
		}
		if _, err := repo.UpsertDevice(ctx, "AA11BB22CC33"); err != nil {
			t.Fatalf("failed to upsert device: %v", err)
		}

		got, err := repo.GetToken(ctx, "AA11BB22CC33")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.RefreshToken != "rt-1" {
			t.Errorf("expected rt-1 to survive re-registration, got %q", got.RefreshToken)
		}
	})

	t.Run("UpsertDevice validates id", func(t *testing.T) {
		repo := NewDeviceRepository(setupTestDB(t), DialectSQLite)
		if _, err := repo.UpsertDevice(ctx, ""); !errors.Is(err, models.ErrEmptyDeviceID) {
			t.Errorf("expected ErrEmptyDeviceID, got %v", err)
		}
	})

	t.Run("SetRefreshToken overwrites", func(t *testing.T) {
		repo := NewDeviceRepository(setupTestDB(t), DialectSQLite)

		if _, err := repo.UpsertDevice(ctx, "AA11BB22CC33"); err != nil {
			t.Fatalf("failed to upsert device: %v", err)
		}
		for _, tok := range []string{"rt-1", "rt-2"} {
			if err := repo.SetRefreshToken(ctx, "AA11BB22CC33", tok); err != nil {
				t.Fatalf("failed to set token: %v", err)
			}
		}

		got, err := repo.GetToken(ctx, "AA11BB22CC33")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.RefreshToken != "rt-2" {
			t.Errorf("expected rt-2, got %q", got.RefreshToken)
		}
	})

	t.Run("SetRefreshToken on missing row is a no-op", func(t *testing.T) {
		repo := NewDeviceRepository(setupTestDB(t), DialectSQLite)

		if err := repo.SetRefreshToken(ctx, "missing", "rt-1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		got, err := repo.GetToken(ctx, "missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Exists {
			t.Error("update should not create a row")
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewDeviceRepository(setupTestDB(t), DialectSQLite)

		if _, err := repo.Get(ctx, "AA11BB22CC33"); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("expected ErrDeviceNotFound, got %v", err)
		}

		if _, err := repo.UpsertDevice(ctx, "AA11BB22CC33"); err != nil {
			t.Fatalf("failed to upsert device: %v", err)
		}
		device, err := repo.Get(ctx, "AA11BB22CC33")
		if err != nil {
			t.Fatalf("failed to get device: %v", err)
		}
		if device.ID() != "AA11BB22CC33" || device.Linked() {
			t.Errorf("unexpected device %s linked=%v", device.ID(), device.Linked())
		}
		if device.CreatedAt().IsZero() {
			t.Error("created at should be populated")
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewDeviceRepository(setupTestDB(t), DialectSQLite)

		for _, id := range []string{"dev-a", "dev-b", "dev-c"} {
			if _, err := repo.UpsertDevice(ctx, id); err != nil {
				t.Fatalf("failed to upsert device: %v", err)
			}
		}
		if err := repo.SetRefreshToken(ctx, "dev-b", "rt-b"); err != nil {
			t.Fatalf("failed to set token: %v", err)
		}

		all, err := repo.List(ctx, nil)
		if err != nil {
			t.Fatalf("failed to list devices: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 devices, got %d", len(all))
		}

		linked, err := repo.List(ctx, map[string]any{"linked": true})
		if err != nil {
			t.Fatalf("failed to list devices: %v", err)
		}
		if len(linked) != 1 || linked[0].ID() != "dev-b" {
			t.Errorf("expected only dev-b linked, got %d devices", len(linked))
		}

		unlinked, err := repo.List(ctx, map[string]any{"linked": false})
		if err != nil {
			t.Fatalf("failed to list devices: %v", err)
		}
		if len(unlinked) != 2 {
			t.Errorf("expected 2 unlinked devices, got %d", len(unlinked))
		}
	})

	t.Run("closed database is classified", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewDeviceRepository(db, DialectSQLite)
		db.Close()

		_, err := repo.GetToken(ctx, "AA11BB22CC33")
		var se *StoreError
		if !errors.As(err, &se) {
			t.Fatalf("expected StoreError, got %T %v", err, err)
		}
		if se.Op != "get token" {
			t.Errorf("expected op get token, got %s", se.Op)
		}
	})
}

func TestDialectRebind(t *testing.T) {
	tc := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{
			name:    "sqlite unchanged",
			dialect: DialectSQLite,
			in:      "UPDATE devices SET refresh_token = ? WHERE device_id = ?",
			want:    "UPDATE devices SET refresh_token = ? WHERE device_id = ?",
		},
		{
			name:    "postgres numbered",
			dialect: DialectPostgres,
			in:      "UPDATE devices SET refresh_token = ? WHERE device_id = ?",
			want:    "UPDATE devices SET refresh_token = $1 WHERE device_id = $2",
		},
		{
			name:    "quoted question mark kept",
			dialect: DialectPostgres,
			in:      "SELECT '?' FROM devices WHERE device_id = ?",
			want:    "SELECT '?' FROM devices WHERE device_id = $1",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.Rebind(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if DialectFor(shared.DriverPostgres) != DialectPostgres || DialectFor(shared.DriverSQLite) != DialectSQLite {
		t.Error("DialectFor returned the wrong dialect")
	}
}
