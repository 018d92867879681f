package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spotlink/internal/models"
)

// ErrDeviceNotFound is returned by [DeviceRepository.Get] when no row exists.
var ErrDeviceNotFound = errors.New("device not found")

// TokenLookup is the result of [DeviceRepository.GetToken].
//
// Exists with an empty RefreshToken means the device is registered but unlinked.
type TokenLookup struct {
	Exists       bool
	RefreshToken string
}

// DeviceRepository persists [models.Device] rows, one per device id.
type DeviceRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewDeviceRepository creates a new [DeviceRepository] with the given database connection
func NewDeviceRepository(db *sql.DB, dialect Dialect) *DeviceRepository {
	return &DeviceRepository{db: db, dialect: dialect}
}

// GetToken reports whether id is registered and returns its stored refresh token.
func (r *DeviceRepository) GetToken(ctx context.Context, id string) (TokenLookup, error) {
	query := r.dialect.Rebind(`SELECT refresh_token FROM devices WHERE device_id = ?`)

	var token string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenLookup{}, nil
	}
	if err != nil {
		return TokenLookup{}, Classify("get token", err)
	}

	return TokenLookup{Exists: true, RefreshToken: token}, nil
}

// UpsertDevice inserts an unlinked row for id if none exists. Existing rows, and their tokens, are untouched.
//
// created reports whether a new row was inserted.
func (r *DeviceRepository) UpsertDevice(ctx context.Context, id string) (bool, error) {
	if err := models.ValidateDeviceID(id); err != nil {
		return false, fmt.Errorf("validation failed: %w", err)
	}

	query := r.dialect.Rebind(`
		INSERT INTO devices (device_id, refresh_token) VALUES (?, '')
		ON CONFLICT (device_id) DO NOTHING
	`)

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, Classify("upsert device", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, Classify("upsert device", err)
	}
	return n > 0, nil
}

// SetRefreshToken stores token for id, replacing any previous value.
//
// Updating a missing row affects nothing and is not an error.
func (r *DeviceRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	query := r.dialect.Rebind(`
		UPDATE devices SET refresh_token = ?, updated_at = CURRENT_TIMESTAMP WHERE device_id = ?
	`)

	if _, err := r.db.ExecContext(ctx, query, token, id); err != nil {
		return Classify("set refresh token", err)
	}
	return nil
}

// Get retrieves the full device row.
func (r *DeviceRepository) Get(ctx context.Context, id string) (*models.Device, error) {
	query := r.dialect.Rebind(`
		SELECT device_id, refresh_token, created_at, updated_at
		FROM devices
		WHERE device_id = ?
	`)

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if err != nil {
		return nil, Classify("get device", err)
	}
	return device, nil
}

// List retrieves devices matching the given criteria, oldest first.
//
// Supported criteria: "linked" (bool).
func (r *DeviceRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Device, error) {
	query := `
		SELECT device_id, refresh_token, created_at, updated_at
		FROM devices
		WHERE 1 = 1
	`

	if linked, ok := criteria["linked"].(bool); ok {
		if linked {
			query += " AND refresh_token <> ''"
		} else {
			query += " AND refresh_token = ''"
		}
	}

	query += " ORDER BY created_at ASC, device_id ASC"

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query))
	if err != nil {
		return nil, Classify("list devices", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, Classify("list devices", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, Classify("list devices", err)
	}

	return devices, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row into a [models.Device]
func scanDevice(s scanner) (*models.Device, error) {
	var (
		id        string
		token     string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := s.Scan(&id, &token, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	return models.RestoreDevice(id, token, createdAt, updatedAt), nil
}
