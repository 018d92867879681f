// Package state correlates OAuth authorization attempts with the device that started them.
//
// A random state token is issued per attempt and mapped to the device id with a TTL.
// The callback resolves the token back to the device. Entries are not consumed on
// resolve; they expire. Use the redis driver whenever more than one server instance
// handles callbacks.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spotlink/internal/shared"
)

// Driver identifiers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// ErrNotFound is returned when a state token is unknown or expired.
var ErrNotFound = errors.New("state not found")

// Store maps state tokens to device ids.
type Store interface {
	Put(ctx context.Context, token, deviceID string, ttl time.Duration) error
	Resolve(ctx context.Context, token string) (string, error)
	Close() error
}

// New creates a store based on the provided configuration. An empty driver is memory.
func New(cfg shared.StateConfig) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(cfg.TTL), nil
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported state driver %q", shared.ErrInvalidConfig, cfg.Driver)
	}
}
