// package models defines the data model for the device linking service
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

var (
	ErrEmptyDeviceID   = errors.New("device id is empty")
	ErrInvalidDeviceID = errors.New("device id is invalid")
)

// maxDeviceIDLength bounds identifiers accepted from clients.
const maxDeviceIDLength = 128

// Device is a registered hardware client, keyed by its unique identifier (typically a MAC address).
//
// An empty refresh token means the device is registered but not yet linked.
type Device struct {
	id           string
	refreshToken string
	createdAt    time.Time
	updatedAt    time.Time
}

// NewDevice creates an unlinked [Device].
func NewDevice(id string) *Device {
	now := time.Now().UTC()
	return &Device{id: id, createdAt: now, updatedAt: now}
}

// RestoreDevice rebuilds a [Device] from a persisted row.
func RestoreDevice(id, refreshToken string, createdAt, updatedAt time.Time) *Device {
	return &Device{id: id, refreshToken: refreshToken, createdAt: createdAt, updatedAt: updatedAt}
}

func (d *Device) ID() string           { return d.id }
func (d *Device) RefreshToken() string { return d.refreshToken }
func (d *Device) CreatedAt() time.Time { return d.createdAt }
func (d *Device) UpdatedAt() time.Time { return d.updatedAt }

// Linked reports whether the device holds a refresh token.
func (d *Device) Linked() bool { return d.refreshToken != "" }

// Validate checks the device identifier.
func (d *Device) Validate() error {
	return ValidateDeviceID(d.id)
}

// ValidateDeviceID rejects empty, oversized, or whitespace/control-laden identifiers.
func ValidateDeviceID(id string) error {
	if id == "" {
		return ErrEmptyDeviceID
	}
	if len(id) > maxDeviceIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidDeviceID, maxDeviceIDLength)
	}
	if strings.ContainsFunc(id, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidDeviceID)
	}
	return nil
}

// LinkAction is the outcome of registering a device.
type LinkAction string

const (
	ActionLinked    LinkAction = "linked"
	ActionAuthorize LinkAction = "authorize"
)

// Registration is the result of registering a device.
type Registration struct {
	Action           LinkAction `json:"action"`
	AuthorizationURL string     `json:"authorizationUrl,omitempty"`
}

// TokenPayload is the provider's answer to a successful code exchange.
type TokenPayload struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresIn    int       `json:"expiresIn"`
	Expiry       time.Time `json:"expiresAt"`
}

// AccessGrant is a short-lived access token obtained by refreshing.
//
// RefreshToken is set only when the provider rotated the refresh token.
type AccessGrant struct {
	AccessToken  string    `json:"accessToken"`
	ExpiresIn    int       `json:"expiresIn"`
	Expiry       time.Time `json:"expiresAt"`
	RefreshToken string    `json:"refreshToken,omitempty"`
}

// ExpiresWithin reports whether the grant expires within d of now.
func (g AccessGrant) ExpiresWithin(now time.Time, d time.Duration) bool {
	if g.Expiry.IsZero() {
		return true
	}
	return !now.Add(d).Before(g.Expiry)
}
