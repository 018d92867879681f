package linking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlink/internal/models"
	"github.com/desertthunder/spotlink/internal/repositories"
	"github.com/desertthunder/spotlink/internal/services"
	"github.com/desertthunder/spotlink/internal/shared"
	"github.com/desertthunder/spotlink/internal/state"
)

// CredentialStore is the persistence the linker needs. [repositories.DeviceRepository] implements it.
type CredentialStore interface {
	GetToken(ctx context.Context, id string) (repositories.TokenLookup, error)
	UpsertDevice(ctx context.Context, id string) (bool, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	Get(ctx context.Context, id string) (*models.Device, error)
	List(ctx context.Context, criteria map[string]any) ([]*models.Device, error)
}

// Options tunes a [Linker].
type Options struct {
	// StateMode is shared.StateModeToken (default) or shared.StateModeDevice.
	StateMode string
	StateTTL  time.Duration
}

// Linker binds devices to provider accounts and brokers their tokens.
type Linker struct {
	store     CredentialStore
	states    state.Store
	provider  services.Service
	logger    *log.Logger
	stateMode string
	stateTTL  time.Duration
	newState  func() (string, error)
}

// New creates a [Linker]. states may be nil in device state mode.
func New(store CredentialStore, states state.Store, provider services.Service, logger *log.Logger, opts Options) *Linker {
	mode := opts.StateMode
	if mode == "" {
		mode = shared.StateModeToken
	}
	ttl := opts.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Linker{
		store:     store,
		states:    states,
		provider:  provider,
		logger:    logger,
		stateMode: mode,
		stateTTL:  ttl,
		newState:  shared.GenerateState,
	}
}

// StateMode reports how authorization attempts are correlated.
func (l *Linker) StateMode() string { return l.stateMode }

func validateDeviceID(op, id string) error {
	if err := models.ValidateDeviceID(id); err != nil {
		if errors.Is(err, models.ErrEmptyDeviceID) {
			return &Error{Kind: KindMissingDeviceID, Op: op}
		}
		return &Error{Kind: KindInvalidDeviceID, Op: op, Err: err}
	}
	return nil
}

// Register records deviceID and reports whether it still needs authorization.
//
// A device with a stored refresh token is linked and gets no URL. Otherwise the row is created
// when missing and an authorization URL is issued. Store failures abort the request before any
// URL is issued.
func (l *Linker) Register(ctx context.Context, deviceID string) (models.Registration, error) {
	const op = "register"
	deviceID = strings.TrimSpace(deviceID)
	if err := validateDeviceID(op, deviceID); err != nil {
		return models.Registration{}, err
	}

	logger := shared.WithLogger(l.logger, "op", op, "device", deviceID)

	lookup, err := l.store.GetToken(ctx, deviceID)
	if err != nil {
		logger.Error("credential lookup failed", "err", err)
		return models.Registration{}, storageError(KindStorageFailed, op, err)
	}

	if lookup.Exists && lookup.RefreshToken != "" {
		logger.Debug("device already linked")
		return models.Registration{Action: models.ActionLinked}, nil
	}

	if !lookup.Exists {
		created, err := l.store.UpsertDevice(ctx, deviceID)
		if err != nil {
			logger.Error("device registration failed", "err", err)
			return models.Registration{}, storageError(KindStorageFailed, op, err)
		}
		logger.Info("device registered", "created", created)
	}

	authURL, err := l.issueAuthorizationURL(ctx, op, deviceID)
	if err != nil {
		return models.Registration{}, err
	}

	return models.Registration{Action: models.ActionAuthorize, AuthorizationURL: authURL}, nil
}

// AuthorizationURL issues a fresh authorization URL for a registered device.
func (l *Linker) AuthorizationURL(ctx context.Context, deviceID string) (string, error) {
	const op = "authorize url"
	deviceID = strings.TrimSpace(deviceID)
	if err := validateDeviceID(op, deviceID); err != nil {
		return "", err
	}

	lookup, err := l.store.GetToken(ctx, deviceID)
	if err != nil {
		l.logger.Error("credential lookup failed", "op", op, "device", deviceID, "err", err)
		return "", storageError(KindStorageFailed, op, err)
	}
	if !lookup.Exists {
		return "", &Error{Kind: KindDeviceNotRegistered, Op: op}
	}

	return l.issueAuthorizationURL(ctx, op, deviceID)
}

// issueAuthorizationURL correlates a new attempt with deviceID and builds the consent URL.
func (l *Linker) issueAuthorizationURL(ctx context.Context, op, deviceID string) (string, error) {
	if l.stateMode == shared.StateModeDevice {
		return l.provider.AuthorizationURL(deviceID), nil
	}

	token, err := l.newState()
	if err != nil {
		return "", &Error{Kind: KindStorageFailed, Op: op, Err: err}
	}

	if err := l.states.Put(ctx, token, deviceID, l.stateTTL); err != nil {
		l.logger.Error("state store write failed", "op", op, "device", deviceID, "err", err)
		return "", storageError(KindStorageFailed, op, err)
	}

	return l.provider.AuthorizationURL(token), nil
}

// resolveState maps a callback state back to the device id.
func (l *Linker) resolveState(ctx context.Context, op, raw string) (string, error) {
	if l.stateMode == shared.StateModeDevice {
		return raw, nil
	}

	deviceID, err := l.states.Resolve(ctx, raw)
	if errors.Is(err, state.ErrNotFound) {
		return "", &Error{Kind: KindInvalidState, Op: op}
	}
	if err != nil {
		return "", storageError(KindStorageFailed, op, err)
	}
	return deviceID, nil
}

// Refresh trades refreshToken for a new access token. The credential store is not touched.
func (l *Linker) Refresh(ctx context.Context, refreshToken string) (models.AccessGrant, error) {
	const op = "refresh"
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return models.AccessGrant{}, &Error{Kind: KindMissingRefreshToken, Op: op}
	}

	grant, err := l.provider.Refresh(ctx, refreshToken)
	if err != nil {
		le := providerError(op, err)
		l.logger.Warn("token refresh failed", "kind", le.Kind, "status", le.Status, "body", le.Body, "err", err)
		return models.AccessGrant{}, le
	}

	if grant.RefreshToken != "" {
		l.logger.Info("provider rotated refresh token")
	}
	return grant, nil
}

// NowPlaying proxies the account's current playback. Idle accounts yield [models.NotPlaying].
func (l *Linker) NowPlaying(ctx context.Context, accessToken string) (models.Playback, error) {
	const op = "now playing"
	if strings.TrimSpace(accessToken) == "" {
		return nil, &Error{Kind: KindMissingAccessToken, Op: op}
	}

	playback, err := l.provider.CurrentlyPlaying(ctx, accessToken)
	if err != nil {
		if errors.Is(err, shared.ErrUnauthorized) {
			return nil, &Error{Kind: KindUnauthorized, Op: op, Status: 401, Err: err}
		}

		le := &Error{Kind: KindUpstreamUnavailable, Op: op, Err: err}
		var pe *services.ProviderError
		if errors.As(err, &pe) {
			le.Status, le.Body = pe.Status, pe.Body
		}
		l.logger.Warn("now playing failed", "status", le.Status, "err", err)
		return nil, le
	}

	return playback, nil
}

// Credential returns the stored refresh token for a linked device.
func (l *Linker) Credential(ctx context.Context, deviceID string) (string, error) {
	const op = "credential"
	deviceID = strings.TrimSpace(deviceID)
	if err := validateDeviceID(op, deviceID); err != nil {
		return "", err
	}

	lookup, err := l.store.GetToken(ctx, deviceID)
	if err != nil {
		l.logger.Error("credential lookup failed", "op", op, "device", deviceID, "err", err)
		return "", storageError(KindStorageFailed, op, err)
	}
	if !lookup.Exists || lookup.RefreshToken == "" {
		return "", &Error{Kind: KindCredentialNotFound, Op: op}
	}
	return lookup.RefreshToken, nil
}

// Status returns the stored device row.
func (l *Linker) Status(ctx context.Context, deviceID string) (*models.Device, error) {
	const op = "status"
	deviceID = strings.TrimSpace(deviceID)
	if err := validateDeviceID(op, deviceID); err != nil {
		return nil, err
	}

	device, err := l.store.Get(ctx, deviceID)
	if errors.Is(err, repositories.ErrDeviceNotFound) {
		return nil, &Error{Kind: KindDeviceNotRegistered, Op: op}
	}
	if err != nil {
		return nil, storageError(KindStorageFailed, op, err)
	}
	return device, nil
}

// Devices lists registered devices. A nil linked lists all of them.
func (l *Linker) Devices(ctx context.Context, linked *bool) ([]*models.Device, error) {
	criteria := map[string]any{}
	if linked != nil {
		criteria["linked"] = *linked
	}

	devices, err := l.store.List(ctx, criteria)
	if err != nil {
		return nil, storageError(KindStorageFailed, "devices", err)
	}
	return devices, nil
}

// providerError classifies a failed token call.
func providerError(op string, err error) *Error {
	var pe *services.ProviderError
	if errors.As(err, &pe) {
		return &Error{Kind: KindProviderExchangeFailed, Op: op, Status: pe.Status, Body: pe.Body, Err: err}
	}
	return &Error{Kind: KindUpstreamUnavailable, Op: op, Err: err}
}
