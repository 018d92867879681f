package linking

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/spotlink/internal/repositories"
)

// Kind classifies a linking failure. The string form is what clients see.
type Kind string

const (
	KindMissingDeviceID        Kind = "missing_device_id"
	KindInvalidDeviceID        Kind = "invalid_device_id"
	KindMissingParameter       Kind = "missing_parameter"
	KindMissingRefreshToken    Kind = "missing_refresh_token"
	KindMissingAccessToken     Kind = "missing_access_token"
	KindInvalidState           Kind = "invalid_state"
	KindAuthorizationDenied    Kind = "authorization_denied"
	KindDeviceNotRegistered    Kind = "device_not_registered"
	KindCredentialNotFound     Kind = "credential_not_found"
	KindProviderExchangeFailed Kind = "provider_exchange_failed"
	KindNoRefreshToken         Kind = "no_refresh_token"
	KindUpstreamUnavailable    Kind = "upstream_unavailable"
	KindUnauthorized           Kind = "unauthorized"
	KindPersistenceFailed      Kind = "persistence_failed"
	KindStorageFailed          Kind = "storage_failed"
)

// Sentinels for errors.Is comparisons by kind.
var (
	ErrMissingDeviceID        = &Error{Kind: KindMissingDeviceID}
	ErrInvalidDeviceID        = &Error{Kind: KindInvalidDeviceID}
	ErrMissingParameter       = &Error{Kind: KindMissingParameter}
	ErrMissingRefreshToken    = &Error{Kind: KindMissingRefreshToken}
	ErrMissingAccessToken     = &Error{Kind: KindMissingAccessToken}
	ErrInvalidState           = &Error{Kind: KindInvalidState}
	ErrAuthorizationDenied    = &Error{Kind: KindAuthorizationDenied}
	ErrDeviceNotRegistered    = &Error{Kind: KindDeviceNotRegistered}
	ErrCredentialNotFound     = &Error{Kind: KindCredentialNotFound}
	ErrProviderExchangeFailed = &Error{Kind: KindProviderExchangeFailed}
	ErrNoRefreshToken         = &Error{Kind: KindNoRefreshToken}
	ErrUpstreamUnavailable    = &Error{Kind: KindUpstreamUnavailable}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
	ErrPersistenceFailed      = &Error{Kind: KindPersistenceFailed}
	ErrStorageFailed          = &Error{Kind: KindStorageFailed}
)

// Error is a classified linking failure.
//
// Status and Body carry the provider's answer for provider failures.
// StoreKind carries the classified cause for storage failures; Err keeps the
// full detail for server-side logs only.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Status    int
	Body      string
	StoreKind repositories.StoreErrorKind
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (provider status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Public returns the message safe to show a client.
func (e *Error) Public() string {
	if e.Message != "" {
		return e.Message
	}
	return publicMessages[e.Kind]
}

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindMissingDeviceID, KindInvalidDeviceID, KindMissingParameter, KindMissingRefreshToken, KindInvalidState:
		return http.StatusBadRequest
	case KindMissingAccessToken, KindUnauthorized:
		return http.StatusUnauthorized
	case KindAuthorizationDenied:
		return http.StatusForbidden
	case KindDeviceNotRegistered, KindCredentialNotFound:
		return http.StatusNotFound
	case KindProviderExchangeFailed:
		// A rejected code or token is the caller's to fix; a provider fault is not.
		if e.Status >= 400 && e.Status < 500 {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	case KindNoRefreshToken:
		return http.StatusBadGateway
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Recoverable reports whether the user can fix the failure by retrying the flow from the start.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindPersistenceFailed, KindStorageFailed:
		return e.StoreKind != repositories.KindAuthFailed
	case KindProviderExchangeFailed:
		return e.Status < 500
	default:
		return true
	}
}

var publicMessages = map[Kind]string{
	KindMissingDeviceID:        "device id is required",
	KindInvalidDeviceID:        "device id is invalid",
	KindMissingParameter:       "code and state are required",
	KindMissingRefreshToken:    "refresh token is required",
	KindMissingAccessToken:     "bearer access token is required",
	KindInvalidState:           "authorization attempt is unknown or expired, start again",
	KindAuthorizationDenied:    "authorization was denied",
	KindDeviceNotRegistered:    "device is not registered",
	KindCredentialNotFound:     "no credential for device",
	KindProviderExchangeFailed: "provider rejected the request",
	KindNoRefreshToken:         "provider did not issue a refresh token, revoke access and link again",
	KindUpstreamUnavailable:    "provider is unavailable",
	KindUnauthorized:           "access token rejected",
	KindPersistenceFailed:      "failed to save credential, start linking again",
	KindStorageFailed:          "storage unavailable",
}

// AsError returns err as an *Error when it is one.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// storageError wraps a store failure, keeping the classified kind.
func storageError(kind Kind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err, StoreKind: repositories.KindUnknown}
	var se *repositories.StoreError
	if errors.As(err, &se) {
		e.StoreKind = se.Kind
	}
	return e
}
