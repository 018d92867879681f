// package services defines interface Service for the OAuth provider and a client for the linking server
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/spotlink/internal/models"
	"github.com/desertthunder/spotlink/internal/shared"
)

// Service defines the provider operations the linking flow depends on.
type Service interface {
	// AuthorizationURL builds the consent URL carrying state. It performs no I/O.
	AuthorizationURL(state string) string

	// Exchange trades an authorization code for tokens. It is never retried.
	Exchange(ctx context.Context, code string) (models.TokenPayload, error)

	// Refresh obtains a new access token. RefreshToken is set on the grant only when the provider rotated it.
	Refresh(ctx context.Context, refreshToken string) (models.AccessGrant, error)

	// CurrentlyPlaying returns the account's playback, [models.NotPlaying] when idle.
	CurrentlyPlaying(ctx context.Context, accessToken string) (models.Playback, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// ProviderError is a non-2xx answer from the provider. Status and Body are kept verbatim for diagnostics.
type ProviderError struct {
	Op     string
	Status int
	Body   string
	// Code is the OAuth error code when the body carried one (e.g. "invalid_grant").
	Code string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: provider returned %d (%s)", e.Op, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: provider returned %d", e.Op, e.Status)
}

// Unwrap maps 401 to [shared.ErrUnauthorized] and other statuses to [shared.ErrAPIRequest].
func (e *ProviderError) Unwrap() error {
	if e.Status == 401 {
		return shared.ErrUnauthorized
	}
	return shared.ErrAPIRequest
}

// IsUnavailable reports whether err means the provider could not be reached or timed out.
func IsUnavailable(err error) bool {
	return errors.Is(err, shared.ErrServiceUnavailable) || errors.Is(err, shared.ErrTimeout)
}
