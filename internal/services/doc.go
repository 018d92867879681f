// Package services defines the [Service] interface for the OAuth provider and implements it for Spotify.
//
// # Spotify Implementation
//
// [SpotifyService] wraps an [oauth2.Config] whose endpoint authenticates the client with HTTP Basic
// credentials. Code exchange and refresh are single requests bounded by the configured timeout;
// nothing in this package retries. Playback is read through github.com/zmb3/spotify/v2.
//
// # Error Handling
//
// Failures are reported in two shapes:
//   - [ProviderError] : the provider answered with a non-2xx status; status and body are kept verbatim
//   - [shared.ErrServiceUnavailable] / [shared.ErrTimeout] : the provider could not be reached
//
// A 401 ProviderError unwraps to [shared.ErrUnauthorized].
//
// # Link Client
//
// [LinkClient] speaks the linking server's own HTTP surface (register, credential, token refresh,
// now-playing). The CLI poll command uses it to act as a device.
package services
