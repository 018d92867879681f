// Spotify implementation of [Service]
//
// Token calls go to the accounts service with HTTP Basic client authentication.
// Playback reads use the Web API through github.com/zmb3/spotify/v2.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/desertthunder/spotlink/internal/models"
	"github.com/desertthunder/spotlink/internal/shared"
)

// ScopesV1 is the scope set requested from every device. Changing it requires devices to re-link.
var ScopesV1 = []string{
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserReadPrivate,
}

const defaultProviderTimeout = 10 * time.Second

// SpotifyOptions tunes a [SpotifyService]. Zero values use production endpoints.
type SpotifyOptions struct {
	AuthURL    string
	TokenURL   string
	APIURL     string
	Timeout    time.Duration
	ShowDialog bool
	// Control requests the modify-playback-state scope as well.
	Control    bool
	HTTPClient *http.Client
}

// SpotifyService implements [Service] for Spotify.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	apiURL     string
	timeout    time.Duration
	showDialog bool
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts SpotifyOptions) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		return nil, fmt.Errorf("%w: missing redirect_uri", shared.ErrMissingCredentials)
	}

	authURL, tokenURL := spotifyauth.AuthURL, spotifyauth.TokenURL
	if opts.AuthURL != "" {
		authURL = opts.AuthURL
	}
	if opts.TokenURL != "" {
		tokenURL = opts.TokenURL
	}

	scopes := append([]string(nil), ScopesV1...)
	if opts.Control {
		scopes = append(scopes, spotifyauth.ScopeUserModifyPlaybackState)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	apiURL := opts.APIURL
	if apiURL != "" && !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: client,
		apiURL:     apiURL,
		timeout:    timeout,
		showDialog: opts.ShowDialog,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthorizationURL returns the consent URL for state.
//
// The query carries response_type=code, client_id, redirect_uri, the space-separated scope list and state.
func (s *SpotifyService) AuthorizationURL(state string) string {
	var opts []oauth2.AuthCodeOption
	if s.showDialog {
		opts = append(opts, oauth2.SetAuthURLParam("show_dialog", "true"))
	}
	return s.config.AuthCodeURL(state, opts...)
}

// Exchange trades code for tokens in a single request.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (models.TokenPayload, error) {
	ctx, rec, cancel := s.tokenContext(ctx)
	defer cancel()

	tok, err := s.config.Exchange(ctx, code)
	if err != nil {
		return models.TokenPayload{}, s.tokenError("exchange", err, rec.last())
	}

	scope, _ := tok.Extra("scope").(string)
	return models.TokenPayload{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        scope,
		ExpiresIn:    expiresIn(tok),
		Expiry:       tok.Expiry,
	}, nil
}

// Refresh obtains a new access token for refreshToken.
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (models.AccessGrant, error) {
	ctx, rec, cancel := s.tokenContext(ctx)
	defer cancel()

	tok, err := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return models.AccessGrant{}, s.tokenError("refresh", err, rec.last())
	}

	grant := models.AccessGrant{
		AccessToken: tok.AccessToken,
		ExpiresIn:   expiresIn(tok),
		Expiry:      tok.Expiry,
	}
	// The oauth2 package echoes the old refresh token back when the provider omits one.
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		grant.RefreshToken = tok.RefreshToken
	}
	return grant, nil
}

// CurrentlyPlaying reads the account's current playback with accessToken.
func (s *SpotifyService) CurrentlyPlaying(ctx context.Context, accessToken string) (models.Playback, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec := &statusRecorder{base: s.httpClient.Transport}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   rec,
		},
		Timeout: s.httpClient.Timeout,
	}

	var opts []spotify.ClientOption
	if s.apiURL != "" {
		opts = append(opts, spotify.WithBaseURL(s.apiURL))
	}
	client := spotify.New(httpClient, opts...)

	current, err := client.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, s.playbackError(err, rec.last())
	}

	return snapshotFrom(current, rec.last()), nil
}

// snapshotFrom maps the Web API shape to the simplified device shape.
//
// Only a 204 (no active device) is reported as not playing. A 200 without a track
// item, as sent for episodes and ads, keeps is_playing and leaves the item fields absent.
func snapshotFrom(current *spotify.CurrentlyPlaying, status int) models.Playback {
	if current == nil || status == http.StatusNoContent {
		return models.NotPlaying{}
	}
	if current.Item == nil {
		return models.PlaybackSnapshot{IsPlaying: current.Playing}
	}

	item := current.Item
	snap := models.PlaybackSnapshot{
		IsPlaying:  current.Playing,
		Title:      models.NonEmpty(item.Name),
		Album:      models.NonEmpty(item.Album.Name),
		ProgressMs: models.Some(int(current.Progress)),
		DurationMs: models.Some(int(item.Duration)),
	}
	if len(item.Artists) > 0 {
		snap.Artist = models.NonEmpty(item.Artists[0].Name)
	}
	if len(item.Album.Images) > 0 {
		snap.AlbumArt = models.NonEmpty(item.Album.Images[0].URL)
	}
	return snap
}

// tokenContext bounds a token request and routes it through a status recorder.
func (s *SpotifyService) tokenContext(ctx context.Context) (context.Context, *statusRecorder, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	rec := &statusRecorder{base: s.httpClient.Transport}
	client := &http.Client{Transport: rec, Timeout: s.httpClient.Timeout}
	return context.WithValue(ctx, oauth2.HTTPClient, client), rec, cancel
}

// tokenError turns an oauth2 failure into a [ProviderError] or an unavailable error.
//
// status is the last token endpoint response seen, or 0 when none arrived.
func (s *SpotifyService) tokenError(op string, err error, status int) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &ProviderError{Op: op, Status: re.Response.StatusCode, Body: string(re.Body), Code: re.ErrorCode}
	}
	// A 2xx answer the oauth2 package could not use (no access token, bad body) is the provider's fault.
	if status >= 200 && status < 300 {
		return &ProviderError{Op: op, Status: status, Body: err.Error()}
	}
	return unavailable(op, err)
}

func (s *SpotifyService) playbackError(err error, status int) error {
	var se spotify.Error
	if errors.As(err, &se) && se.Status != 0 {
		return &ProviderError{Op: "currently playing", Status: se.Status, Body: se.Message}
	}
	if status >= 400 {
		return &ProviderError{Op: "currently playing", Status: status, Body: err.Error()}
	}
	return unavailable("currently playing", err)
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, shared.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", op, shared.ErrServiceUnavailable, err)
}

func expiresIn(tok *oauth2.Token) int {
	if tok.ExpiresIn > 0 {
		return int(tok.ExpiresIn)
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return int(time.Until(tok.Expiry).Round(time.Second).Seconds())
}

// statusRecorder remembers the last response status so bodiless errors can still be classified.
type statusRecorder struct {
	base   http.RoundTripper
	status atomic.Int32
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := r.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if resp != nil {
		r.status.Store(int32(resp.StatusCode))
	}
	return resp, err
}

func (r *statusRecorder) last() int {
	return int(r.status.Load())
}
