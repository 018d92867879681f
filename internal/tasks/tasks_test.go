package tasks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/spotlink/internal/models"
	"github.com/desertthunder/spotlink/internal/services"
	"github.com/desertthunder/spotlink/internal/shared"
)

type mockLinkAPI struct {
	mu sync.Mutex

	credential    string
	credentialErr error
	grants        []models.AccessGrant
	refreshErr    error
	validAccess   map[string]bool
	playback      models.Playback
	playbackErr   error

	credentialCalls int
	refreshCalls    []string
	playbackCalls   []string
}

func (m *mockLinkAPI) Credential(ctx context.Context, deviceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentialCalls++
	return m.credential, m.credentialErr
}

func (m *mockLinkAPI) Refresh(ctx context.Context, refreshToken string) (models.AccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCalls = append(m.refreshCalls, refreshToken)
	if m.refreshErr != nil {
		return models.AccessGrant{}, m.refreshErr
	}
	if len(m.grants) == 0 {
		return models.AccessGrant{}, errors.New("no grant configured")
	}
	grant := m.grants[0]
	m.grants = m.grants[1:]
	if m.validAccess == nil {
		m.validAccess = map[string]bool{}
	}
	m.validAccess[grant.AccessToken] = true
	return grant, nil
}

func (m *mockLinkAPI) NowPlaying(ctx context.Context, accessToken string) (models.Playback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbackCalls = append(m.playbackCalls, accessToken)
	if !m.validAccess[accessToken] {
		return nil, &services.APIError{StatusCode: http.StatusUnauthorized, Kind: "unauthorized"}
	}
	if m.playbackErr != nil {
		return nil, m.playbackErr
	}
	if m.playback == nil {
		return models.NotPlaying{}, nil
	}
	return m.playback, nil
}

func grant(at string, expiry time.Time) models.AccessGrant {
	return models.AccessGrant{AccessToken: at, ExpiresIn: 3600, Expiry: expiry}
}

func TestPoller(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	logger := shared.NewLogger(io.Discard)

	t.Run("first poll fetches credential and refreshes", func(t *testing.T) {
		api := &mockLinkAPI{credential: "rt", grants: []models.AccessGrant{grant("at1", now.Add(time.Hour))}}
		p := NewPoller(api, logger, PollOpts{DeviceID: "dev-1", Now: clock})

		got, err := p.Poll(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Playing() {
			t.Error("expected not playing")
		}
		if api.credentialCalls != 1 || len(api.refreshCalls) != 1 || api.refreshCalls[0] != "rt" {
			t.Errorf("unexpected calls: %d credential, %v refresh", api.credentialCalls, api.refreshCalls)
		}

		if _, err := p.Poll(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if api.credentialCalls != 1 || len(api.refreshCalls) != 1 {
			t.Error("cached tokens should be reused")
		}
	})

	t.Run("refreshes within skew of expiry", func(t *testing.T) {
		api := &mockLinkAPI{credential: "rt", grants: []models.AccessGrant{
			grant("at1", now.Add(30*time.Second)),
			grant("at2", now.Add(time.Hour)),
		}}
		p := NewPoller(api, logger, PollOpts{DeviceID: "dev-1", Now: clock})

		if _, err := p.Poll(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := p.Poll(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(api.refreshCalls) != 2 {
			t.Errorf("expected proactive refresh, got %d refreshes", len(api.refreshCalls))
		}
		if last := api.playbackCalls[len(api.playbackCalls)-1]; last != "at2" {
			t.Errorf("expected at2, got %s", last)
		}
	})

	t.Run("refreshes once on 401", func(t *testing.T) {
		api := &mockLinkAPI{credential: "rt", grants: []models.AccessGrant{
			grant("at1", now.Add(time.Hour)),
			grant("at2", now.Add(time.Hour)),
		}}
		p := NewPoller(api, logger, PollOpts{DeviceID: "dev-1", Now: clock})
		if _, err := p.Poll(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		api.mu.Lock()
		delete(api.validAccess, "at1")
		api.mu.Unlock()

		if _, err := p.Poll(ctx); err != nil {
			t.Fatalf("expected reactive refresh to recover, got %v", err)
		}
		if len(api.refreshCalls) != 2 {
			t.Errorf("expected 2 refreshes, got %d", len(api.refreshCalls))
		}
	})

	t.Run("adopts rotated refresh token", func(t *testing.T) {
		rotated := grant("at1", now.Add(30*time.Second))
		rotated.RefreshToken = "rt2"
		api := &mockLinkAPI{credential: "rt", grants: []models.AccessGrant{rotated, grant("at2", now.Add(time.Hour))}}
		p := NewPoller(api, logger, PollOpts{DeviceID: "dev-1", Now: clock})

		p.Poll(ctx)
		p.Poll(ctx)
		if len(api.refreshCalls) != 2 || api.refreshCalls[1] != "rt2" {
			t.Errorf("expected rotated token used, got %v", api.refreshCalls)
		}
	})

	t.Run("unlinked device", func(t *testing.T) {
		api := &mockLinkAPI{credentialErr: &services.APIError{StatusCode: http.StatusNotFound, Kind: "credential_not_found"}}
		p := NewPoller(api, logger, PollOpts{DeviceID: "dev-1", Now: clock, Interval: time.Millisecond})

		err := p.Run(ctx, nil, nil)
		if !errors.Is(err, ErrNotLinked) {
			t.Errorf("expected ErrNotLinked, got %v", err)
		}
	})

	t.Run("rejected refresh token is fetched again", func(t *testing.T) {
		api := &mockLinkAPI{credential: "rt", refreshErr: &services.APIError{StatusCode: http.StatusBadRequest, Kind: "provider_exchange_failed"}}
		p := NewPoller(api, logger, PollOpts{DeviceID: "dev-1", Now: clock})

		if _, err := p.Poll(ctx); err == nil {
			t.Fatal("expected refresh error")
		}
		p.Poll(ctx)
		if api.credentialCalls != 2 {
			t.Errorf("expected credential refetch, got %d calls", api.credentialCalls)
		}
	})

	t.Run("Run emits playback and progress", func(t *testing.T) {
		snap := models.PlaybackSnapshot{IsPlaying: true, Title: models.Some("Song"), Artist: models.Some("Artist")}
		api := &mockLinkAPI{credential: "rt", grants: []models.AccessGrant{grant("at1", now.Add(time.Hour))}, playback: snap}
		p := NewPoller(api, logger, PollOpts{DeviceID: "dev-1", Now: clock, Interval: time.Millisecond, MaxPolls: 3})

		out := make(chan models.Playback, 3)
		progress := make(chan ProgressUpdate, 20)
		if err := p.Run(ctx, out, progress); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		close(out)
		close(progress)

		count := 0
		for pb := range out {
			count++
			if !pb.Playing() {
				t.Error("expected playing snapshot")
			}
		}
		if count != 3 {
			t.Errorf("expected 3 snapshots, got %d", count)
		}

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if len(phases) == 0 || phases[0] != FetchCredential {
			t.Errorf("expected credential fetch first, got %v", phases)
		}
		if phases[len(phases)-1] != FetchPlayback {
			t.Errorf("expected playback last, got %v", phases)
		}
	})

	t.Run("Run continues after transient failure", func(t *testing.T) {
		api := &mockLinkAPI{credential: "rt", grants: []models.AccessGrant{grant("at1", now.Add(time.Hour))}, playbackErr: &services.APIError{StatusCode: http.StatusServiceUnavailable}}
		p := NewPoller(api, logger, PollOpts{DeviceID: "dev-1", Now: clock, Interval: time.Millisecond, MaxPolls: 2})

		progress := make(chan ProgressUpdate, 20)
		if err := p.Run(ctx, nil, progress); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		close(progress)

		backoffs := 0
		for u := range progress {
			if u.Phase == Backoff {
				backoffs++
				if u.Err == nil {
					t.Error("backoff update should carry the error")
				}
			}
		}
		if backoffs != 2 {
			t.Errorf("expected 2 backoffs, got %d", backoffs)
		}
	})

	t.Run("Run stops on cancel", func(t *testing.T) {
		api := &mockLinkAPI{credential: "rt", grants: []models.AccessGrant{grant("at1", now.Add(time.Hour))}}
		p := NewPoller(api, logger, PollOpts{DeviceID: "dev-1", Now: clock, Interval: time.Hour})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- p.Run(ctx, nil, nil) }()

		time.Sleep(20 * time.Millisecond)
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("expected nil on cancel, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("poller did not stop")
		}
	})
}

func TestPhaseString(t *testing.T) {
	tests := map[Phase]string{
		FetchCredential: "fetch_credential",
		RefreshToken:    "refresh_token",
		FetchPlayback:   "fetch_playback",
		Backoff:         "backoff",
		Phase(99):       "",
	}
	for phase, want := range tests {
		if got := phase.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
