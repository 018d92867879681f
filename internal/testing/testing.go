// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/desertthunder/spotlink/internal/models"
)

// MockProvider is a test double for services.Service. Nil funcs return zero values.
type MockProvider struct {
	ExchangeFn func(ctx context.Context, code string) (models.TokenPayload, error)
	RefreshFn  func(ctx context.Context, refreshToken string) (models.AccessGrant, error)
	PlaybackFn func(ctx context.Context, accessToken string) (models.Playback, error)

	AuthURLPrefix string

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockProvider) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how many times the named method ran.
func (m *MockProvider) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockProvider) AuthorizationURL(state string) string {
	m.record("AuthorizationURL")
	prefix := m.AuthURLPrefix
	if prefix == "" {
		prefix = "https://accounts.example.com/authorize?state="
	}
	return prefix + state
}

func (m *MockProvider) Exchange(ctx context.Context, code string) (models.TokenPayload, error) {
	m.record("Exchange")
	if m.ExchangeFn == nil {
		return models.TokenPayload{}, nil
	}
	return m.ExchangeFn(ctx, code)
}

func (m *MockProvider) Refresh(ctx context.Context, refreshToken string) (models.AccessGrant, error) {
	m.record("Refresh")
	if m.RefreshFn == nil {
		return models.AccessGrant{}, nil
	}
	return m.RefreshFn(ctx, refreshToken)
}

func (m *MockProvider) CurrentlyPlaying(ctx context.Context, accessToken string) (models.Playback, error) {
	m.record("CurrentlyPlaying")
	if m.PlaybackFn == nil {
		return models.NotPlaying{}, nil
	}
	return m.PlaybackFn(ctx, accessToken)
}

func (m *MockProvider) Name() string { return "mock" }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}
