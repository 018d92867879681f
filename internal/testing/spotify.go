package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

const (
	FakeClientID     = "test_client_id"
	FakeClientSecret = "test_client_secret"
)

// FakeSpotify serves the accounts token endpoint and the currently-playing endpoint.
//
// Authorization codes are single-use, as they are upstream.
type FakeSpotify struct {
	Server *httptest.Server

	mu             sync.Mutex
	codes          map[string]map[string]any
	refreshes      map[string]map[string]any
	tokenFailure   *cannedResponse
	playingStatus  int
	playingBody    string
	validAccess    map[string]bool
	calls          map[string]int
	lastTokenForms []url.Values
}

type cannedResponse struct {
	status int
	body   string
}

// NewFakeSpotify starts a fake provider that is closed when the test ends.
func NewFakeSpotify(t *testing.T) *FakeSpotify {
	t.Helper()

	f := &FakeSpotify{
		codes:         make(map[string]map[string]any),
		refreshes:     make(map[string]map[string]any),
		validAccess:   make(map[string]bool),
		calls:         make(map[string]int),
		playingStatus: http.StatusNoContent,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/token", f.handleToken)
	mux.HandleFunc("/v1/me/player/currently-playing", f.handlePlaying)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeSpotify) AuthURL() string  { return f.Server.URL + "/authorize" }
func (f *FakeSpotify) TokenURL() string { return f.Server.URL + "/api/token" }
func (f *FakeSpotify) APIURL() string   { return f.Server.URL + "/v1/" }

// IssueCode makes code exchangeable once. An empty refreshToken is omitted from the response.
func (f *FakeSpotify) IssueCode(code, accessToken, refreshToken string) {
	body := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"scope":        "user-read-currently-playing user-read-playback-state user-read-private",
		"expires_in":   3600,
	}
	if refreshToken != "" {
		body["refresh_token"] = refreshToken
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[code] = body
	f.validAccess[accessToken] = true
}

// AcceptRefresh makes refreshToken redeemable for accessToken. A non-empty rotated is returned as the new refresh token.
func (f *FakeSpotify) AcceptRefresh(refreshToken, accessToken, rotated string) {
	body := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if rotated != "" {
		body["refresh_token"] = rotated
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes[refreshToken] = body
	f.validAccess[accessToken] = true
}

// FailTokens makes every token request answer status with body.
func (f *FakeSpotify) FailTokens(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenFailure = &cannedResponse{status: status, body: body}
}

// SetPlaying sets the currently-playing answer for valid access tokens.
func (f *FakeSpotify) SetPlaying(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playingStatus = status
	f.playingBody = body
}

// RevokeAccess makes accessToken answer 401.
func (f *FakeSpotify) RevokeAccess(accessToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.validAccess, accessToken)
}

// Calls returns the number of requests for "exchange", "refresh" or "playing".
func (f *FakeSpotify) Calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

// LastTokenForm returns the most recent token request form.
func (f *FakeSpotify) LastTokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lastTokenForms) == 0 {
		return nil
	}
	return f.lastTokenForms[len(f.lastTokenForms)-1]
}

func (f *FakeSpotify) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, secret, ok := r.BasicAuth()
	if !ok || id != FakeClientID || secret != FakeClientSecret {
		writeFakeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
		return
	}

	if err := r.ParseForm(); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastTokenForms = append(f.lastTokenForms, r.PostForm)

	switch grant := r.PostForm.Get("grant_type"); grant {
	case "authorization_code":
		f.calls["exchange"]++
		if f.tokenFailure != nil {
			writeFakeRaw(w, f.tokenFailure.status, f.tokenFailure.body)
			return
		}
		code := r.PostForm.Get("code")
		body, ok := f.codes[code]
		if !ok {
			writeFakeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Invalid authorization code"})
			return
		}
		delete(f.codes, code)
		writeFakeJSON(w, http.StatusOK, body)
	case "refresh_token":
		f.calls["refresh"]++
		if f.tokenFailure != nil {
			writeFakeRaw(w, f.tokenFailure.status, f.tokenFailure.body)
			return
		}
		body, ok := f.refreshes[r.PostForm.Get("refresh_token")]
		if !ok {
			writeFakeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Invalid refresh token"})
			return
		}
		writeFakeJSON(w, http.StatusOK, body)
	default:
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type", "error_description": grant})
	}
}

func (f *FakeSpotify) handlePlaying(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["playing"]++

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !f.validAccess[token] {
		writeFakeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"status": 401, "message": "The access token expired"}})
		return
	}

	if f.playingStatus == http.StatusNoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeFakeRaw(w, f.playingStatus, f.playingBody)
}

// CurrentlyPlayingJSON renders a Web API currently-playing body.
func CurrentlyPlayingJSON(playing bool, title, artist, album, art string) string {
	images := []map[string]any{}
	if art != "" {
		images = append(images, map[string]any{"url": art, "height": 640, "width": 640})
	}
	artists := []map[string]any{}
	if artist != "" {
		artists = append(artists, map[string]any{"id": "a1", "name": artist})
	}

	body := map[string]any{
		"timestamp":   1700000000000,
		"progress_ms": 42000,
		"is_playing":  playing,
		"item": map[string]any{
			"id":          "t1",
			"name":        title,
			"duration_ms": 215000,
			"artists":     artists,
			"album":       map[string]any{"id": "al1", "name": album, "images": images},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("marshal currently playing: %v", err))
	}
	return string(data)
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFakeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
