// Client for the linking server's HTTP surface, as used by devices
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/spotlink/internal/models"
	"github.com/desertthunder/spotlink/internal/shared"
)

// LinkClient makes requests to a linking server on behalf of a device.
type LinkClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLinkClient creates a client for the server at baseURL.
func NewLinkClient(baseURL string, client *http.Client) *LinkClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3000"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &LinkClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// APIError is a non-2xx answer from the linking server.
type APIError struct {
	StatusCode int
	Kind       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("server returned %d: %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *LinkClient) Get(ctx context.Context, path string, header http.Header) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path, nil, header)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *LinkClient) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data, nil)
}

func (a *LinkClient) do(ctx context.Context, method, path string, data []byte, header http.Header) (*APIResponse, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}

	var jsonData any
	if err := json.Unmarshal(respBody, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// decode checks the status and unmarshals a 2xx JSON body into v.
func decode(resp *APIResponse, v any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if resp.IsJSON {
			_ = json.Unmarshal(resp.Body, apiErr)
		}
		return apiErr
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Register registers deviceID and returns the server's decision.
func (a *LinkClient) Register(ctx context.Context, deviceID string) (models.Registration, error) {
	payload, err := json.Marshal(map[string]string{"deviceId": deviceID})
	if err != nil {
		return models.Registration{}, err
	}

	resp, err := a.Post(ctx, "/register", payload)
	if err != nil {
		return models.Registration{}, err
	}

	var reg models.Registration
	if err := decode(resp, &reg); err != nil {
		return models.Registration{}, err
	}
	return reg, nil
}

// Credential fetches the stored refresh token for deviceID.
func (a *LinkClient) Credential(ctx context.Context, deviceID string) (string, error) {
	resp, err := a.Get(ctx, "/credential?deviceId="+url.QueryEscape(deviceID), nil)
	if err != nil {
		return "", err
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decode(resp, &body); err != nil {
		return "", err
	}
	return body.RefreshToken, nil
}

// Refresh exchanges refreshToken for a fresh access token via the server.
func (a *LinkClient) Refresh(ctx context.Context, refreshToken string) (models.AccessGrant, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return models.AccessGrant{}, err
	}

	resp, err := a.Post(ctx, "/token/refresh", payload)
	if err != nil {
		return models.AccessGrant{}, err
	}

	var grant models.AccessGrant
	if err := decode(resp, &grant); err != nil {
		return models.AccessGrant{}, err
	}
	return grant, nil
}

// NowPlaying reads the current playback with accessToken.
func (a *LinkClient) NowPlaying(ctx context.Context, accessToken string) (models.Playback, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.Get(ctx, "/now-playing", header)
	if err != nil {
		return nil, err
	}
	if err := decode(resp, nil); err != nil {
		return nil, err
	}

	playback, err := models.DecodePlayback(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return playback, nil
}
