package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlink/internal/linking"
	"github.com/desertthunder/spotlink/internal/shared"
)

const maxBodyBytes = 64 << 10

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	ProviderStatus int    `json:"providerStatus,omitempty"`
	Details        string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// bodyFor renders err for clients. Storage failures expose only their classified kind.
func bodyFor(err error) (int, errorBody) {
	le, ok := linking.AsError(err)
	if !ok {
		return http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal server error"}
	}

	body := errorBody{Error: string(le.Kind), Message: le.Public()}
	switch le.Kind {
	case linking.KindProviderExchangeFailed, linking.KindUpstreamUnavailable, linking.KindUnauthorized:
		body.ProviderStatus = le.Status
		body.Details = le.Body
	case linking.KindAuthorizationDenied:
		body.Details = le.Body
	case linking.KindStorageFailed, linking.KindPersistenceFailed:
		body.Details = string(le.StoreKind)
	}
	return le.HTTPStatus(), body
}

func writeError(w http.ResponseWriter, r *http.Request, logger *log.Logger, err error) {
	status, body := bodyFor(err)
	if status >= 500 {
		logger.Error("request failed", "path", r.URL.Path, "kind", body.Error, "request_id", RequestIDFrom(r.Context()), "err", err)
	} else {
		logger.Debug("request rejected", "path", r.URL.Path, "kind", body.Error, "err", err)
	}
	writeJSON(w, status, body)
}

// requestParams merges the query string with a JSON or form body. Body values win.
//
// JSON bodies may hold strings, numbers or booleans; nested values are rejected.
func requestParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	values := r.URL.Query()
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return values, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		for k, vs := range r.PostForm {
			values[k] = vs
		}
		return values, nil
	}

	var raw map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			values.Set(k, v)
		case json.Number:
			values.Set(k, v.String())
		case bool:
			values.Set(k, fmt.Sprint(v))
		case nil:
		default:
			return nil, fmt.Errorf("%w: field %q must be a scalar", shared.ErrInvalidInput, k)
		}
	}
	return values, nil
}

// firstOf returns the first non-empty value among keys.
func firstOf(values url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(values.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: "request body is malformed", Details: err.Error()})
}

// wantsJSON reports whether the caller asked for JSON rather than a browser page.
func wantsJSON(r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
