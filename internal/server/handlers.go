package server

import (
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlink/internal/linking"
)

// deviceIDKeys are the request fields accepted as the device id, in order of preference.
var deviceIDKeys = []string{"deviceId", "device_id", "mac", "id"}

// LinkHandler serves device registration, credentials, refresh and now-playing.
type LinkHandler struct {
	linker *linking.Linker
	logger *log.Logger
}

// NewLinkHandler creates a [LinkHandler].
func NewLinkHandler(linker *linking.Linker, logger *log.Logger) *LinkHandler {
	return &LinkHandler{linker: linker, logger: logger}
}

func (h *LinkHandler) Routes() []Route {
	return []Route{
		{http.MethodPost, "/register", http.HandlerFunc(h.register)},
		{http.MethodGet, "/authorize-url", http.HandlerFunc(h.authorizeURL)},
		{http.MethodGet, "/credential", http.HandlerFunc(h.credential)},
		{http.MethodPost, "/credential", http.HandlerFunc(h.credential)},
		{http.MethodPost, "/token/refresh", http.HandlerFunc(h.refresh)},
		{http.MethodGet, "/now-playing", http.HandlerFunc(h.nowPlaying)},
	}
}

func (h *LinkHandler) register(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(w, r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	reg, err := h.linker.Register(r.Context(), firstOf(params, deviceIDKeys...))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (h *LinkHandler) authorizeURL(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.linker.AuthorizationURL(r.Context(), firstOf(r.URL.Query(), deviceIDKeys...))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorizationUrl": authURL})
}

func (h *LinkHandler) credential(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(w, r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	token, err := h.linker.Credential(r.Context(), firstOf(params, deviceIDKeys...))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"refreshToken": token})
}

func (h *LinkHandler) refresh(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(w, r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	grant, err := h.linker.Refresh(r.Context(), firstOf(params, "refreshToken", "refresh_token"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (h *LinkHandler) nowPlaying(w http.ResponseWriter, r *http.Request) {
	playback, err := h.linker.NowPlaying(r.Context(), bearerToken(r))
	if err != nil {
		if le, ok := linking.AsError(err); ok && le.Kind == linking.KindUnauthorized {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		}
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, playback)
}
