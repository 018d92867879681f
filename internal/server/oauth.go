package server

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlink/internal/linking"
	"github.com/desertthunder/spotlink/internal/models"
)

// callbackResult is the JSON answer to a completed exchange.
type callbackResult struct {
	DeviceID string `json:"deviceId"`
	models.TokenPayload
}

// OAuthHandler serves the browser side of linking: the login redirect and the provider callback.
type OAuthHandler struct {
	linker     *linking.Linker
	logger     *log.Logger
	successURL string
}

// NewOAuthHandler creates an [OAuthHandler]. An empty successURL renders a result page instead of redirecting.
func NewOAuthHandler(linker *linking.Linker, logger *log.Logger, successURL string) *OAuthHandler {
	return &OAuthHandler{linker: linker, logger: logger, successURL: successURL}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []Route {
	return []Route{
		{http.MethodGet, "/oauth/login", http.HandlerFunc(h.login)},
		{http.MethodGet, "/oauth/callback", http.HandlerFunc(h.callback)},
		{http.MethodPost, "/oauth/callback", http.HandlerFunc(h.callback)},
	}
}

// login registers the device and sends the browser to the provider, or straight to success when already linked.
func (h *OAuthHandler) login(w http.ResponseWriter, r *http.Request) {
	deviceID := firstOf(r.URL.Query(), deviceIDKeys...)

	reg, err := h.linker.Register(r.Context(), deviceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if reg.Action == models.ActionLinked {
		h.succeed(w, r, deviceID, "This device is already linked.")
		return
	}
	http.Redirect(w, r, reg.AuthorizationURL, http.StatusFound)
}

// callback completes the exchange from the provider redirect or a forwarding client.
//
// POST requests and requests accepting JSON get the token payload. Browsers are redirected
// to the success URL or shown a result page.
func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(w, r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	result, err := h.linker.Exchange(r.Context(), linking.CallbackParams{
		Code:             firstOf(params, "code"),
		State:            firstOf(params, "state"),
		Error:            firstOf(params, "error"),
		ErrorDescription: firstOf(params, "error_description"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, callbackResult{DeviceID: result.DeviceID, TokenPayload: result.Token})
		return
	}
	h.succeed(w, r, result.DeviceID, "You can close this window and return to your device.")
}

func (h *OAuthHandler) succeed(w http.ResponseWriter, r *http.Request, deviceID, message string) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, models.Registration{Action: models.ActionLinked})
		return
	}

	if h.successURL != "" {
		target, err := url.Parse(h.successURL)
		if err == nil {
			q := target.Query()
			q.Set("deviceId", deviceID)
			target.RawQuery = q.Encode()
			http.Redirect(w, r, target.String(), http.StatusFound)
			return
		}
		h.logger.Warn("invalid success url", "url", h.successURL, "err", err)
	}

	renderResult(w, h.logger, http.StatusOK, resultPage{
		Title:   "Authorization Successful",
		Message: message,
		OK:      true,
	})
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if wantsJSON(r) {
		writeError(w, r, h.logger, err)
		return
	}

	status, body := bodyFor(err)
	if status >= 500 {
		h.logger.Error("linking failed", "path", r.URL.Path, "kind", body.Error, "request_id", RequestIDFrom(r.Context()), "err", err)
	}

	page := resultPage{Title: "Authorization Failed", Message: body.Message}
	var le *linking.Error
	if errors.As(err, &le) && le.Recoverable() {
		page.Hint = "Start linking again from your device."
	}
	renderResult(w, h.logger, status, page)
}

type resultPage struct {
	Title   string
	Message string
	Hint    string
	OK      bool
}

var resultTemplate = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { margin: 0 0 1rem 0; }
        h1.ok { color: #1DB954; }
        h1.err { color: #E22134; }
        p { color: #666; margin: 0.25rem 0; }
    </style>
</head>
<body>
    <div class="container">
        {{if .OK}}<h1 class="ok">✓ {{.Title}}</h1>{{else}}<h1 class="err">{{.Title}}</h1>{{end}}
        <p>{{.Message}}</p>
        {{with .Hint}}<p>{{.}}</p>{{end}}
    </div>
</body>
</html>
`))

func renderResult(w http.ResponseWriter, logger *log.Logger, status int, page resultPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := resultTemplate.Execute(w, page); err != nil {
		logger.Error("render result page", "err", err)
	}
}
