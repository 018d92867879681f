package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/spotlink/internal/linking"
	"github.com/desertthunder/spotlink/internal/repositories"
	"github.com/desertthunder/spotlink/internal/shared"
)

func TestBasicRouter(t *testing.T) {
	t.Run("dispatches by method", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodGet, "/x", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("get")) }))
		r.Handle(http.MethodPost, "/x", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("post")) }))

		for method, want := range map[string]string{http.MethodGet: "get", http.MethodPost: "post"} {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(method, "/x", nil))
			if rec.Body.String() != want {
				t.Errorf("%s: expected %s, got %s", method, want, rec.Body.String())
			}
		}

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/x", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
		if rec.Header().Get("Allow") != "GET, POST" {
			t.Errorf("expected Allow GET, POST, got %q", rec.Header().Get("Allow"))
		}
	})

	t.Run("HEAD falls back to GET", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodGet, "/x", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/x", nil))
		if rec.Code != http.StatusTeapot {
			t.Errorf("expected GET handler, got %d", rec.Code)
		}
	})

	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, req)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mw("first"), mw("second"))
		r.Handle(http.MethodGet, "/x", http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }))
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected order %v", order)
		}
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	t.Run("generates", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
			t.Errorf("expected generated id echoed, got %q and %q", seen, rec.Header().Get(RequestIDHeader))
		}
	})

	t.Run("propagates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "abc-123" {
			t.Errorf("expected abc-123, got %s", seen)
		}
	})
}

func TestAccessLogAndRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := shared.NewLogger(&buf)

	h := AccessLog(logger)(Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"internal"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	out := buf.String()
	if !strings.Contains(out, "handler panic") || !strings.Contains(out, "/explode") {
		t.Errorf("expected panic and access log lines, got %s", out)
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	defer limiter.Close()

	h := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	post := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if post("10.0.0.1:1000") != http.StatusNoContent || post("10.0.0.1:1001") != http.StatusNoContent {
		t.Fatal("burst should be allowed")
	}
	if code := post("10.0.0.1:1002"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	if code := post("10.0.0.2:1000"); code != http.StatusNoContent {
		t.Errorf("other clients should not be limited, got %d", code)
	}

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/credential", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("reads should not be limited, got %d", rec.Code)
		}
	}

	t.Run("disabled", func(t *testing.T) {
		off := NewRateLimiter(0, 0)
		defer off.Close()
		for i := 0; i < 10; i++ {
			if !off.Allow("x") {
				t.Fatal("disabled limiter should allow")
			}
		}
	})
}

func TestErrorBody(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		want       errorBody
	}{
		{
			name:       "provider failure keeps status and body",
			err:        &linking.Error{Kind: linking.KindProviderExchangeFailed, Status: 400, Body: `{"error":"invalid_grant"}`},
			wantStatus: http.StatusBadRequest,
			want:       errorBody{Error: "provider_exchange_failed", Message: "provider rejected the request", ProviderStatus: 400, Details: `{"error":"invalid_grant"}`},
		},
		{
			name:       "storage failure exposes only the kind",
			err:        &linking.Error{Kind: linking.KindStorageFailed, StoreKind: repositories.KindAuthFailed, Err: errTest("password authentication failed for user spotlink")},
			wantStatus: http.StatusInternalServerError,
			want:       errorBody{Error: "storage_failed", Message: "storage unavailable", Details: "auth_failed"},
		},
		{
			name:       "unclassified",
			err:        errTest("oops"),
			wantStatus: http.StatusInternalServerError,
			want:       errorBody{Error: "internal", Message: "internal server error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := bodyFor(tt.err)
			if status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
			if body != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, body)
			}
		})
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
