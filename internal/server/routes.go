package server

import (
	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlink/internal/linking"
)

// Options configures [NewRouter].
type Options struct {
	Linker     *linking.Linker
	Logger     *log.Logger
	SuccessURL string
	// Limiter throttles mutating routes when set.
	Limiter *RateLimiter
	Checks  []Check
}

// NewRouter wires the linking API behind the standard middleware stack.
func NewRouter(opts Options) *BasicRouter {
	r := NewBasicRouter()

	r.Use(RequestID(), AccessLog(opts.Logger), Recover(opts.Logger))
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware())
	}

	r.Handler(NewHealthHandler(opts.Checks...))
	r.Handler(NewLinkHandler(opts.Linker, opts.Logger))
	r.Handler(NewOAuthHandler(opts.Linker, opts.Logger, opts.SuccessURL))

	return r
}
