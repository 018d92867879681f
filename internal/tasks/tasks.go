// package tasks implements the device-side poll loop against the linking server.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/spotlink/internal/models"
	"github.com/desertthunder/spotlink/internal/services"
)

// ErrNotLinked means the server holds no credential for the device.
var ErrNotLinked = errors.New("device is not linked")

const (
	defaultInterval    = 5 * time.Second
	defaultRefreshSkew = 60 * time.Second
)

// LinkAPI is the part of the linking server a device talks to.
// [services.LinkClient] implements it.
type LinkAPI interface {
	Credential(ctx context.Context, deviceID string) (string, error)
	Refresh(ctx context.Context, refreshToken string) (models.AccessGrant, error)
	NowPlaying(ctx context.Context, accessToken string) (models.Playback, error)
}

// PollOpts configures a [Poller].
type PollOpts struct {
	DeviceID string
	// Interval between polls (default: 5s).
	Interval time.Duration
	// RefreshSkew refreshes the access token this long before it expires (default: 60s).
	RefreshSkew time.Duration
	// MaxPolls stops after this many cycles. Zero polls until the context ends.
	MaxPolls int
	Now      func() time.Time
}

// Poller caches a device's tokens and reads its playback periodically.
//
// The access token is refreshed proactively when it is about to expire and reactively
// when the server answers 401. A rotated refresh token replaces the cached one.
type Poller struct {
	api    LinkAPI
	logger *log.Logger
	opts   PollOpts

	refreshToken string
	grant        models.AccessGrant
}

// NewPoller creates a [Poller] for opts.DeviceID.
func NewPoller(api LinkAPI, logger *log.Logger, opts PollOpts) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.RefreshSkew <= 0 {
		opts.RefreshSkew = defaultRefreshSkew
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{api: api, logger: logger, opts: opts}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run polls until ctx ends or MaxPolls cycles have run, sending each result to out.
//
// Transient failures are reported and retried on the next cycle. [ErrNotLinked] stops the loop.
func (p *Poller) Run(ctx context.Context, out chan<- models.Playback, progress chan<- ProgressUpdate) error {
	limiter := rate.NewLimiter(rate.Every(p.opts.Interval), 1)

	for step := 1; p.opts.MaxPolls <= 0 || step <= p.opts.MaxPolls; step++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		playback, err := p.poll(ctx, step, progress)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrNotLinked) {
				return err
			}
			p.logger.Warn("poll failed", "device", p.opts.DeviceID, "step", step, "err", err)
			sendProgress(progress, backoffUpdate(step, err))
			continue
		}

		sendProgress(progress, playbackUpdate(step, playback))
		if out != nil {
			select {
			case out <- playback:
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// Poll runs one cycle.
func (p *Poller) Poll(ctx context.Context) (models.Playback, error) {
	return p.poll(ctx, 1, nil)
}

func (p *Poller) poll(ctx context.Context, step int, progress chan<- ProgressUpdate) (models.Playback, error) {
	if p.refreshToken == "" {
		sendProgress(progress, credentialUpdate(step, p.opts.DeviceID))
		token, err := p.api.Credential(ctx, p.opts.DeviceID)
		if err != nil {
			if statusOf(err) == http.StatusNotFound {
				return nil, fmt.Errorf("%w: %s", ErrNotLinked, p.opts.DeviceID)
			}
			return nil, fmt.Errorf("failed to fetch credential: %w", err)
		}
		p.refreshToken = token
	}

	if p.grant.ExpiresWithin(p.opts.Now(), p.opts.RefreshSkew) {
		sendProgress(progress, refreshUpdate(step, "expiring"))
		if err := p.refresh(ctx); err != nil {
			return nil, err
		}
	}

	playback, err := p.api.NowPlaying(ctx, p.grant.AccessToken)
	if statusOf(err) == http.StatusUnauthorized {
		sendProgress(progress, refreshUpdate(step, "rejected"))
		if err := p.refresh(ctx); err != nil {
			return nil, err
		}
		playback, err = p.api.NowPlaying(ctx, p.grant.AccessToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playback: %w", err)
	}
	return playback, nil
}

func (p *Poller) refresh(ctx context.Context) error {
	grant, err := p.api.Refresh(ctx, p.refreshToken)
	if err != nil {
		// A revoked refresh token is useless; fetch the stored one again next cycle.
		if status := statusOf(err); status >= 400 && status < 500 {
			p.refreshToken = ""
		}
		p.grant = models.AccessGrant{}
		return fmt.Errorf("failed to refresh access token: %w", err)
	}

	if grant.RefreshToken != "" {
		p.logger.Info("refresh token rotated", "device", p.opts.DeviceID)
		p.refreshToken = grant.RefreshToken
	}
	p.grant = grant
	return nil
}

func statusOf(err error) int {
	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
