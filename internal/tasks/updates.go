package tasks

import (
	"fmt"

	"github.com/desertthunder/spotlink/internal/models"
)

// ProgressUpdate represents a progress event during polling.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Poll cycle the update belongs to
	Message string // Human-readable message for display
	Err     error  // Set when the phase failed
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchCredential Phase = iota
	RefreshToken
	FetchPlayback
	Backoff
)

func (p Phase) String() string {
	switch p {
	case FetchCredential:
		return "fetch_credential"
	case RefreshToken:
		return "refresh_token"
	case FetchPlayback:
		return "fetch_playback"
	case Backoff:
		return "backoff"
	default:
		return ""
	}
}

func credentialUpdate(step int, deviceID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchCredential,
		Step:    step,
		Message: fmt.Sprintf("Fetching credential for %s...", deviceID),
	}
}

func refreshUpdate(step int, reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RefreshToken,
		Step:    step,
		Message: fmt.Sprintf("Refreshing access token (%s)...", reason),
	}
}

func playbackUpdate(step int, playback models.Playback) ProgressUpdate {
	msg := "Nothing playing"
	if snap, ok := playback.(models.PlaybackSnapshot); ok {
		msg = fmt.Sprintf("%s - %s", snap.Title.OrElse("Unknown"), snap.Artist.OrElse("Unknown"))
		if !snap.IsPlaying {
			msg += " (paused)"
		}
	}
	return ProgressUpdate{
		Phase:   FetchPlayback,
		Step:    step,
		Message: msg,
		Data:    playback,
	}
}

func backoffUpdate(step int, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Backoff,
		Step:    step,
		Message: "Poll failed, waiting for next cycle",
		Err:     err,
	}
}
