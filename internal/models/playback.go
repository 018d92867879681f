package models

import (
	"bytes"
	"encoding/json"
)

// Optional holds a value the provider may omit.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] { return Optional[T]{value: v, ok: true} }

// None is the absent value.
func None[T any]() Optional[T] { return Optional[T]{} }

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.ok }

// IsSome reports whether a value is present.
func (o Optional[T]) IsSome() bool { return o.ok }

// OrElse returns the value, or fallback when absent.
func (o Optional[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// NonEmpty returns Some(s) unless s is empty.
func NonEmpty(s string) Optional[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// Playback is either [NotPlaying] or a [PlaybackSnapshot].
type Playback interface {
	Playing() bool
	playback()
}

// NotPlaying reports that the account has no active playback.
type NotPlaying struct{}

func (NotPlaying) Playing() bool { return false }
func (NotPlaying) playback()     {}

func (NotPlaying) MarshalJSON() ([]byte, error) {
	return []byte(`{"isPlaying":false}`), nil
}

// PlaybackSnapshot is the simplified currently-playing shape sent to devices.
//
// Artist holds the first listed artist only.
type PlaybackSnapshot struct {
	IsPlaying bool
	Title     Optional[string]
	Artist    Optional[string]
	Album     Optional[string]
	AlbumArt  Optional[string]
	// ProgressMs and DurationMs are omitted from JSON when the provider leaves them out.
	ProgressMs Optional[int]
	DurationMs Optional[int]
}

func (s PlaybackSnapshot) Playing() bool { return s.IsPlaying }
func (PlaybackSnapshot) playback()       {}

// MarshalJSON drops absent fields instead of emitting null.
func (s PlaybackSnapshot) MarshalJSON() ([]byte, error) {
	out := map[string]any{"isPlaying": s.IsPlaying}
	put := func(key string, v Optional[string]) {
		if val, ok := v.Get(); ok {
			out[key] = val
		}
	}
	put("title", s.Title)
	put("artist", s.Artist)
	put("album", s.Album)
	put("albumArt", s.AlbumArt)
	if v, ok := s.ProgressMs.Get(); ok {
		out["progressMs"] = v
	}
	if v, ok := s.DurationMs.Get(); ok {
		out["durationMs"] = v
	}
	return json.Marshal(out)
}

// playbackWire is the JSON shape shared by both variants.
type playbackWire struct {
	IsPlaying  bool             `json:"isPlaying"`
	Title      Optional[string] `json:"title"`
	Artist     Optional[string] `json:"artist"`
	Album      Optional[string] `json:"album"`
	AlbumArt   Optional[string] `json:"albumArt"`
	ProgressMs Optional[int]    `json:"progressMs"`
	DurationMs Optional[int]    `json:"durationMs"`
}

// DecodePlayback parses the now-playing JSON shape. A body with only isPlaying=false is [NotPlaying].
func DecodePlayback(data []byte) (Playback, error) {
	var w playbackWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if !w.IsPlaying && !w.Title.IsSome() && !w.Artist.IsSome() && !w.Album.IsSome() && !w.AlbumArt.IsSome() {
		return NotPlaying{}, nil
	}
	return PlaybackSnapshot{
		IsPlaying:  w.IsPlaying,
		Title:      w.Title,
		Artist:     w.Artist,
		Album:      w.Album,
		AlbumArt:   w.AlbumArt,
		ProgressMs: w.ProgressMs,
		DurationMs: w.DurationMs,
	}, nil
}
