package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDevice(t *testing.T) {
	t.Run("NewDevice is unlinked", func(t *testing.T) {
		d := NewDevice("AA11BB22CC33")
		if d.Linked() {
			t.Error("new device should not be linked")
		}
		if d.CreatedAt().IsZero() {
			t.Error("created at should be set")
		}
	})

	t.Run("RestoreDevice with token is linked", func(t *testing.T) {
		d := RestoreDevice("AA11BB22CC33", "rt-1", time.Now(), time.Now())
		if !d.Linked() {
			t.Error("device with refresh token should be linked")
		}
		if d.RefreshToken() != "rt-1" {
			t.Errorf("expected rt-1, got %s", d.RefreshToken())
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			id   string
			want error
		}{
			{id: "AA11BB22CC33"},
			{id: "aa:11:bb:22:cc:33"},
			{id: "", want: ErrEmptyDeviceID},
			{id: "AA 11", want: ErrInvalidDeviceID},
			{id: "AA\n11", want: ErrInvalidDeviceID},
			{id: strings.Repeat("a", 129), want: ErrInvalidDeviceID},
		}

		for _, tt := range tc {
			err := NewDevice(tt.id).Validate()
			if tt.want == nil && err != nil {
				t.Errorf("expected %q to be valid, got %v", tt.id, err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v for %q, got %v", tt.want, tt.id, err)
			}
		}
	})
}

func TestAccessGrantExpiresWithin(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !(AccessGrant{}).ExpiresWithin(now, time.Minute) {
		t.Error("grant without expiry should be treated as expiring")
	}

	g := AccessGrant{Expiry: now.Add(30 * time.Second)}
	if !g.ExpiresWithin(now, time.Minute) {
		t.Error("expected grant expiring in 30s to be within 1m")
	}

	g = AccessGrant{Expiry: now.Add(time.Hour)}
	if g.ExpiresWithin(now, time.Minute) {
		t.Error("expected grant expiring in 1h not to be within 1m")
	}
}

func TestOptional(t *testing.T) {
	if v, ok := Some("x").Get(); !ok || v != "x" {
		t.Errorf("expected Some(x), got %q %v", v, ok)
	}
	if None[string]().IsSome() {
		t.Error("None should not be present")
	}
	if NonEmpty("").IsSome() {
		t.Error("NonEmpty of empty string should be None")
	}
	if got := None[int]().OrElse(7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
}

func TestPlaybackJSON(t *testing.T) {
	t.Run("NotPlaying", func(t *testing.T) {
		data, err := json.Marshal(NotPlaying{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"isPlaying":false}` {
			t.Errorf("unexpected body %s", data)
		}
	})

	t.Run("snapshot omits absent fields", func(t *testing.T) {
		s := PlaybackSnapshot{
			IsPlaying: true,
			Title:     Some("Song"),
			Artist:    Some("Band"),
			Album:     Some("Record"),
		}
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := got["albumArt"]; ok {
			t.Errorf("albumArt should be omitted, got %s", data)
		}
		if got["title"] != "Song" || got["isPlaying"] != true {
			t.Errorf("unexpected body %s", data)
		}
	})

	t.Run("DecodePlayback", func(t *testing.T) {
		p, err := DecodePlayback([]byte(`{"isPlaying":false}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := p.(NotPlaying); !ok {
			t.Errorf("expected NotPlaying, got %T", p)
		}

		p, err = DecodePlayback([]byte(`{"isPlaying":true,"title":"Song","albumArt":"https://i.scdn.co/x"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		snap, ok := p.(PlaybackSnapshot)
		if !ok {
			t.Fatalf("expected PlaybackSnapshot, got %T", p)
		}
		if snap.Artist.IsSome() {
			t.Error("artist should be absent")
		}
		if art, _ := snap.AlbumArt.Get(); art != "https://i.scdn.co/x" {
			t.Errorf("unexpected album art %q", art)
		}

		if _, err := DecodePlayback([]byte(`not json`)); err == nil {
			t.Error("expected decode error")
		}
	})
}
