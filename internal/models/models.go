package models

import "time"

// UserProfile represents the authenticated Spotify account.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
	Followers   int    `json:"followers"`
}

// Track represents a playable track.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	DurationMS int    `json:"duration_ms"`
	URI        string `json:"uri"`
}

// Playlist represents playlist metadata.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
}

// Device represents a Spotify Connect playback endpoint.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Kind          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	VolumePercent int    `json:"volume_percent"`
}

// KnownDevice is a persisted record of a device the account has routed
// audio to, used to populate the device picker without a network call.
type KnownDevice struct {
	ID         string
	Sequence   int
	DeviceID   string
	Name       string
	Kind       string
	IsActive   bool
	LastSeenAt time.Time
}

// RepeatMode enumerates the player repeat setting.
type RepeatMode string

const (
	RepeatOff     RepeatMode = "off"
	RepeatContext RepeatMode = "context"
	RepeatTrack   RepeatMode = "track"
)

// ValidRepeatMode reports whether s names a repeat mode the player accepts.
func ValidRepeatMode(s string) bool {
	switch RepeatMode(s) {
	case RepeatOff, RepeatContext, RepeatTrack:
		return true
	}
	return false
}

// Disallows is the capability map pushed with every player state. A true
// value means the named command is currently invalid and must not be issued.
type Disallows struct {
	Pausing         bool `json:"pausing"`
	Resuming        bool `json:"resuming"`
	Seeking         bool `json:"seeking"`
	SkippingNext    bool `json:"skipping_next"`
	SkippingPrev    bool `json:"skipping_prev"`
	TogglingShuffle bool `json:"toggling_shuffle"`
	TogglingRepeat  bool `json:"toggling_repeat_context"`
}

// TrackWindow holds the current track and its neighbors.
type TrackWindow struct {
	Current  *Track  `json:"current_track"`
	Previous []Track `json:"previous_tracks"`
	Next     []Track `json:"next_tracks"`
}

// PlayerState is the playback snapshot pushed by the player SDK. Consumers
// overwrite their copy on every update; there is no client-side merging.
type PlayerState struct {
	Paused      bool        `json:"paused"`
	PositionMS  int         `json:"position"`
	DurationMS  int         `json:"duration"`
	Shuffle     bool        `json:"shuffle"`
	Repeat      RepeatMode  `json:"repeat_mode"`
	TrackWindow TrackWindow `json:"track_window"`
	Disallows   Disallows   `json:"disallows"`
}

// CanSkipPrev reports whether the previous-track command is valid: the
// capability flag must allow it or there must be history to skip back to.
func (s *PlayerState) CanSkipPrev() bool {
	if s == nil {
		return false
	}
	return !s.Disallows.SkippingPrev || len(s.TrackWindow.Previous) > 0
}

// CanSkipNext reports whether the next-track command is valid.
func (s *PlayerState) CanSkipNext() bool {
	if s == nil {
		return false
	}
	return !s.Disallows.SkippingNext
}

// CanSeek reports whether seeking is valid.
func (s *PlayerState) CanSeek() bool {
	if s == nil {
		return false
	}
	return !s.Disallows.Seeking
}
