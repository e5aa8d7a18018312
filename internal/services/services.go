// Package services implements the Spotify Web API client.
//
// [SpotifyService] is the single concrete implementation; the [LibraryService]
// and [PlayerAPI] interfaces split its surface so consumers depend only on the
// slice they use. All requests flow through one rate-limited, token-sourced
// request path.
//
// API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"

	"github.com/soundctl/soundctl/internal/models"
)

// LibraryService exposes read access to the authenticated user's account and library.
type LibraryService interface {
	Me(ctx context.Context) (*models.UserProfile, error)
	TopTracks(ctx context.Context, limit int, timeRange string) ([]models.Track, error)
	Playlists(ctx context.Context) ([]models.Playlist, error)
	SavedTracks(ctx context.Context, limit, offset int) ([]models.Track, error)
}

// PlayerAPI exposes the Spotify Connect player endpoints.
type PlayerAPI interface {
	Devices(ctx context.Context) ([]models.Device, error)
	TransferPlayback(ctx context.Context, deviceID string, play bool) error
	Play(ctx context.Context, deviceID string, uris ...string) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SeekTo(ctx context.Context, positionMS int) error
	SetShuffle(ctx context.Context, shuffle bool) error
	SetRepeat(ctx context.Context, mode models.RepeatMode) error
	PlaybackState(ctx context.Context) (*PlaybackSnapshot, error)
}

// PlaybackSnapshot is the server-side view of the active player, as reported
// by the playback state endpoint. A nil snapshot means nothing is playing.
type PlaybackSnapshot struct {
	Device       models.Device
	Playing      bool
	ProgressMS   int
	ShuffleState bool
	RepeatState  models.RepeatMode
	Track        *models.Track
	Actions      models.Disallows
}
