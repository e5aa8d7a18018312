package main

import (
	"context"
	"fmt"

	"github.com/soundctl/soundctl/internal/models"
	"github.com/soundctl/soundctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// LibraryTopTracks lists the user's top tracks.
func (r *Runner) LibraryTopTracks(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	timeRange := cmd.String("time-range")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if r.library == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	r.logger.Infof("listing top tracks with limit %v over %v", limit, timeRange)

	tracks, err := r.library.TopTracks(ctx, limit, timeRange)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if useJSON {
		return r.writeJSON(tracks, pretty)
	}

	r.writeTracks(tracks)
	return nil
}

// LibraryPlaylists lists the user's playlists.
func (r *Runner) LibraryPlaylists(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if r.library == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	playlists, err := r.library.Playlists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if useJSON {
		return r.writeJSON(playlists, pretty)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		if p.Public {
			r.writePlain("   Visibility: Public\n")
		} else {
			r.writePlain("   Visibility: Private\n")
		}
		r.writePlain("\n")
	}

	return nil
}

// LibrarySaved lists the user's saved tracks.
func (r *Runner) LibrarySaved(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	offset := cmd.Int("offset")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if r.library == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	tracks, err := r.library.SavedTracks(ctx, limit, offset)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if useJSON {
		return r.writeJSON(tracks, pretty)
	}

	r.writeTracks(tracks)
	return nil
}

func (r *Runner) writeTracks(tracks []models.Track) {
	r.writePlain("Found %d tracks:\n\n", len(tracks))
	for i, track := range tracks {
		r.writePlain("%d. %s - %s (%s)\n", i+1, track.Artist, track.Title, shared.FormatDuration(track.DurationMS))
		if track.Album != "" {
			r.writePlain("   Album: %s\n", track.Album)
		}
		r.writePlain("   URI: %s\n", track.URI)
	}
}
