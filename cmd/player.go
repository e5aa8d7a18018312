package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/soundctl/soundctl/internal/models"
	"github.com/soundctl/soundctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// PlayerStatus shows the current playback state.
func (r *Runner) PlayerStatus(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	snapshot, err := r.player.PlaybackState(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if snapshot == nil {
		if useJSON {
			return r.writeJSON(nil, pretty)
		}
		r.writePlain("Nothing playing\n")
		return nil
	}

	if useJSON {
		return r.writeJSON(snapshot, pretty)
	}

	status := "⏸ Paused"
	if snapshot.Playing {
		status = "▶ Playing"
	}
	r.writePlain("%s on %s (%s)\n", status, snapshot.Device.Name, snapshot.Device.Kind)

	if snapshot.Track != nil {
		r.writePlain("  %s - %s\n", snapshot.Track.Artist, snapshot.Track.Title)
		r.writePlain("  %s / %s\n", shared.FormatDuration(snapshot.ProgressMS), shared.FormatDuration(snapshot.Track.DurationMS))
	}

	r.writePlain("  Shuffle: %v\n", snapshot.ShuffleState)
	r.writePlain("  Repeat: %s\n", snapshot.RepeatState)

	return nil
}

// PlayerPlay starts playback, optionally of a specific track URI.
func (r *Runner) PlayerPlay(ctx context.Context, cmd *cli.Command) error {
	uri := cmd.StringArg("uri")
	deviceID := cmd.String("device")

	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	var uris []string
	if uri != "" {
		uris = append(uris, uri)
	}

	if err := r.player.Play(ctx, deviceID, uris...); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if uri != "" {
		r.writePlain("✓ Playing %s\n", uri)
	} else {
		r.writePlain("✓ Playback resumed\n")
	}

	return nil
}

// PlayerToggle toggles between play and pause based on the reported state.
func (r *Runner) PlayerToggle(ctx context.Context, cmd *cli.Command) error {
	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	snapshot, err := r.player.PlaybackState(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if snapshot == nil {
		return fmt.Errorf("%w: no active playback to toggle", shared.ErrPlayerNotReady)
	}

	if snapshot.Playing {
		if err := r.player.Pause(ctx); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		r.writePlain("✓ Paused\n")
	} else {
		if err := r.player.Resume(ctx); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		r.writePlain("✓ Resumed\n")
	}

	return nil
}

// PlayerNext skips to the next track.
func (r *Runner) PlayerNext(ctx context.Context, cmd *cli.Command) error {
	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	if err := r.player.Next(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("✓ Skipped to next track\n")
	return nil
}

// PlayerPrevious skips to the previous track.
func (r *Runner) PlayerPrevious(ctx context.Context, cmd *cli.Command) error {
	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	if err := r.player.Previous(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("✓ Skipped to previous track\n")
	return nil
}

// PlayerSeek seeks to a position in the current track.
func (r *Runner) PlayerSeek(ctx context.Context, cmd *cli.Command) error {
	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	position, err := strconv.Atoi(cmd.StringArg("position"))
	if err != nil || position < 0 {
		return fmt.Errorf("%w: position must be a non-negative millisecond count", shared.ErrInvalidArgument)
	}

	if err := r.player.SeekTo(ctx, position); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("✓ Seeked to %s\n", shared.FormatDuration(position))
	return nil
}

// PlayerShuffle sets shuffle on or off.
func (r *Runner) PlayerShuffle(ctx context.Context, cmd *cli.Command) error {
	state := cmd.StringArg("state")

	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	var shuffle bool
	switch state {
	case "on":
		shuffle = true
	case "off":
		shuffle = false
	default:
		return fmt.Errorf("%w: shuffle state must be 'on' or 'off', got %q", shared.ErrInvalidArgument, state)
	}

	if err := r.player.SetShuffle(ctx, shuffle); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("✓ Shuffle %s\n", state)
	return nil
}

// PlayerRepeat sets the repeat mode.
func (r *Runner) PlayerRepeat(ctx context.Context, cmd *cli.Command) error {
	mode := cmd.StringArg("mode")

	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}
	if !models.ValidRepeatMode(mode) {
		return fmt.Errorf("%w: repeat mode must be one of off, context, track; got %q", shared.ErrInvalidArgument, mode)
	}

	if err := r.player.SetRepeat(ctx, models.RepeatMode(mode)); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("✓ Repeat mode set to %s\n", mode)
	return nil
}

// DevicesList lists available playback devices, refreshing the local cache.
func (r *Runner) DevicesList(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")
	cached := cmd.Bool("cached")

	if cached {
		return r.listCachedDevices(useJSON, pretty)
	}

	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	devices, err := r.player.Devices(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if r.devices != nil {
		if err := r.devices.SaveAll(devices); err != nil {
			r.logger.Warn("failed to cache devices", "error", err)
		}
	}

	if useJSON {
		return r.writeJSON(devices, pretty)
	}

	r.writePlain("Found %d devices:\n\n", len(devices))
	for i, device := range devices {
		marker := " "
		if device.IsActive {
			marker = "●"
		}
		r.writePlain("%s %d. %s (%s)\n", marker, i+1, device.Name, device.Kind)
		r.writePlain("     ID: %s\n", device.ID)
	}

	return nil
}

func (r *Runner) listCachedDevices(useJSON, pretty bool) error {
	if r.devices == nil {
		return fmt.Errorf("%w: device cache not initialized (run 'soundctl setup' first)", shared.ErrServiceUnavailable)
	}

	devices, err := r.devices.List()
	if err != nil {
		return fmt.Errorf("failed to list cached devices: %w", err)
	}

	if useJSON {
		return r.writeJSON(devices, pretty)
	}

	r.writePlain("Found %d cached devices:\n\n", len(devices))
	for i, device := range devices {
		r.writePlain("%d. %s (%s)\n", i+1, device.Name, device.Kind)
		r.writePlain("   ID: %s\n", device.DeviceID)
		r.writePlain("   Last seen: %s\n", device.LastSeenAt.Format("2006-01-02 15:04"))
	}

	return nil
}

// DevicesTransfer transfers playback to the named device.
func (r *Runner) DevicesTransfer(ctx context.Context, cmd *cli.Command) error {
	deviceID := cmd.StringArg("device-id")
	play := cmd.Bool("play")

	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}
	if deviceID == "" {
		return fmt.Errorf("%w: device-id argument is required", shared.ErrMissingArgument)
	}

	if err := r.player.TransferPlayback(ctx, deviceID, play); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("✓ Playback transferred to %s\n", deviceID)
	return nil
}
