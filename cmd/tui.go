package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/soundctl/soundctl/internal/playback"
	"github.com/soundctl/soundctl/internal/shared"
	"github.com/soundctl/soundctl/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal player.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if r.player == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}
	if r.refresh == nil {
		return fmt.Errorf("%w: auth service not initialized", shared.ErrServiceUnavailable)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/soundctl-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	if r.session != nil {
		if err := r.session.Start(ctx); err != nil {
			fileLogger.Warn("initial auth resolution failed", "error", err)
		}
		defer r.session.Stop()

		if !r.session.IsAuthenticated() {
			return fmt.Errorf("%w: run 'soundctl auth login' first", shared.ErrNotAuthenticated)
		}
	}

	sdk := playback.NewConnectSDK(r.player, r.refresh.GetValidToken, r.config.Player.Name, fileLogger)
	controller := playback.NewController(sdk, r.player, fileLogger)

	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start player: %w", err)
	}
	defer controller.Stop()

	var cache ui.DeviceCache
	if r.devices != nil {
		cache = r.devices
	}

	model := ui.NewModel(ctx, controller, r.player, cache)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
