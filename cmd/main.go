package main

import (
	"context"
	"errors"
	"os"

	"github.com/soundctl/soundctl/internal/auth"
	"github.com/soundctl/soundctl/internal/repositories"
	"github.com/soundctl/soundctl/internal/services"
	"github.com/soundctl/soundctl/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	ctx := context.Background()

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	opts := RunnerOpts{
		Config:     config,
		ConfigPath: "config.toml",
		Logger:     logger,
	}

	if config.Storage.Backend == "keyring" {
		opts.Store = auth.NewKeyringStore()
	}

	if db, err := shared.NewDatabase(config.Database.Path); err == nil {
		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
		opts.Devices = repositories.NewDeviceRepository(db)
		if opts.Store == nil {
			opts.Store = repositories.NewTokenRepository(db)
		}
	} else {
		logger.Debug("database unavailable, run 'soundctl setup'", "error", err)
	}

	if opts.Store == nil {
		// No persistence at all; tokens last for this process only.
		opts.Store = auth.NewMemoryStore()
	}

	if config.Credentials.Spotify.ClientID != "" {
		flow, err := auth.NewFlow(auth.FlowConfig{
			ClientID:    config.Credentials.Spotify.ClientID,
			RedirectURI: config.Credentials.Spotify.RedirectURI,
			Scopes:      config.Credentials.Spotify.Scopes,
		}, opts.Store, logger)
		if err != nil {
			logger.Warn("spotify credentials incomplete", "error", err)
		} else {
			refresh := auth.NewRefreshService(flow.Config(), opts.Store, logger)
			spotify := services.NewSpotifyService(refresh.Source(ctx), logger)

			opts.Flow = flow
			opts.Refresh = refresh
			opts.Session = auth.NewSession(refresh, spotify, logger)
			opts.Library = spotify
			opts.Player = spotify
		}
	}

	runner := NewRunner(opts)
	app := newApp(runner)

	if err := app.Run(ctx, os.Args); err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			logger.Warn("not authenticated, run 'soundctl auth login'")
			os.Exit(1)
		}
		logger.Fatalf("application error: %v", err)
	}
}

func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:     "soundctl",
		Usage:    "Control Spotify playback from the terminal",
		Version:  "0.1.0",
		Commands: runner.register(),
	}
}
