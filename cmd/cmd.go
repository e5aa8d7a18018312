// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand initializes the local database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize database and run migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.SetupDatabase,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authentication",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authenticate with Spotify using the authorization code + PKCE flow",
				Action: r.AuthLogin,
			},
			{
				Name:  "status",
				Usage: "Show current authentication state",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Clear stored credentials",
				Action: r.AuthLogout,
			},
		},
	}
}

// meCommand shows the authenticated user's profile.
func meCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "me",
		Usage: "Show the authenticated user's profile",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Me,
	}
}

// libraryCommand handles library read operations
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Browse the user's library",
		Commands: []*cli.Command{
			{
				Name:  "top-tracks",
				Usage: "List the user's top tracks",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tracks to return",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "time-range",
						Usage: "Ranking window: short_term, medium_term, or long_term",
						Value: "medium_term",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.LibraryTopTracks,
			},
			{
				Name:  "playlists",
				Usage: "List the user's playlists",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.LibraryPlaylists,
			},
			{
				Name:  "saved",
				Usage: "List the user's saved tracks",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tracks to return",
						Value: 20,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Offset into the saved tracks list",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.LibrarySaved,
			},
		},
	}
}

// playerCommand handles one-shot playback operations
func playerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "player",
		Aliases: []string{"p"},
		Usage:   "Control playback on the active device",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show the current playback state",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.PlayerStatus,
			},
			{
				Name:  "play",
				Usage: "Start playback, optionally of specific track URIs",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "uri",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "device",
						Aliases: []string{"d"},
						Usage:   "Device ID to play on (defaults to active device)",
					},
				},
				Action: r.PlayerPlay,
			},
			{
				Name:   "toggle",
				Usage:  "Toggle between play and pause",
				Action: r.PlayerToggle,
			},
			{
				Name:   "next",
				Usage:  "Skip to the next track",
				Action: r.PlayerNext,
			},
			{
				Name:    "prev",
				Aliases: []string{"previous"},
				Usage:   "Skip to the previous track",
				Action:  r.PlayerPrevious,
			},
			{
				Name:  "seek",
				Usage: "Seek to a position in the current track (milliseconds)",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "position",
					},
				},
				Action: r.PlayerSeek,
			},
			{
				Name:  "shuffle",
				Usage: "Set shuffle on or off",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "state",
					},
				},
				Action: r.PlayerShuffle,
			},
			{
				Name:  "repeat",
				Usage: "Set the repeat mode (off, context, track)",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "mode",
					},
				},
				Action: r.PlayerRepeat,
			},
		},
	}
}

// devicesCommand handles Spotify Connect device operations
func devicesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "devices",
		Aliases: []string{"dev"},
		Usage:   "Manage Spotify Connect devices",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List available playback devices",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
					&cli.BoolFlag{
						Name:  "cached",
						Usage: "List devices from the local cache instead of the API",
					},
				},
				Action: r.DevicesList,
			},
			{
				Name:  "transfer",
				Usage: "Transfer playback to a device",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "device-id",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "play",
						Usage: "Start playback on the target device",
					},
				},
				Action: r.DevicesTransfer,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for interactive playback control.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive player",
		Action:  r.TUI,
	}
}
