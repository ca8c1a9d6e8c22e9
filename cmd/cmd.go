// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// listFlags are shared by every paginated listing, followed by resource specific filters.
func listFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:  "page",
			Usage: "Page number (1-based)",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Items per page (default from config)",
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "Sort key",
		},
		&cli.BoolFlag{
			Name:  "desc",
			Usage: "Sort descending",
		},
		&cli.StringFlag{
			Name:    "search",
			Aliases: []string{"q"},
			Usage:   "Case-insensitive name search",
		},
		formatFlag(),
	}
	return append(flags, extra...)
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: table, markdown, csv or json",
		Value:   "table",
	}
}

func playlistArg() []cli.Argument {
	return []cli.Argument{
		&cli.StringArg{Name: "id"},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a config.toml with default values",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// loginCommand connects an account through the browser.
func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in through the browser and store the session token",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the login URL instead of opening it",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser",
				Value: 2 * time.Minute,
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Store this token directly instead of opening the browser",
			},
		},
		Action: r.Login,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Forget the stored session token",
		Action: r.Logout,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Validate the stored session token",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// playlistsCommand handles playlist browsing and background tasks.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Browse playlists and run sync or analysis tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List synced playlists",
				Flags: listFlags(
					&cli.BoolFlag{
						Name:  "owned",
						Usage: "Only playlists you own",
					},
					&cli.BoolFlag{
						Name:  "analyzed",
						Usage: "Only analyzed playlists",
					},
					&cli.IntFlag{
						Name:  "min-tracks",
						Usage: "Only playlists with at least this many tracks",
					},
				),
				Action: r.PlaylistsList,
			},
			{
				Name:      "show",
				Usage:     "Show a playlist and its tracks",
				Arguments: playlistArg(),
				Flags:     []cli.Flag{formatFlag()},
				Action:    r.PlaylistsShow,
			},
			{
				Name:      "export",
				Usage:     "Export a playlist to a file",
				Arguments: playlistArg(),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: csv, markdown, text or json",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory",
						Value:   ".",
					},
				},
				Action: r.PlaylistsExport,
			},
			{
				Name:      "stats",
				Usage:     "Summarize a playlist's audio features",
				Arguments: playlistArg(),
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "buckets",
						Usage: "Histogram buckets per feature",
						Value: 5,
					},
					formatFlag(),
				},
				Action: r.PlaylistsStats,
			},
			{
				Name:      "sync",
				Usage:     "Sync a playlist from the streaming provider",
				Arguments: playlistArg(),
				Flags:     taskFlags(),
				Action:    r.PlaylistsSync,
			},
			{
				Name:      "analyze",
				Usage:     "Analyze a playlist's audio features",
				Arguments: playlistArg(),
				Flags:     taskFlags(),
				Action:    r.PlaylistsAnalyze,
			},
			{
				Name:      "bulk",
				Usage:     "Run sync or analyze for several playlists",
				ArgsUsage: "ID...",
				Flags: append(taskFlags(),
					&cli.StringFlag{
						Name:  "op",
						Usage: "Operation: sync or analyze",
						Value: "sync",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent triggers (default from config)",
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Triggers per second (default from config)",
					},
					&cli.StringFlag{
						Name:  "manifest",
						Usage: "Write a JSON manifest of the results to this path",
					},
					formatFlag(),
				),
				Action: r.PlaylistsBulk,
			},
		},
	}
}

func taskFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "wait",
			Aliases: []string{"w"},
			Usage:   "Wait for the task to finish",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Give up waiting after this long (default from config)",
		},
	}
}

func tracksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tracks",
		Usage: "Browse tracks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tracks across synced playlists",
				Flags: listFlags(
					&cli.IntFlag{
						Name:  "min-popularity",
						Usage: "Only tracks at or above this popularity",
					},
					&cli.BoolFlag{
						Name:  "explicit",
						Usage: "Only explicit tracks",
					},
				),
				Action: r.TracksList,
			},
		},
	}
}

func albumsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "albums",
		Usage: "Browse albums",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List albums",
				Flags: listFlags(
					&cli.StringFlag{
						Name:  "genre",
						Usage: "Only albums tagged with this genre",
					},
				),
				Action: r.AlbumsList,
			},
		},
	}
}

func artistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "artists",
		Usage: "Browse artists",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List artists",
				Flags: listFlags(
					&cli.IntFlag{
						Name:  "min-popularity",
						Usage: "Only artists at or above this popularity",
					},
					&cli.StringFlag{
						Name:  "genre",
						Usage: "Only artists tagged with this genre",
					},
				),
				Action: r.ArtistsList,
			},
		},
	}
}

// notificationsCommand streams and replays task notifications.
func notificationsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "notifications",
		Aliases: []string{"notify"},
		Usage:   "Task lifecycle notifications",
		Commands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "Stream notifications until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "record",
						Usage: "Record each notification to the local database",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print each message as JSON",
					},
					&cli.IntFlag{
						Name:  "count",
						Usage: "Exit after this many notifications (0 = never)",
					},
				},
				Action: r.NotificationsWatch,
			},
			{
				Name:  "history",
				Usage: "Show recorded notifications",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of records",
						Value: 50,
					},
					&cli.StringFlag{
						Name:  "task",
						Usage: "Only records for this task id",
					},
					&cli.DurationFlag{
						Name:  "prune",
						Usage: "Delete records older than this before listing",
					},
					formatFlag(),
				},
				Action: r.NotificationsHistory,
			},
		},
	}
}

// apiCommand handles direct API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct API calls to the backend",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET to the backend, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "patch",
				Usage: "Direct PATCH with a JSON body, e.g. {\"operation\":\"sync\"}",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "JSON request body",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIPatch,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for interactive browsing.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for playlist browsing",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Do not connect to live notifications",
			},
		},
		Action: r.TUI,
	}
}
