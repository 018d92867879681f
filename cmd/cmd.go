// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// serveCommand runs the linking server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the device linking HTTP server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides config)",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand creates the config file and initializes the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing and run migrations",
		Action: r.Setup,
	}
}

// migrateCommand manages schema migrations
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Database schema migrations",
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Action: r.MigrateUp,
			},
			{
				Name:   "down",
				Usage:  "Roll back the most recent migration",
				Action: r.MigrateDown,
			},
			{
				Name:   "status",
				Usage:  "Show the current schema version",
				Action: r.MigrateStatus,
			},
		},
	}
}

// deviceCommand handles device registration and inspection
func deviceCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "device",
		Aliases: []string{"dev"},
		Usage:   "Device registration and status",
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Register a device with a running server and print its authorization URL",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "server",
						Usage: "Linking server base URL",
						Value: "http://127.0.0.1:3000",
					},
					&cli.BoolFlag{
						Name:  "open",
						Usage: "Open the authorization URL in the browser",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.DeviceRegister,
			},
			{
				Name:  "status",
				Usage: "Show whether a device is linked",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.DeviceStatus,
			},
			{
				Name:  "list",
				Usage: "List registered devices",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "linked",
						Usage: "Only linked devices",
					},
					&cli.BoolFlag{
						Name:  "pending",
						Usage: "Only devices waiting for authorization",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.DeviceList,
			},
		},
	}
}

// pollCommand behaves like a linked device
func pollCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "poll",
		Usage: "Poll now-playing for a linked device through the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "Linking server base URL",
				Value: "http://127.0.0.1:3000",
			},
			&cli.StringFlag{
				Name:     "device",
				Aliases:  []string{"d"},
				Usage:    "Device id",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Time between polls",
				Value: 5 * time.Second,
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Stop after this many polls (0 polls until interrupted)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Poll,
	}
}
