package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/gitnotify/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "gitnotify",
		Usage:   "Mail and issue-tracker notifications for code hosting events",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at debug level regardless of configuration",
			},
		},
		Commands: []*cli.Command{
			cmd.ListenCommand(),
			cmd.RenderCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
