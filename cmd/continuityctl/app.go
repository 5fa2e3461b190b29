package main

import (
	"github.com/urfave/cli/v2"

	"github.com/danmuck/continuityctl/internal/config"
)

const (
	defaultConfigPath = "continuity.toml"
	defaultServer     = "http://127.0.0.1:7420"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "continuityctl",
		Usage: "scan, decode and advertise Continuity manufacturer data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML config `FILE`",
				EnvVars: []string{"CONTINUITY_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			advertiseCommand(),
			decodeCommand(),
			stopCommand(),
			rotateCommand(),
			configCommand(),
		},
	}
}

// loadConfig reads --config when set and falls back to defaults.
func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
