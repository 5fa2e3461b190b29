package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/danmuck/continuityctl/internal/config"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "write or check a config file",
		Subcommands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "write the default template",
				ArgsUsage: "[path]",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"}},
				Action: func(c *cli.Context) error {
					path := configPath(c)
					if err := config.WriteTemplate(path, c.Bool("force")); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
					return nil
				},
			},
			{
				Name:      "validate",
				Usage:     "load and validate a config file",
				ArgsUsage: "[path]",
				Action: func(c *cli.Context) error {
					path := configPath(c)
					cfg, err := config.Load(path)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s ok transport=%s sinks=%s\n", path, cfg.Transport.Kind, enabledSinks(cfg))
					return nil
				},
			},
		},
	}
}

func configPath(c *cli.Context) string {
	if c.NArg() > 0 {
		return c.Args().First()
	}
	if p := c.String("config"); p != "" {
		return p
	}
	return defaultConfigPath
}

func enabledSinks(cfg config.Config) string {
	out := ""
	add := func(name string, on bool) {
		if !on {
			return
		}
		if out != "" {
			out += ","
		}
		out += name
	}
	add("console", cfg.Sinks.Console.Enabled)
	add("pubsub", cfg.Sinks.PubSub.Enabled)
	add("kafka", cfg.Sinks.Kafka.Enabled)
	add("mqtt", cfg.Sinks.MQTT.Enabled)
	if out == "" {
		return "none"
	}
	return out
}
