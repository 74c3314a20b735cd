// Command scwatch watches a BLE peripheral for GATT Service Changed
// indications.
//
// Usage:
//
//	scwatch init
//	scwatch scan [--duration 5s] [--service 180f]
//	scwatch watch --device AA:BB:CC:DD:EE:FF
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/chaz8081/scwatch/internal/config"
)

var cfg *config.Config

func main() {
	app := cli.NewApp()

	app.Name = "scwatch"
	app.Usage = "Watch a BLE peripheral for GATT Service Changed indications"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to config file (default: ~/.config/scwatch/config.yaml)",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "override log_level (debug, info, warn, error)",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:   "init",
			Usage:  "Write the default config file if none exists",
			Action: initConfig,
		},
		{
			Name:    "scan",
			Aliases: []string{"s"},
			Usage:   "Scan for peripherals",
			Action:  scan,
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "duration, d", Usage: "scan duration (default: device.scan_timeout)"},
				cli.StringSliceFlag{Name: "service, s", Usage: "only list peripherals advertising this service UUID"},
			},
		},
		{
			Name:    "watch",
			Aliases: []string{"w"},
			Usage:   "Connect, subscribe to Service Changed, and log indications",
			Action:  watch,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "device, a", Usage: "peripheral address (default: device.address)"},
				cli.BoolFlag{Name: "no-indicate", Usage: "find the characteristic but leave indications off"},
				cli.BoolFlag{Name: "reset-on-disconnect", Usage: "forget discovered handles when the peer drops"},
			},
		},
	}

	app.Before = setup
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "scwatch: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the default logger.
func setup(c *cli.Context) error {
	var err error
	cfg, err = loadConfig(c.GlobalString("config"))
	if err != nil {
		return errors.Wrap(err, "can't load config")
	}
	if lvl := c.GlobalString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		c, err := config.Load(defaultPath)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", defaultPath)
		}
		return c, nil
	}

	return config.Default(), nil
}

func initConfig(c *cli.Context) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}
