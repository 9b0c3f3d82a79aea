// Package cli implements the credscore command line application.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/lendflow-in/credscore/pkg/config"
	"github.com/lendflow-in/credscore/pkg/data"
	"github.com/lendflow-in/credscore/pkg/logging"
)

const (
	dirMode      = 0700
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat = formatJSON

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "Run store DSN: SQLite file path or postgres:// URL",
	}

	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to the scoring config YAML (omit for built-in defaults)",
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		if errors.Is(err, config.ErrInvalid) {
			slog.Error("configuration error", "error", err)
			os.Exit(2)
		}
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Cfg   *config.Config
	Store *data.Store
	Debug bool
}

func getConfig(c *cli.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "credscore",
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Transaction classification and credit score blending for loan underwriting",
		Flags: []cli.Flag{
			debugFlag,
			dbFlag,
			configFlag,
			formatFlag,
		},
		Commands: []*cli.Command{
			scoreCmd,
			classifyCmd,
			runsCmd,
			authCmd,
			serverCmd,
			configCmd,
		},
		Before: func(c *cli.Context) error {
			if c.Bool(debugFlag.Name) {
				logging.SetDefaultCLILogger("debug")
			}

			// Optional .env for estimator endpoints and credentials.
			if err := godotenv.Load(); err == nil {
				slog.Debug("loaded .env file")
			}

			f := c.String(formatFlag.Name)
			if f == formatYAML || f == "yml" {
				outputFormat = formatYAML
			}

			cfg, err := config.Load(c.String(configFlag.Name))
			if err != nil {
				return err
			}

			dsn := c.String(dbFlag.Name)
			if dsn == "" {
				dsn = path.Join(getHomeDir(), data.DataFileName)
			}

			store, err := data.Open(dsn)
			if err != nil {
				return fmt.Errorf("opening run store: %w", err)
			}

			c.App.Metadata[appConfigKey] = &appConfig{
				Cfg:   cfg,
				Store: store,
				Debug: c.Bool(debugFlag.Name),
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if cfg, ok := c.App.Metadata[appConfigKey].(*appConfig); ok && cfg.Store != nil {
				cfg.Store.Close()
			}
			return nil
		},
	}
}

func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}

	dirPath := filepath.Join(home, ".credscore")
	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dirPath)
		if err := os.Mkdir(dirPath, dirMode); err != nil {
			slog.Debug("error creating dir", "path", dirPath, "error", err)
			return home
		}
	}
	return dirPath
}

func encode(v any) error {
	if outputFormat == formatYAML {
		return yaml.NewEncoder(os.Stdout).Encode(v)
	}
	e := json.NewEncoder(os.Stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
