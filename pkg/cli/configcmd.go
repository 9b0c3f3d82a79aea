package cli

import (
	"fmt"
	"path"

	"github.com/urfave/cli/v2"

	"github.com/lendflow-in/credscore/pkg/config"
)

var (
	configPathFlag = &cli.StringFlag{
		Name:  "path",
		Usage: "Where to write the config file (defaults to the app home dir)",
	}

	configCmd = &cli.Command{
		Name:            "config",
		HideHelpCommand: true,
		Usage:           "Scoring configuration helpers",
		Subcommands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the built-in default scoring config out for editing",
				Action: cmdConfigInit,
				Flags:  []cli.Flag{configPathFlag},
			},
			{
				Name:   "show",
				Usage:  "Print the effective scoring config",
				Action: cmdConfigShow,
			},
		},
	}
)

func cmdConfigInit(c *cli.Context) error {
	p := c.String(configPathFlag.Name)
	if p == "" {
		p = path.Join(getHomeDir(), "scoring.yaml")
	}

	cfg, err := config.Default()
	if err != nil {
		return err
	}
	if err := config.Save(p, cfg); err != nil {
		return err
	}

	fmt.Printf("Config written to %s\n", p)
	return nil
}

func cmdConfigShow(c *cli.Context) error {
	return encode(getConfig(c).Cfg)
}
