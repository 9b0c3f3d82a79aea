package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const runsLimitDefault = 50

var (
	runIDFlag = &cli.StringFlag{
		Name:  "id",
		Usage: "Run ID",
	}

	applicantFlag = &cli.StringFlag{
		Name:  "applicant",
		Usage: "Filter runs by applicant reference",
	}

	runsLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Limits number of results returned",
		Value: runsLimitDefault,
	}

	distFlag = &cli.BoolFlag{
		Name:  "dist",
		Usage: "Print the score distribution instead of run details",
	}

	runsCmd = &cli.Command{
		Name:    "runs",
		Aliases: []string{"r"},
		Usage:   "Query persisted score runs",
		Action:  cmdRuns,
		Flags: []cli.Flag{
			runIDFlag,
			applicantFlag,
			runsLimitFlag,
			distFlag,
		},
	}
)

func cmdRuns(c *cli.Context) error {
	cfg := getConfig(c)

	if c.Bool(distFlag.Name) {
		d, err := cfg.Store.GetDistribution()
		if err != nil {
			return err
		}
		return encode(d)
	}

	if id := c.String(runIDFlag.Name); id != "" {
		r, err := cfg.Store.GetRun(id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("run %s not found", id)
		}
		return encode(r)
	}

	list, err := cfg.Store.ListRuns(c.String(applicantFlag.Name), c.Int(runsLimitFlag.Name))
	if err != nil {
		return err
	}
	return encode(list)
}
