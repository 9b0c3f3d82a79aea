package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/lendflow-in/credscore/pkg/cashflow"
	"github.com/lendflow-in/credscore/pkg/classify"
	"github.com/lendflow-in/credscore/pkg/txn"
)

var (
	classifyCmd = &cli.Command{
		Name:    "classify",
		Aliases: []string{"c"},
		Usage:   "Classify a statement and report cash-flow metrics without scoring",
		Action:  cmdClassify,
		Flags: []cli.Flag{
			fileFlag,
		},
	}
)

// classification is the classify command output: the labeled stream for
// downstream reporting plus the aggregate cash-flow view.
type classification struct {
	Transactions []txn.Classified `json:"transactions"`
	Cashflow     cashflow.Summary `json:"cashflow"`
	RowsSkipped  int              `json:"rows_skipped"`
}

func cmdClassify(c *cli.Context) error {
	cfg := getConfig(c)

	statements, err := readStatements(c.String(fileFlag.Name))
	if err != nil {
		return err
	}

	classifier, err := classify.New(cfg.Cfg.Taxonomy)
	if err != nil {
		return err
	}

	out := make([]classification, 0, len(statements))
	for _, st := range statements {
		transactions, skipped := txn.Normalize(st.Records)
		classified := classifier.ClassifyAll(transactions)
		flow := cashflow.Aggregate(classified)
		out = append(out, classification{
			Transactions: classified,
			Cashflow:     flow,
			RowsSkipped:  skipped + flow.Skipped,
		})
	}

	if len(out) == 1 {
		return encode(out[0])
	}
	return encode(out)
}
