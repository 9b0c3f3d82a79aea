package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lendflow-in/credscore/pkg/estimator"
	"github.com/lendflow-in/credscore/pkg/score"
)

const (
	estimatorURLEnvVar = "CREDSCORE_ESTIMATOR_URL"
	clientIDEnvVar     = "CREDSCORE_CLIENT_ID"
	clientSecretEnvVar = "CREDSCORE_CLIENT_SECRET"
	tokenURLEnvVar     = "CREDSCORE_TOKEN_URL"
)

var (
	fileFlag = &cli.StringFlag{
		Name:     "file",
		Usage:    "Path to the statement JSON file (single statement or array)",
		Required: true,
	}

	probabilityFlag = &cli.Float64Flag{
		Name:  "probability",
		Usage: "Model default probability to use instead of calling the estimator service",
	}

	estimatorURLFlag = &cli.StringFlag{
		Name:    "estimator-url",
		Usage:   "Base URL of the estimator service",
		EnvVars: []string{estimatorURLEnvVar},
	}

	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Concurrent scoring workers for statement arrays",
	}

	noSaveFlag = &cli.BoolFlag{
		Name:  "no-save",
		Usage: "Do not persist the run to the store",
	}

	scoreCmd = &cli.Command{
		Name:    "score",
		Aliases: []string{"s"},
		Usage:   "Score one or more applicant statements",
		Action:  cmdScore,
		Flags: []cli.Flag{
			fileFlag,
			probabilityFlag,
			estimatorURLFlag,
			workersFlag,
			noSaveFlag,
		},
	}
)

func cmdScore(c *cli.Context) error {
	cfg := getConfig(c)

	statements, err := readStatements(c.String(fileFlag.Name))
	if err != nil {
		return err
	}

	est, err := makeEstimator(c)
	if err != nil {
		return err
	}

	pipeline, err := score.NewPipeline(cfg.Cfg, est, nil)
	if err != nil {
		return err
	}

	results, err := pipeline.ScoreAll(c.Context, statements, c.Int(workersFlag.Name))
	if err != nil {
		return err
	}

	if !c.Bool(noSaveFlag.Name) {
		for _, r := range results {
			id, err := cfg.Store.SaveRun(r)
			if err != nil {
				return err
			}
			slog.Debug("run saved", "id", id, "applicant", r.Applicant)
		}
	}

	if len(results) == 1 {
		return encode(results[0])
	}
	return encode(results)
}

// makeEstimator picks the estimator: an explicit probability beats the
// remote service.
func makeEstimator(c *cli.Context) (estimator.Estimator, error) {
	if c.IsSet(probabilityFlag.Name) {
		return estimator.Static{Probability: c.Float64(probabilityFlag.Name)}, nil
	}

	url := c.String(estimatorURLFlag.Name)
	if url == "" {
		return nil, fmt.Errorf("either --%s or --%s is required", probabilityFlag.Name, estimatorURLFlag.Name)
	}

	return makeRemoteClient(c, url)
}

// makeRemoteClient builds the estimator service client: the OAuth2
// client-credentials grant when CREDSCORE_CLIENT_ID is set, otherwise
// the bearer token stored by `credscore auth`.
func makeRemoteClient(c *cli.Context, url string) (*estimator.Client, error) {
	if id := os.Getenv(clientIDEnvVar); id != "" {
		secret := os.Getenv(clientSecretEnvVar)
		tokenURL := os.Getenv(tokenURLEnvVar)
		if secret == "" || tokenURL == "" {
			return nil, fmt.Errorf("%s is set but %s or %s is missing", clientIDEnvVar, clientSecretEnvVar, tokenURLEnvVar)
		}
		return estimator.NewClientCredentials(c.Context, url, id, secret, tokenURL), nil
	}

	token, err := getEstimatorToken()
	if err != nil {
		return nil, fmt.Errorf("getting estimator token (run `credscore auth` first): %w", err)
	}
	return estimator.NewClient(c.Context, url, token), nil
}

// readStatements accepts a single statement object or an array.
func readStatements(path string) ([]score.Statement, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading statement file %s: %w", path, err)
	}

	var many []score.Statement
	if err := json.Unmarshal(b, &many); err == nil {
		return many, nil
	}

	var one score.Statement
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, fmt.Errorf("parsing statement file %s: %w", path, err)
	}
	return []score.Statement{one}, nil
}
