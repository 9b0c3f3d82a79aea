package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lendflow-in/credscore/pkg/cashflow"
	"github.com/lendflow-in/credscore/pkg/data"
	"github.com/lendflow-in/credscore/pkg/estimator"
	"github.com/lendflow-in/credscore/pkg/score"
	"github.com/lendflow-in/credscore/pkg/txn"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverPortDefault         = 8080
)

var (
	portFlag = &cli.IntFlag{
		Name:     "port",
		Usage:    "Port on which the server will listen",
		Value:    serverPortDefault,
		Required: false,
	}

	serverCmd = &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start the local scoring API server",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			portFlag,
			estimatorURLFlag,
		},
	}
)

func cmdStartServer(c *cli.Context) error {
	cfg := getConfig(c)

	var est estimator.Estimator
	if url := c.String(estimatorURLFlag.Name); url != "" {
		client, err := makeRemoteClient(c, url)
		if err != nil {
			return err
		}
		est = client
	}

	pipeline, err := score.NewPipeline(cfg.Cfg, est, nil)
	if err != nil {
		return err
	}

	port := c.Int(portFlag.Name)
	address := fmt.Sprintf("127.0.0.1:%d", port)

	mux := makeRouter(pipeline, cfg.Store)
	s := &http.Server{
		Addr:           address,
		Handler:        mux,
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("error starting server", "error", err)
		}
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://%s", address))

	<-done

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	return nil
}

func makeRouter(pipeline *score.Pipeline, store *data.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/score", scoreAPIHandler(pipeline, store))
	mux.HandleFunc("POST /v1/classify", classifyAPIHandler(pipeline))
	mux.HandleFunc("GET /v1/runs", runsAPIHandler(store))
	mux.HandleFunc("GET /v1/runs/distribution", distributionAPIHandler(store))

	return mux
}

// scoreRequest is a statement plus an optional inline model probability.
// When probability is absent the configured estimator service is called.
type scoreRequest struct {
	score.Statement
	Probability *float64 `json:"probability,omitempty"`
}

func scoreAPIHandler(pipeline *score.Pipeline, store *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parsing request: %w", err))
			return
		}

		var result *score.Result
		var err error
		if req.Probability != nil {
			result = pipeline.Evaluate(req.Statement, *req.Probability)
		} else {
			result, err = pipeline.Score(r.Context(), req.Statement)
			if err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
		}

		if id, saveErr := store.SaveRun(result); saveErr != nil {
			slog.Error("error saving run", "applicant", result.Applicant, "error", saveErr)
		} else {
			slog.Debug("run saved", "id", id)
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func classifyAPIHandler(pipeline *score.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var st score.Statement
		if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parsing request: %w", err))
			return
		}

		transactions, skipped := txn.Normalize(st.Records)
		classified := pipeline.Classifier().ClassifyAll(transactions)
		flow := cashflow.Aggregate(classified)

		writeJSON(w, http.StatusOK, classification{
			Transactions: classified,
			Cashflow:     flow,
			RowsSkipped:  skipped + flow.Skipped,
		})
	}
}

func runsAPIHandler(store *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("id"); id != "" {
			run, err := store.GetRun(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if run == nil {
				writeError(w, http.StatusNotFound, fmt.Errorf("run %s not found", id))
				return
			}
			writeJSON(w, http.StatusOK, run)
			return
		}

		limit := runsLimitDefault
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		list, err := store.ListRuns(r.URL.Query().Get("applicant"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func distributionAPIHandler(store *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := store.GetDistribution()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
