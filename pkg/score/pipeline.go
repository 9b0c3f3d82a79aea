package score

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lendflow-in/credscore/pkg/cashflow"
	"github.com/lendflow-in/credscore/pkg/classify"
	"github.com/lendflow-in/credscore/pkg/config"
	"github.com/lendflow-in/credscore/pkg/estimator"
	"github.com/lendflow-in/credscore/pkg/txn"
)

const batchWorkersDefault = 8

// Statement is one applicant's scoring input: the raw transaction feed
// plus externally supplied features (bureau signals etc).
type Statement struct {
	Applicant string             `json:"applicant"`
	Records   []txn.Record       `json:"transactions"`
	Features  map[string]float64 `json:"features,omitempty"`
}

// Result is the full scoring output, including the explanation breakdown
// and data-quality metadata audit consumers rely on.
type Result struct {
	Applicant    string           `json:"applicant"`
	ScoredAt     time.Time        `json:"scored_at"`
	Score        float64          `json:"score"`
	Blended      Blended          `json:"blended"`
	Subscore     float64          `json:"subscore"`
	Categories   []CategoryScore  `json:"categories"`
	Cashflow     cashflow.Summary `json:"cashflow"`
	Transactions []txn.Classified `json:"transactions,omitempty"`
	RowsSkipped  int              `json:"rows_skipped"`
}

// Pipeline wires classifier, aggregator, engine, blender, and estimator.
// All components are immutable once built, so one pipeline instance can
// score many statements concurrently.
type Pipeline struct {
	classifier *classify.Classifier
	engine     *Engine
	blender    *Blender
	estimator  estimator.Estimator
}

// NewPipeline builds a pipeline from a validated config. cal may be nil
// (identity calibration).
func NewPipeline(cfg *config.Config, est estimator.Estimator, cal Calibration) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalid)
	}

	c, err := classify.New(cfg.Taxonomy)
	if err != nil {
		return nil, err
	}
	e, err := NewEngine(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	b, err := NewBlender(cfg.Blend, cfg.Anchors, cal)
	if err != nil {
		return nil, err
	}

	return &Pipeline{classifier: c, engine: e, blender: b, estimator: est}, nil
}

// Classifier exposes the compiled classifier for classify-only callers.
func (p *Pipeline) Classifier() *classify.Classifier {
	return p.classifier
}

// Score runs one statement end to end: normalize, classify, aggregate,
// sub-score, estimate, blend. Requires an estimator.
func (p *Pipeline) Score(ctx context.Context, st Statement) (*Result, error) {
	if p.estimator == nil {
		return nil, fmt.Errorf("no estimator configured")
	}

	transactions, skipped := txn.Normalize(st.Records)
	classified := p.classifier.ClassifyAll(transactions)
	flow := cashflow.Aggregate(classified)

	features := flow.Features()
	for k, v := range st.Features {
		features[k] = v
	}

	probability, err := p.estimator.Predict(ctx, features)
	if err != nil {
		return nil, fmt.Errorf("estimating default probability for %s: %w", st.Applicant, err)
	}

	return p.evaluate(st, classified, flow, features, probability, skipped), nil
}

// Evaluate scores a statement with an externally supplied model
// probability, bypassing the estimator.
func (p *Pipeline) Evaluate(st Statement, probability float64) *Result {
	transactions, skipped := txn.Normalize(st.Records)
	classified := p.classifier.ClassifyAll(transactions)
	flow := cashflow.Aggregate(classified)

	features := flow.Features()
	for k, v := range st.Features {
		features[k] = v
	}

	return p.evaluate(st, classified, flow, features, probability, skipped)
}

func (p *Pipeline) evaluate(st Statement, classified []txn.Classified, flow cashflow.Summary, features map[string]float64, probability float64, skipped int) *Result {
	subscore, breakdown := p.engine.Score(features)
	blended := p.blender.Blend(probability, subscore)

	return &Result{
		Applicant:    st.Applicant,
		ScoredAt:     time.Now().UTC(),
		Score:        blended.Score,
		Blended:      blended,
		Subscore:     subscore,
		Categories:   breakdown,
		Cashflow:     flow,
		Transactions: classified,
		RowsSkipped:  skipped + flow.Skipped,
	}
}

// ScoreAll scores many statements concurrently. Workers share the same
// read-only compiled matchers and tables; results keep input order.
func (p *Pipeline) ScoreAll(ctx context.Context, statements []Statement, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = batchWorkersDefault
	}

	results := make([]*Result, len(statements))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, st := range statements {
		g.Go(func() error {
			r, err := p.Score(ctx, st)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
