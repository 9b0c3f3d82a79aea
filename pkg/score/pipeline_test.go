package score

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow-in/credscore/pkg/config"
	"github.com/lendflow-in/credscore/pkg/estimator"
	"github.com/lendflow-in/credscore/pkg/txn"
)

func testStatement(applicant string) Statement {
	return Statement{
		Applicant: applicant,
		Records: []txn.Record{
			{Date: "2024-01-01", Description: "NEFT SALARY CREDIT ACME", Credit: "60000"},
			{Date: "2024-01-05", Description: "SWIGGY ORDER 11", Debit: "450"},
			{Date: "2024-01-10", Description: "HOUSE RENT JAN", Debit: "18000"},
			{Date: "2024-02-01", Description: "NEFT SALARY CREDIT ACME", Credit: "60000"},
			{Date: "2024-02-07", Description: "BESCOM ELECTRICITY BILL", Debit: "1200"},
		},
		Features: map[string]float64{
			"bureau_score":       760,
			"dpd_count":          0,
			"enquiries_6m":       1,
			"existing_emi_ratio": 0.2,
			"unsecured_share":    0.3,
			"bounce_count":       0,
			"avg_balance":        45000,
		},
	}
}

func testPipeline(t *testing.T, est estimator.Estimator) *Pipeline {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	p, err := NewPipeline(cfg, est, nil)
	require.NoError(t, err)
	return p
}

func TestPipelineScore(t *testing.T) {
	p := testPipeline(t, estimator.Static{Probability: 0.05})

	r, err := p.Score(context.Background(), testStatement("app-1"))
	require.NoError(t, err)

	assert.Equal(t, "app-1", r.Applicant)
	assert.False(t, r.ScoredAt.IsZero())
	assert.Zero(t, r.RowsSkipped)
	assert.Len(t, r.Transactions, 5)

	assert.InDelta(t, 60000, r.Cashflow.MonthlyIncome*r.Cashflow.MonthsCovered/2, 6000)
	assert.GreaterOrEqual(t, r.Subscore, 0.0)
	assert.LessOrEqual(t, r.Subscore, 1.0)
	assert.InDelta(t, 0.05, r.Blended.ModelProbability, 1e-9)
	assert.GreaterOrEqual(t, r.Score, 300.0)
	assert.LessOrEqual(t, r.Score, 900.0)
	assert.Equal(t, r.Blended.Score, r.Score)
}

func TestPipelineScore_Deterministic(t *testing.T) {
	p := testPipeline(t, estimator.Static{Probability: 0.08})
	st := testStatement("app-1")

	a, err := p.Score(context.Background(), st)
	require.NoError(t, err)
	b, err := p.Score(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Subscore, b.Subscore)
	assert.Equal(t, a.Blended, b.Blended)
	assert.Equal(t, a.Categories, b.Categories)
}

func TestPipelineScore_NoEstimator(t *testing.T) {
	p := testPipeline(t, nil)

	_, err := p.Score(context.Background(), testStatement("app-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no estimator")
}

func TestPipelineEvaluate(t *testing.T) {
	p := testPipeline(t, nil)

	r := p.Evaluate(testStatement("app-1"), 0.10)
	assert.InDelta(t, 0.10, r.Blended.ModelProbability, 1e-9)
	assert.GreaterOrEqual(t, r.Score, 300.0)
	assert.LessOrEqual(t, r.Score, 900.0)
}

func TestPipelineScore_StatementFeaturesOverrideDerived(t *testing.T) {
	p := testPipeline(t, estimator.Static{Probability: 0.05})

	st := testStatement("app-1")
	st.Features["monthly_income"] = 1 // pins the derived value

	withOverride, err := p.Score(context.Background(), st)
	require.NoError(t, err)
	plain, err := p.Score(context.Background(), testStatement("app-1"))
	require.NoError(t, err)

	assert.Less(t, withOverride.Subscore, plain.Subscore)
}

func TestPipelineScore_SkippedRowsCounted(t *testing.T) {
	p := testPipeline(t, estimator.Static{Probability: 0.05})

	st := testStatement("app-1")
	st.Records = append(st.Records, txn.Record{Date: "junk", Description: "BAD ROW", Debit: "10"})

	r, err := p.Score(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 1, r.RowsSkipped)
	assert.Len(t, r.Transactions, 5)
}

func TestScoreAll_KeepsInputOrder(t *testing.T) {
	p := testPipeline(t, estimator.Static{Probability: 0.05})

	statements := make([]Statement, 20)
	for i := range statements {
		statements[i] = testStatement(fmt.Sprintf("app-%d", i))
	}

	results, err := p.ScoreAll(context.Background(), statements, 4)
	require.NoError(t, err)
	require.Len(t, results, 20)

	for i, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, fmt.Sprintf("app-%d", i), r.Applicant)
	}
}

type failingEstimator struct{}

func (failingEstimator) Predict(context.Context, map[string]float64) (float64, error) {
	return 0, fmt.Errorf("model unavailable")
}

func TestScoreAll_PropagatesEstimatorError(t *testing.T) {
	p := testPipeline(t, failingEstimator{})

	_, err := p.ScoreAll(context.Background(), []Statement{testStatement("app-1")}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}
