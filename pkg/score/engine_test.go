package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow-in/credscore/pkg/config"
)

func testScoring() config.Scoring {
	return config.Scoring{
		Categories: []config.ScoreCategory{
			{
				Name:   "income",
				Weight: 60,
				Features: []config.Feature{
					{Name: "monthly_income", Weight: 2, Min: 0, Max: 100000, Direction: config.DirectionHigherIsBetter},
					{Name: "months_covered", Weight: 1, Min: 1, Max: 12, Direction: config.DirectionHigherIsBetter},
				},
			},
			{
				Name:   "leverage",
				Weight: 40,
				Features: []config.Feature{
					{Name: "emi_ratio", Weight: 1, Min: 0, Max: 1, Direction: config.DirectionLowerIsBetter},
				},
			},
		},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name          string
		raw, min, max float64
		lowerIsBetter bool
		want          float64
	}{
		{"midpoint", 50, 0, 100, false, 0.5},
		{"at min", 0, 0, 100, false, 0},
		{"at max", 100, 0, 100, false, 1},
		{"below min clips", -50, 0, 100, false, 0},
		{"above max clips", 1e12, 0, 100, false, 1},
		{"inverted midpoint", 50, 0, 100, true, 0.5},
		{"inverted at min is good", 0, 0, 100, true, 1},
		{"inverted above max clips", 500, 0, 100, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw, tt.min, tt.max, tt.lowerIsBetter)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestNormalize_MonotonicAndBounded(t *testing.T) {
	prev := -1.0
	for raw := -500.0; raw <= 500; raw += 10 {
		v := Normalize(raw, 0, 100, false)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		assert.GreaterOrEqual(t, v, prev, "higher_is_better must be non-decreasing")
		prev = v
	}

	prev = 2.0
	for raw := -500.0; raw <= 500; raw += 10 {
		v := Normalize(raw, 0, 100, true)
		assert.LessOrEqual(t, v, prev, "lower_is_better must be non-increasing")
		prev = v
	}
}

func TestNewEngine_RejectsBadWeightSum(t *testing.T) {
	s := testScoring()
	s.Categories[0].Weight = 50 // 50 + 40 != 100

	_, err := NewEngine(s)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewEngine_AcceptsWeightTolerance(t *testing.T) {
	s := testScoring()
	s.Categories[0].Weight = 60.05

	_, err := NewEngine(s)
	assert.NoError(t, err)
}

func TestEngineScore(t *testing.T) {
	e, err := NewEngine(testScoring())
	require.NoError(t, err)

	// income: (1.0*2 + 0.5*1) / 3 = 0.8333; leverage: 1 - 0.25 = 0.75
	sub, breakdown := e.Score(map[string]float64{
		"monthly_income": 100000,
		"months_covered": 6.5,
		"emi_ratio":      0.25,
	})

	require.Len(t, breakdown, 2)
	assert.InDelta(t, 0.8333, breakdown[0].Score, 0.001)
	assert.InDelta(t, 0.75, breakdown[1].Score, 0.001)
	assert.InDelta(t, 0.8333*0.6+0.75*0.4, sub, 0.001)

	// contributions are the convex terms and sum to the sub-score
	total := 0.0
	for _, b := range breakdown {
		total += b.Contribution
	}
	assert.InDelta(t, sub, total, 1e-9)
}

func TestEngineScore_BoundedForArbitraryInputs(t *testing.T) {
	e, err := NewEngine(testScoring())
	require.NoError(t, err)

	inputs := []map[string]float64{
		{},
		{"monthly_income": -1e9, "months_covered": -5, "emi_ratio": 99},
		{"monthly_income": 1e12, "months_covered": 1e6, "emi_ratio": -3},
		{"unknown_feature": 42},
	}

	for _, in := range inputs {
		sub, _ := e.Score(in)
		assert.GreaterOrEqual(t, sub, 0.0)
		assert.LessOrEqual(t, sub, 1.0)
	}
}

func TestEngineScore_MissingFeatureScoresWorst(t *testing.T) {
	e, err := NewEngine(testScoring())
	require.NoError(t, err)

	withAll, _ := e.Score(map[string]float64{
		"monthly_income": 100000,
		"months_covered": 12,
		"emi_ratio":      0,
	})
	missingOne, _ := e.Score(map[string]float64{
		"monthly_income": 100000,
		"months_covered": 12,
	})

	assert.Less(t, missingOne, withAll)
}
