package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow-in/credscore/pkg/config"
)

func testBlend() config.Blend {
	return config.Blend{Alpha: 0.7, ScoreMin: 300, ScoreMax: 900}
}

func testAnchors() []config.Anchor {
	return []config.Anchor{
		{Probability: 0.02, Score: 800},
		{Probability: 0.12, Score: 550},
		{Probability: 0.25, Score: 450},
		{Probability: 0.60, Score: 330},
	}
}

func TestBlend_AlphaCombination(t *testing.T) {
	b, err := NewBlender(testBlend(), testAnchors(), nil)
	require.NoError(t, err)

	// alpha 0.7: 0.7*0.10 + 0.3*(1-0.80) = 0.13
	out := b.Blend(0.10, 0.80)
	assert.InDelta(t, 0.20, out.RiskFromRules, 1e-9)
	assert.InDelta(t, 0.13, out.Probability, 1e-9)
	assert.False(t, out.Clamped)
}

func TestBlend_AnchorInterpolation(t *testing.T) {
	b, err := NewBlender(testBlend(), testAnchors(), nil)
	require.NoError(t, err)

	// 0.13 between (0.12, 550) and (0.25, 450):
	// 550 - (0.01/0.13)*100 = 542.3077
	out := b.Blend(0.10, 0.80)
	assert.InDelta(t, 542.3077, out.Score, 0.001)
}

func TestBlend_ExactAnchorsReturnAnchorScores(t *testing.T) {
	b, err := NewBlender(config.Blend{Alpha: 1, ScoreMin: 300, ScoreMax: 900}, testAnchors(), nil)
	require.NoError(t, err)

	for _, a := range testAnchors() {
		out := b.Blend(a.Probability, 0.5)
		assert.InDelta(t, a.Score, out.Score, 1e-9, "p=%f", a.Probability)
	}
}

func TestBlend_MonotonicNonIncreasing(t *testing.T) {
	b, err := NewBlender(config.Blend{Alpha: 1, ScoreMin: 300, ScoreMax: 900}, testAnchors(), nil)
	require.NoError(t, err)

	prev := math.Inf(1)
	for p := 0.0; p <= 1.0; p += 0.001 {
		out := b.Blend(p, 0.5)
		assert.LessOrEqual(t, out.Score, prev, "score must not increase with probability (p=%f)", p)
		prev = out.Score
	}
}

func TestBlend_ClampsOutOfTableProbabilities(t *testing.T) {
	b, err := NewBlender(config.Blend{Alpha: 1, ScoreMin: 300, ScoreMax: 900}, testAnchors(), nil)
	require.NoError(t, err)

	low := b.Blend(0.001, 0.5)
	assert.InDelta(t, 800, low.Score, 1e-9)

	high := b.Blend(0.99, 0.5)
	assert.InDelta(t, 330, high.Score, 1e-9)
}

func TestBlend_ClampsOutOfRangeModelProbability(t *testing.T) {
	b, err := NewBlender(testBlend(), testAnchors(), nil)
	require.NoError(t, err)

	out := b.Blend(1.7, 0.80)
	assert.True(t, out.Clamped)
	assert.InDelta(t, 1.0, out.ModelProbability, 1e-9)
	assert.InDelta(t, 0.7*1.0+0.3*0.2, out.Probability, 1e-9)

	out = b.Blend(-0.4, 0.80)
	assert.True(t, out.Clamped)
	assert.InDelta(t, 0.0, out.ModelProbability, 1e-9)
}

func TestBlend_Calibration(t *testing.T) {
	cal := func(p float64) float64 { return p * 1.5 }
	b, err := NewBlender(testBlend(), testAnchors(), cal)
	require.NoError(t, err)

	out := b.Blend(0.10, 0.80)
	assert.InDelta(t, 0.13, out.Probability, 1e-9)
	assert.InDelta(t, 0.195, out.Calibrated, 1e-9)
	assert.InDelta(t, 0.065, out.CalibrationDelta, 1e-9)
}

func TestBlend_FinalScoreClampedToRange(t *testing.T) {
	anchors := []config.Anchor{
		{Probability: 0.0, Score: 950}, // wider than the score range
		{Probability: 1.0, Score: 100},
	}
	b, err := NewBlender(config.Blend{Alpha: 1, ScoreMin: 300, ScoreMax: 900}, anchors, nil)
	require.NoError(t, err)

	assert.InDelta(t, 900, b.Blend(0.0, 0.5).Score, 1e-9)
	assert.InDelta(t, 300, b.Blend(1.0, 0.5).Score, 1e-9)
}

func TestNewBlender_RejectsBadConfig(t *testing.T) {
	_, err := NewBlender(config.Blend{Alpha: 1.5, ScoreMin: 300, ScoreMax: 900}, testAnchors(), nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = NewBlender(testBlend(), []config.Anchor{{Probability: 0.5, Score: 500}}, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	bad := testAnchors()
	bad[1].Probability = 0.01 // not increasing
	_, err = NewBlender(testBlend(), bad, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBlend_Idempotent(t *testing.T) {
	b, err := NewBlender(testBlend(), testAnchors(), nil)
	require.NoError(t, err)

	first := b.Blend(0.33, 0.6)
	second := b.Blend(0.33, 0.6)
	assert.Equal(t, first, second)
}
