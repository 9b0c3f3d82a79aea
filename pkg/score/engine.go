// Package score aggregates normalized applicant features into a
// rule-based sub-score and blends it with a statistical default
// probability into a bounded credit score.
package score

import (
	"github.com/lendflow-in/credscore/pkg/config"
)

// Engine computes weighted category scores and the overall rule
// sub-score from a flat feature map. Immutable after construction.
type Engine struct {
	categories []config.ScoreCategory
}

// CategoryScore is one category's contribution to the sub-score, kept
// for the explanation breakdown.
type CategoryScore struct {
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// NewEngine validates the weight table and builds an engine. The sum
// check is repeated here so hand-built tables fail fast too.
func NewEngine(s config.Scoring) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Engine{categories: s.Categories}, nil
}

// Normalize linearly scales raw between min and max into [0,1], clipping
// outside the bounds. When lowerIsBetter the scale is inverted, so 1.0
// always means "good".
func Normalize(raw, min, max float64, lowerIsBetter bool) float64 {
	v := (raw - min) / (max - min)
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if lowerIsBetter {
		v = 1 - v
	}
	return v
}

// Score computes the rule sub-score in [0,1] (higher = lower risk) and
// the per-category breakdown. Category weights sum to 100 by the
// load-time invariant, so the sub-score is a convex combination.
// Features missing from the map score 0, the conservative reading.
func (e *Engine) Score(features map[string]float64) (float64, []CategoryScore) {
	breakdown := make([]CategoryScore, 0, len(e.categories))
	total := 0.0

	for _, c := range e.categories {
		cs := e.categoryScore(c, features)
		contribution := cs * c.Weight / 100
		total += contribution
		breakdown = append(breakdown, CategoryScore{
			Name:         c.Name,
			Score:        cs,
			Weight:       c.Weight,
			Contribution: contribution,
		})
	}

	return total, breakdown
}

// categoryScore is the weighted average of the category's normalized
// features. Intra-category weights are shares, not a contract, so they
// are renormalized by their own sum.
func (e *Engine) categoryScore(c config.ScoreCategory, features map[string]float64) float64 {
	var weighted, weightSum float64
	for _, f := range c.Features {
		n := 0.0
		if raw, ok := features[f.Name]; ok {
			n = Normalize(raw, f.Min, f.Max, f.Direction == config.DirectionLowerIsBetter)
		}
		weighted += n * f.Weight
		weightSum += f.Weight
	}
	if weightSum == 0 {
		return 0
	}
	return weighted / weightSum
}
