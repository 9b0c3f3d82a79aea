package score

import (
	"log/slog"

	"github.com/lendflow-in/credscore/pkg/config"
)

// Calibration is a monotonic correction applied to the blended
// probability before it is mapped to a score. Fit out-of-band on
// validation data and injected as an opaque function.
type Calibration func(float64) float64

// Blender combines the rule sub-score with the statistical default
// probability and maps the result onto the bounded score scale via
// anchor-point interpolation. Immutable after construction.
type Blender struct {
	cfg       config.Blend
	anchors   []config.Anchor
	calibrate Calibration
}

// Blended carries the final score plus everything an audit consumer
// needs to reproduce it.
type Blended struct {
	Score            float64 `json:"score"`
	Probability      float64 `json:"probability"`
	Calibrated       float64 `json:"calibrated"`
	CalibrationDelta float64 `json:"calibration_delta"`
	RiskFromRules    float64 `json:"risk_from_rules"`
	ModelProbability float64 `json:"model_probability"`
	Clamped          bool    `json:"clamped,omitempty"`
}

// NewBlender validates the blend config and anchor table. A nil
// calibration means identity.
func NewBlender(cfg config.Blend, anchors []config.Anchor, cal Calibration) (*Blender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := config.ValidateAnchors(anchors); err != nil {
		return nil, err
	}
	return &Blender{cfg: cfg, anchors: anchors, calibrate: cal}, nil
}

// Blend is a pure, idempotent function of its inputs. Estimator values
// outside [0,1] are clamped and flagged, never rejected.
func (b *Blender) Blend(modelProbability, subscore float64) Blended {
	out := Blended{ModelProbability: modelProbability}

	p := modelProbability
	if p < 0 || p > 1 {
		slog.Warn("model probability outside [0,1], clamping", "probability", p)
		out.Clamped = true
		p = clamp(p, 0, 1)
		out.ModelProbability = p
	}

	out.RiskFromRules = 1 - subscore
	out.Probability = b.cfg.Alpha*p + (1-b.cfg.Alpha)*out.RiskFromRules

	out.Calibrated = out.Probability
	if b.calibrate != nil {
		out.Calibrated = clamp(b.calibrate(out.Probability), 0, 1)
	}
	out.CalibrationDelta = out.Calibrated - out.Probability

	out.Score = clamp(b.mapScore(out.Calibrated), b.cfg.ScoreMin, b.cfg.ScoreMax)
	return out
}

// mapScore interpolates linearly between the bracketing anchors.
// Probabilities outside the table clamp to the extreme scores.
func (b *Blender) mapScore(p float64) float64 {
	first := b.anchors[0]
	last := b.anchors[len(b.anchors)-1]

	if p <= first.Probability {
		return first.Score
	}
	if p >= last.Probability {
		return last.Score
	}

	for i := 1; i < len(b.anchors); i++ {
		hi := b.anchors[i]
		if p > hi.Probability {
			continue
		}
		lo := b.anchors[i-1]
		frac := (p - lo.Probability) / (hi.Probability - lo.Probability)
		return lo.Score + frac*(hi.Score-lo.Score)
	}

	return last.Score
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
