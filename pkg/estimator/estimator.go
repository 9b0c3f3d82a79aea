// Package estimator defines the contract to the external statistical
// default-probability model. The core depends only on the single numeric
// Predict contract, never on the model's internals.
package estimator

import (
	"context"
)

// Estimator supplies a default probability for a feature vector. Values
// outside [0,1] are tolerated by callers (clamped with a warning).
type Estimator interface {
	Predict(ctx context.Context, features map[string]float64) (float64, error)
}

// Static always returns a fixed probability. Used as a deterministic
// test double and by the CLI --probability flag.
type Static struct {
	Probability float64
}

func (s Static) Predict(_ context.Context, _ map[string]float64) (float64, error) {
	return s.Probability, nil
}
