package neural

import (
	"fmt"

	"github.com/pthm-cable/shoal/perception"
)

// Hold is the constant-velocity baseline: it predicts that an agent repeats
// its previous locomotion vector. It is a pure function of the observation.
type Hold struct {
	Layout perception.Layout
}

// Predict returns a copy of the previous-locomotion block of obs.
func (h Hold) Predict(obs []float64) ([]float64, error) {
	if len(obs) != h.Layout.Len() {
		return nil, fmt.Errorf("%w: observation has %d values, want %d", ErrShape, len(obs), h.Layout.Len())
	}
	return append([]float64(nil), h.Layout.Loc(obs)...), nil
}

// PredictBatch applies Predict to every row.
func (h Hold) PredictBatch(obs [][]float64) ([][]float64, error) {
	out := make([][]float64, len(obs))
	for i, o := range obs {
		p, err := h.Predict(o)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}
