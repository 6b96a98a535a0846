package neural

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// LayerWeights holds one layer's weights in row-major order.
type LayerWeights struct {
	W []float64 `json:"w"` // [out * in]
	B []float64 `json:"b"` // [out]
}

// Weights holds flattened network weights for serialization.
type Weights struct {
	Sizes  []int          `json:"sizes"`
	Layers []LayerWeights `json:"layers"`
}

// MarshalWeights flattens the network weights for JSON serialization.
func (nn *FFNN) MarshalWeights() Weights {
	w := Weights{Sizes: nn.Sizes()}
	for _, l := range nn.layers {
		out, in := l.W.Dims()
		lw := LayerWeights{
			W: make([]float64, 0, out*in),
			B: make([]float64, out),
		}
		for r := 0; r < out; r++ {
			lw.W = append(lw.W, mat.Row(nil, r, l.W)...)
		}
		copy(lw.B, l.B.RawVector().Data)
		w.Layers = append(w.Layers, lw)
	}
	return w
}

// FromWeights builds a network from flattened weights, checking every shape.
func FromWeights(w Weights) (*FFNN, error) {
	if err := checkSizes(w.Sizes); err != nil {
		return nil, err
	}
	if len(w.Layers) != len(w.Sizes)-1 {
		return nil, fmt.Errorf("%w: %d layers for sizes %v", ErrShape, len(w.Layers), w.Sizes)
	}
	nn := &FFNN{sizes: append([]int(nil), w.Sizes...)}
	for i, lw := range w.Layers {
		in, out := w.Sizes[i], w.Sizes[i+1]
		if len(lw.W) != out*in || len(lw.B) != out {
			return nil, fmt.Errorf("%w: layer %d has %d weights and %d biases, want %d and %d",
				ErrShape, i, len(lw.W), len(lw.B), out*in, out)
		}
		nn.layers = append(nn.layers, layer{
			W: mat.NewDense(out, in, append([]float64(nil), lw.W...)),
			B: mat.NewVecDense(out, append([]float64(nil), lw.B...)),
		})
	}
	return nn, nil
}

// LoadFFNN reads a network from a JSON weights file.
func LoadFFNN(path string) (*FFNN, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading weights: %w", err)
	}
	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing weights %s: %w", path, err)
	}
	return FromWeights(w)
}

// SaveWeights writes the network as a JSON weights file.
func (nn *FFNN) SaveWeights(path string) error {
	data, err := json.MarshalIndent(nn.MarshalWeights(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling weights: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing weights: %w", err)
	}
	return nil
}
