// Package neural provides the built-in locomotion predictors: a feedforward
// network and a constant-velocity baseline.
package neural

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when inputs or weights do not match the network shape.
var ErrShape = errors.New("neural: shape mismatch")

// layer is one affine transform out = W*in + b.
type layer struct {
	W *mat.Dense    // out x in
	B *mat.VecDense // out
}

// FFNN is a feedforward network with tanh hidden layers and a linear output
// layer. It is read-only after construction and safe for concurrent use.
type FFNN struct {
	sizes  []int
	layers []layer
}

// NewFFNN creates a randomly initialized network. sizes lists the input
// width, the hidden layer widths and the output width.
func NewFFNN(rng *rand.Rand, sizes []int) (*FFNN, error) {
	if err := checkSizes(sizes); err != nil {
		return nil, err
	}
	nn := &FFNN{sizes: append([]int(nil), sizes...)}
	for i := 0; i+1 < len(sizes); i++ {
		in, out := sizes[i], sizes[i+1]
		// Xavier (Glorot normal) initialization
		scale := math.Sqrt(2.0 / float64(in+out))
		w := make([]float64, out*in)
		for j := range w {
			w[j] = rng.NormFloat64() * scale
		}
		nn.layers = append(nn.layers, layer{
			W: mat.NewDense(out, in, w),
			B: mat.NewVecDense(out, nil),
		})
	}
	return nn, nil
}

func checkSizes(sizes []int) error {
	if len(sizes) < 2 {
		return fmt.Errorf("%w: need input and output sizes, got %v", ErrShape, sizes)
	}
	for _, s := range sizes {
		if s < 1 {
			return fmt.Errorf("%w: layer size %d in %v", ErrShape, s, sizes)
		}
	}
	return nil
}

// Inputs returns the input width.
func (nn *FFNN) Inputs() int { return nn.sizes[0] }

// Outputs returns the output width.
func (nn *FFNN) Outputs() int { return nn.sizes[len(nn.sizes)-1] }

// Sizes returns a copy of the layer widths.
func (nn *FFNN) Sizes() []int { return append([]int(nil), nn.sizes...) }

// Forward computes the network output for one input vector.
func (nn *FFNN) Forward(inputs []float64) ([]float64, error) {
	if len(inputs) != nn.Inputs() {
		return nil, fmt.Errorf("%w: got %d inputs, want %d", ErrShape, len(inputs), nn.Inputs())
	}
	x := mat.NewVecDense(len(inputs), append([]float64(nil), inputs...))
	for i, l := range nn.layers {
		out, _ := l.W.Dims()
		y := mat.NewVecDense(out, nil)
		y.MulVec(l.W, x)
		y.AddVec(y, l.B)
		if i < len(nn.layers)-1 {
			for j := 0; j < out; j++ {
				y.SetVec(j, math.Tanh(y.AtVec(j)))
			}
		}
		x = y
	}
	return x.RawVector().Data, nil
}

// ForwardBatch computes outputs for many inputs with one matrix product per
// layer. Row i of the result belongs to inputs[i].
func (nn *FFNN) ForwardBatch(inputs [][]float64) ([][]float64, error) {
	n := len(inputs)
	if n == 0 {
		return nil, nil
	}
	width := nn.Inputs()
	flat := make([]float64, 0, n*width)
	for i, in := range inputs {
		if len(in) != width {
			return nil, fmt.Errorf("%w: row %d has %d inputs, want %d", ErrShape, i, len(in), width)
		}
		flat = append(flat, in...)
	}

	x := mat.NewDense(n, width, flat)
	for i, l := range nn.layers {
		var z mat.Dense
		z.Mul(x, l.W.T())
		hidden := i < len(nn.layers)-1
		z.Apply(func(_, c int, v float64) float64 {
			v += l.B.AtVec(c)
			if hidden {
				return math.Tanh(v)
			}
			return v
		}, &z)
		x = &z
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(nil, i, x)
	}
	return out, nil
}

// Predict implements the simulation's predictor interface.
func (nn *FFNN) Predict(obs []float64) ([]float64, error) {
	return nn.Forward(obs)
}

// PredictBatch implements the simulation's batch predictor interface.
func (nn *FFNN) PredictBatch(obs [][]float64) ([][]float64, error) {
	return nn.ForwardBatch(obs)
}
