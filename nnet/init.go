package nnet

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Weight initialisation scheme, names follow the usual Keras conventions.
type InitType string

const (
	GlorotUniform InitType = "glorot_uniform"
	HeUniform     InitType = "he_uniform"
)

// Fill sets the weights from the distribution for the given fan in and fan out.
// An empty InitType uses GlorotUniform.
func (t InitType) Fill(w []float32, fanIn, fanOut int, src rand.Source) error {
	if fanIn <= 0 || fanOut <= 0 {
		return fmt.Errorf("%w: invalid fan in %d / fan out %d", ErrShape, fanIn, fanOut)
	}
	var dist interface{ Rand() float64 }
	switch t {
	case "", GlorotUniform:
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		dist = distuv.Uniform{Min: -limit, Max: limit, Src: src}
	case HeUniform:
		limit := math.Sqrt(6 / float64(fanIn))
		dist = distuv.Uniform{Min: -limit, Max: limit, Src: src}
	default:
		return fmt.Errorf("%w: unknown weight init %q", ErrConfig, t)
	}
	for i := range w {
		w[i] = float32(dist.Rand())
	}
	return nil
}

// Limit returns the bound of a uniform initialiser, or 0 for other types.
func (t InitType) Limit(fanIn, fanOut int) float64 {
	switch t {
	case "", GlorotUniform:
		return math.Sqrt(6 / float64(fanIn+fanOut))
	case HeUniform:
		return math.Sqrt(6 / float64(fanIn))
	}
	return 0
}
