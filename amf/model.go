// Package amf builds and loads the convolutional networks used to annotate
// roots colonised by arbuscular mycorrhizal fungi.
//
// Two topologies share one convolutional backbone:
//
//	col  single softmax head RS: colonized (Y), non-colonized (N), background (X)
//	myc  one sigmoid head per fungal structure: arbuscule (A), vesicle (V),
//	     hyphopodium (H), intraradical hypha (I)
package amf

import (
	"fmt"

	"github.com/ethanbass/amfinder/nnet"
)

const (
	// Size in pixels of the square input tiles.
	InputSize = 126
	// Model names used to tag the two topologies.
	ColonizationName  = "col"
	MycStructuresName = "myc"
	// Name of the root segmentation output layer of the colonization network.
	RootSegmentation = "RS"
)

// Compile settings applied by the topology assemblers.
const (
	Optimizer               = "adam"
	CategoricalCrossentropy = "categorical_crossentropy"
	BinaryCrossentropy      = "binary_crossentropy"
	Accuracy                = "acc"
)

// Convolutions builds the shared backbone on a new graph: four conv / max pool
// blocks taking a 126x126x3 tile down to 5x5x128, then flattened to 3200 values.
func Convolutions() (input, flatten *nnet.Tensor) {
	g := nnet.NewGraph()
	input = g.Input("input", InputSize, InputSize, 3)

	conv := func(x *nnet.Tensor, name string, feats int) *nnet.Tensor {
		return x.Apply(nnet.Conv{Name: name, Nfeats: feats, Size: 3, Activation: nnet.Relu, Init: nnet.HeUniform})
	}
	kc := 32

	// block 1: 126x126 -> 120x120 -> 60x60
	x := conv(input, "C11", kc)
	x = conv(x, "C12", kc)
	x = conv(x, "C13", kc)
	x = x.Apply(nnet.MaxPool{Name: "M1", Size: 2})

	kc *= 2

	// block 2: 60x60 -> 56x56 -> 28x28
	x = conv(x, "C21", kc)
	x = conv(x, "C22", kc)
	x = x.Apply(nnet.MaxPool{Name: "M2", Size: 2})

	kc *= 2

	// block 3: 28x28 -> 24x24 -> 12x12
	x = conv(x, "C31", kc)
	x = conv(x, "C32", kc)
	x = x.Apply(nnet.MaxPool{Name: "M3", Size: 2})

	// last convolution: 12x12 -> 10x10 -> 5x5
	x = conv(x, "C4", kc)
	x = x.Apply(nnet.MaxPool{Name: "M4", Size: 2})

	flatten = x.Apply(nnet.Flatten{Name: "F"})
	return input, flatten
}

// FCLayers attaches a fully connected head with dropout to x. Layer names are
// prefixed with the label so several heads can share one backbone.
// A count below 1 gives a single output and an empty activation means sigmoid.
func FCLayers(x *nnet.Tensor, label string, count int, activation string) *nnet.Tensor {
	if count < 1 {
		count = 1
	}
	if activation == "" {
		activation = nnet.Sigmoid
	}
	x = x.Apply(nnet.Dense{Name: "FC" + label + "1", Nout: 64, Activation: nnet.Relu, Init: nnet.HeUniform})
	x = x.Apply(nnet.Dropout{Name: "D" + label + "1", Rate: 0.3})
	x = x.Apply(nnet.Dense{Name: "FC" + label + "2", Nout: 16, Activation: nnet.Relu, Init: nnet.HeUniform})
	x = x.Apply(nnet.Dropout{Name: "D" + label + "2", Rate: 0.2})
	return x.Apply(nnet.Dense{Name: label, Nout: count, Activation: activation})
}

// Colonization builds the single-label, multi-class classifier which tells
// colonized (Y) and non-colonized (N) roots from background (X).
// Weights are left at zero until InitWeights is called.
func Colonization() (*nnet.Model, error) {
	input, flatten := Convolutions()
	output := FCLayers(flatten, RootSegmentation, len(ColonizationHeader), nnet.Softmax)
	m, err := input.Graph().Model(ColonizationName, output)
	if err != nil {
		return nil, err
	}
	m.Compile(CategoricalCrossentropy, Optimizer, Accuracy)
	return m, nil
}

// MycStructures builds the multi-label classifier with one independent sigmoid
// output per structure label, in the order given.
func MycStructures(headers []string) (*nnet.Model, error) {
	if len(headers) == 0 {
		return nil, ErrEmptyHeader
	}
	input, flatten := Convolutions()
	outputs := make([]*nnet.Tensor, len(headers))
	for i, label := range headers {
		if label == "" || label == RootSegmentation {
			return nil, fmt.Errorf("%w: invalid structure label %q", ErrInvalidConfig, label)
		}
		outputs[i] = FCLayers(flatten, label, 1, nnet.Sigmoid)
	}
	m, err := input.Graph().Model(MycStructuresName, outputs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	m.Compile(BinaryCrossentropy, Optimizer, Accuracy)
	return m, nil
}
