package nnet

import "fmt"

// Graph collects layer configs while a network is assembled. The first error
// is kept and reported when the model is built, so calls can be chained.
type Graph struct {
	conf  Config
	names map[string]bool
	err   error
}

// Tensor is a symbolic reference to the output of a layer in a graph.
type Tensor struct {
	g    *Graph
	name string
}

func NewGraph() *Graph {
	return &Graph{names: map[string]bool{}}
}

// Input adds the input placeholder with the given per sample shape.
func (g *Graph) Input(name string, shape ...int) *Tensor {
	if len(g.conf.Layers) > 0 {
		g.fail(fmt.Errorf("%w: input %s must be the first layer", ErrConfig, name))
	}
	return g.add(InputLayer{Name: name, Shape: append([]int{}, shape...)}.Marshal(), "")
}

// Apply appends a layer fed by t and returns its output.
func (t *Tensor) Apply(l ConfigLayer) *Tensor {
	return t.g.add(l.Marshal(), t.name)
}

// Name of the layer which produces this tensor.
func (t *Tensor) Name() string { return t.name }

// Graph the tensor belongs to.
func (t *Tensor) Graph() *Graph { return t.g }

// Config returns the network definition with the given name and outputs.
func (g *Graph) Config(name string, outputs ...*Tensor) (Config, error) {
	if g.err != nil {
		return Config{}, g.err
	}
	if len(outputs) == 0 {
		return Config{}, fmt.Errorf("%w: model %s has no outputs", ErrConfig, name)
	}
	conf := g.conf
	conf.Name = name
	conf.Layers = append([]LayerConfig{}, g.conf.Layers...)
	conf.Outputs = nil
	for _, t := range outputs {
		if t.g != g {
			return Config{}, fmt.Errorf("%w: output %s is from another graph", ErrConfig, t.name)
		}
		conf.Outputs = append(conf.Outputs, t.name)
	}
	return conf, nil
}

// Model builds the network with the given name and outputs.
func (g *Graph) Model(name string, outputs ...*Tensor) (*Model, error) {
	conf, err := g.Config(name, outputs...)
	if err != nil {
		return nil, err
	}
	return New(conf)
}

func (g *Graph) add(l LayerConfig, input string) *Tensor {
	if l.Name == "" {
		g.fail(fmt.Errorf("%w: %s layer has no name", ErrConfig, l.Type))
	} else if g.names[l.Name] {
		g.fail(fmt.Errorf("%w: %s", ErrDuplicateLayer, l.Name))
	}
	g.names[l.Name] = true
	l.Input = input
	g.conf.Layers = append(g.conf.Layers, l)
	return &Tensor{g: g, name: l.Name}
}

func (g *Graph) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}
