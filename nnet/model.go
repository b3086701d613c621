// Package nnet contains routines for constructing, loading and running neural networks.
package nnet

import (
	"fmt"
	"strings"

	"github.com/ethanbass/amfinder/num"
	"github.com/ethanbass/amfinder/stats"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// Model type represents a network graph with a single input and one or more output heads.
type Model struct {
	Config
	Layers  []Layer
	index   map[string]int
	parent  []int
	shapes  [][]int
	lastUse []int
}

// Head describes one output of the model.
type Head struct {
	Name       string
	Units      int
	Activation string
}

// LayerStats summarises the weights of one parameter layer.
type LayerStats struct {
	Name     string
	Weights  stats.Average
	Min, Max float64
}

// New function creates a new network from the config. Weights are zero until
// InitWeights or SetParams is called.
func New(conf Config) (*Model, error) {
	if len(conf.Layers) == 0 || conf.Layers[0].Type != "input" {
		return nil, fmt.Errorf("%w: model %s must start with an input layer", ErrConfig, conf.Name)
	}
	m := &Model{Config: conf, index: map[string]int{}}
	for i, lc := range conf.Layers {
		if lc.Name == "" {
			return nil, fmt.Errorf("%w: layer %d has no name", ErrConfig, i)
		}
		if _, dup := m.index[lc.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLayer, lc.Name)
		}
		layer, err := lc.Unmarshal()
		if err != nil {
			return nil, err
		}
		parent := -1
		var inShape []int
		if i > 0 {
			if lc.Type == "input" {
				return nil, fmt.Errorf("%w: %s: only one input layer allowed", ErrConfig, lc.Name)
			}
			p, ok := m.index[lc.Input]
			if !ok {
				return nil, fmt.Errorf("%w: layer %s: unknown input %q", ErrConfig, lc.Name, lc.Input)
			}
			parent, inShape = p, m.shapes[p]
		}
		if err := layer.Init(inShape); err != nil {
			return nil, fmt.Errorf("layer %s: %w", lc.Name, err)
		}
		m.index[lc.Name] = i
		m.Layers = append(m.Layers, layer)
		m.parent = append(m.parent, parent)
		m.shapes = append(m.shapes, layer.OutShape(inShape))
	}
	if len(conf.Outputs) == 0 {
		return nil, fmt.Errorf("%w: model %s has no outputs", ErrConfig, conf.Name)
	}
	seen := map[string]bool{}
	for _, name := range conf.Outputs {
		if _, ok := m.index[name]; !ok {
			return nil, fmt.Errorf("%w: unknown output %q", ErrConfig, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: output %s", ErrDuplicateLayer, name)
		}
		seen[name] = true
	}
	// index of the last layer which reads each output
	m.lastUse = make([]int, len(m.Layers))
	for i, p := range m.parent {
		m.lastUse[i] = i
		if p >= 0 {
			m.lastUse[p] = i
		}
	}
	return m, nil
}

// Compile records the loss, optimizer and metrics used by the training loop.
func (m *Model) Compile(loss, optimizer string, metrics ...string) {
	m.Loss = loss
	m.Optimizer = optimizer
	m.Metrics = append([]string{}, metrics...)
}

// GetLayer looks up a layer by name.
func (m *Model) GetLayer(name string) (Layer, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.Layers[i], true
}

// Shape returns the per sample output shape of the named layer.
func (m *Model) Shape(name string) ([]int, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return append([]int{}, m.shapes[i]...), true
}

// InputShape is the per sample shape of the input layer.
func (m *Model) InputShape() []int {
	return append([]int{}, m.shapes[0]...)
}

// Heads describes the model outputs in order.
func (m *Model) Heads() []Head {
	heads := make([]Head, len(m.Outputs))
	for i, name := range m.Outputs {
		ix := m.index[name]
		heads[i] = Head{Name: name, Units: num.Prod(m.shapes[ix]), Activation: Linear}
		if l, ok := m.Layers[ix].(OutputLayer); ok {
			heads[i].Units, heads[i].Activation = l.Units(), l.ActivationName()
		}
	}
	return heads
}

// Initialise network weights from the per layer initialiser using the given seed.
func (m *Model) InitWeights(seed uint64) error {
	src := rand.NewSource(seed)
	for _, layer := range m.Layers {
		if l, ok := layer.(ParamLayer); ok {
			if err := l.InitParams(src); err != nil {
				return fmt.Errorf("layer %s: %w", l.Name(), err)
			}
		}
	}
	return nil
}

// Forward feeds the input through the network and returns the outputs of the named
// layers. If no names are given the model outputs are returned.
func (m *Model) Forward(input *num.Array, names ...string) (map[string]*num.Array, error) {
	dims := input.Dims()
	if len(dims) != len(m.shapes[0])+1 || !num.SameShape(dims[1:], m.shapes[0]) {
		return nil, fmt.Errorf("%w: input %v does not match model input %v", ErrShape, dims, m.shapes[0])
	}
	if len(names) == 0 {
		names = m.Outputs
	}
	keep := make([]bool, len(m.Layers))
	for _, name := range names {
		i, ok := m.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown layer %q", ErrConfig, name)
		}
		keep[i] = true
	}
	outputs := make([]*num.Array, len(m.Layers))
	for i, layer := range m.Layers {
		src := input
		if p := m.parent[i]; p >= 0 {
			src = outputs[p]
		}
		outputs[i] = layer.Fprop(src)
		// release inputs once their last consumer has run
		if p := m.parent[i]; p >= 0 && m.lastUse[p] == i && !keep[p] {
			outputs[p] = nil
		}
	}
	res := make(map[string]*num.Array, len(names))
	for _, name := range names {
		res[name] = outputs[m.index[name]]
	}
	return res, nil
}

// Predict returns the model outputs in the same order as Outputs.
func (m *Model) Predict(input *num.Array) ([]*num.Array, error) {
	out, err := m.Forward(input)
	if err != nil {
		return nil, err
	}
	res := make([]*num.Array, len(m.Outputs))
	for i, name := range m.Outputs {
		res[i] = out[name]
	}
	return res, nil
}

// Number of weight and bias parameters in the named layer.
func (m *Model) LayerParams(name string) int {
	layer, ok := m.GetLayer(name)
	if !ok {
		return 0
	}
	if l, ok := layer.(ParamLayer); ok {
		W, B := l.Params()
		return W.Size() + B.Size()
	}
	return 0
}

// Total number of trainable parameters.
func (m *Model) NumParams() (n int) {
	for _, layer := range m.Layers {
		n += m.LayerParams(layer.Name())
	}
	return n
}

// WeightStats returns the mean, standard deviation and range of the weights of each parameter layer.
func (m *Model) WeightStats() []LayerStats {
	var res []LayerStats
	for _, layer := range m.Layers {
		l, ok := layer.(ParamLayer)
		if !ok {
			continue
		}
		W, _ := l.Params()
		vals := make([]float64, W.Size())
		s := LayerStats{Name: l.Name()}
		s.Weights.AddAll(W.Data)
		for i, v := range W.Data {
			vals[i] = float64(v)
		}
		s.Min, s.Max = floats.Min(vals), floats.Max(vals)
		res = append(res, s)
	}
	return res
}

// Summary prints a table of layers, output shapes and parameter counts.
func (m *Model) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model: %s\n", m.Name)
	fmt.Fprintf(&b, "%-16s %-18s %10s  %s\n", "Layer (type)", "Output shape", "Param #", "Connected to")
	for i, layer := range m.Layers {
		shape := make([]string, len(m.shapes[i]))
		for j, d := range m.shapes[i] {
			shape[j] = fmt.Sprint(d)
		}
		from := ""
		if p := m.parent[i]; p >= 0 {
			from = m.Layers[p].Name()
		}
		fmt.Fprintf(&b, "%-16s %-18s %10d  %s\n",
			fmt.Sprintf("%s (%s)", layer.Name(), layer.Type()),
			"("+strings.Join(shape, ", ")+")",
			m.LayerParams(layer.Name()), from)
	}
	fmt.Fprintf(&b, "Total params: %d\n", m.NumParams())
	return b.String()
}

// Print network description
func (m *Model) String() string {
	s := make([]string, len(m.Layers))
	for i, layer := range m.Layers {
		s[i] = fmt.Sprintf("%2d: %-40s %v", i, layer.ToString(), m.shapes[i])
	}
	return fmt.Sprintf("%s\nOutputs: %v\n== Layers ==\n%s", m.Name, m.Outputs, strings.Join(s, "\n"))
}
