package nnet

import (
	"encoding/json"
	"fmt"

	"github.com/ethanbass/amfinder/num"
	"golang.org/x/exp/rand"
)

// Activation functions which can be fused into conv and dense layers.
const (
	Linear  = "linear"
	Relu    = "relu"
	Sigmoid = "sigmoid"
	Softmax = "softmax"
)

// Layer interface type represents one node of the network graph.
// Shapes exclude the batch dimension, arrays passed to Fprop include it.
type Layer interface {
	Name() string
	Type() string
	Init(inShape []int) error
	OutShape(inShape []int) []int
	Fprop(in *num.Array) *num.Array
	ToString() string
}

// ParamLayer is a layer with weight and bias parameters
type ParamLayer interface {
	Layer
	InitParams(src rand.Source) error
	Params() (W, B *num.Array)
	SetParams(W, B []float32) error
}

// OutputLayer can terminate a classification head.
type OutputLayer interface {
	Layer
	Units() int
	ActivationName() string
}

// Layer configuration details
type LayerConfig struct {
	Type  string
	Name  string
	Input string          `json:",omitempty"`
	Data  json.RawMessage `json:",omitempty"`
}

type ConfigLayer interface {
	Marshal() LayerConfig
}

// Unmarshal JSON data and construct new layer
func (l LayerConfig) Unmarshal() (Layer, error) {
	var layer Layer
	var err error
	switch l.Type {
	case "input":
		cfg := &InputLayer{Name: l.Name}
		err = unmarshal(l.Data, cfg)
		layer = &input{InputLayer: *cfg}
	case "conv":
		cfg := &Conv{Name: l.Name}
		err = unmarshal(l.Data, cfg)
		layer = &conv{Conv: *cfg}
	case "maxPool":
		cfg := &MaxPool{Name: l.Name}
		err = unmarshal(l.Data, cfg)
		layer = &maxPool{MaxPool: *cfg}
	case "flatten":
		layer = &flatten{Flatten: Flatten{Name: l.Name}}
	case "dense":
		cfg := &Dense{Name: l.Name}
		err = unmarshal(l.Data, cfg)
		layer = &dense{Dense: *cfg}
	case "dropout":
		cfg := &Dropout{Name: l.Name}
		err = unmarshal(l.Data, cfg)
		layer = &dropout{Dropout: *cfg}
	default:
		return nil, fmt.Errorf("%w: invalid layer type %q", ErrConfig, l.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: layer %s: %v", ErrConfig, l.Name, err)
	}
	return layer, nil
}

func (l LayerConfig) String() string {
	layer, err := l.Unmarshal()
	if err != nil {
		return err.Error()
	}
	if l.Input == "" {
		return layer.ToString()
	}
	return layer.ToString() + " <- " + l.Input
}

// Input placeholder, must be the first layer in the graph.
type InputLayer struct {
	Name  string `json:"-"`
	Shape []int
}

func (c InputLayer) Marshal() LayerConfig {
	return LayerConfig{Type: "input", Name: c.Name, Data: marshal(c)}
}

func (c InputLayer) ToString() string {
	return fmt.Sprintf("%s: input %v", c.Name, c.Shape)
}

// Convolutional layer with optional fused activation, implements ParamLayer interface.
type Conv struct {
	Name                      string `json:"-"`
	Nfeats, Size, Stride, Pad int
	Activation                string   `json:",omitempty"`
	Init                      InitType `json:",omitempty"`
}

func (c Conv) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = 1
	}
	return LayerConfig{Type: "conv", Name: c.Name, Data: marshal(c)}
}

func (c Conv) ToString() string {
	return fmt.Sprintf("%s: conv %dx%d/%d feats=%d %s", c.Name, c.Size, c.Size, c.Stride, c.Nfeats, activationName(c.Activation))
}

// Max pooling layer, should follow conv layer.
type MaxPool struct {
	Name         string `json:"-"`
	Size, Stride int
}

func (c MaxPool) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = c.Size
	}
	return LayerConfig{Type: "maxPool", Name: c.Name, Data: marshal(c)}
}

func (c MaxPool) ToString() string {
	return fmt.Sprintf("%s: maxPool %dx%d/%d", c.Name, c.Size, c.Size, c.Stride)
}

// Flatten layer reshapes to one dimension per sample.
type Flatten struct {
	Name string `json:"-"`
}

func (c Flatten) Marshal() LayerConfig {
	return LayerConfig{Type: "flatten", Name: c.Name}
}

func (c Flatten) ToString() string {
	return c.Name + ": flatten"
}

// Dense fully connected layer, implements ParamLayer and OutputLayer interfaces.
type Dense struct {
	Name       string `json:"-"`
	Nout       int
	Activation string   `json:",omitempty"`
	Init       InitType `json:",omitempty"`
}

func (c Dense) Marshal() LayerConfig {
	return LayerConfig{Type: "dense", Name: c.Name, Data: marshal(c)}
}

func (c Dense) ToString() string {
	return fmt.Sprintf("%s: dense %d %s", c.Name, c.Nout, activationName(c.Activation))
}

// Dropout layer. Inference only, so Fprop passes its input through.
type Dropout struct {
	Name string `json:"-"`
	Rate float64
}

func (c Dropout) Marshal() LayerConfig {
	return LayerConfig{Type: "dropout", Name: c.Name, Data: marshal(c)}
}

func (c Dropout) ToString() string {
	return fmt.Sprintf("%s: dropout %g", c.Name, c.Rate)
}

// input layer implementation
type input struct {
	InputLayer
}

func (l *input) Name() string { return l.InputLayer.Name }

func (l *input) Type() string { return "input" }

func (l *input) Init(inShape []int) error {
	if len(l.Shape) == 0 {
		return fmt.Errorf("%w: input %s has no shape", ErrShape, l.InputLayer.Name)
	}
	for _, d := range l.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: input %s shape %v", ErrShape, l.InputLayer.Name, l.Shape)
		}
	}
	return nil
}

func (l *input) OutShape(inShape []int) []int { return l.Shape }

func (l *input) Fprop(in *num.Array) *num.Array { return in }

// convolutional layer implementation
type conv struct {
	Conv
	paramBase
}

func (l *conv) Name() string { return l.Conv.Name }

func (l *conv) Type() string { return "conv" }

func (l *conv) Init(inShape []int) error {
	if len(inShape) != 3 {
		return fmt.Errorf("%w: conv %s expects 3 dimensional input, got %v", ErrShape, l.Conv.Name, inShape)
	}
	if l.Nfeats <= 0 || l.Size <= 0 || l.Stride <= 0 || l.Pad < 0 {
		return fmt.Errorf("%w: conv %s: invalid settings %+v", ErrConfig, l.Conv.Name, l.Conv)
	}
	if err := checkActivation(l.Activation); err != nil {
		return err
	}
	out := l.OutShape(inShape)
	if out[0] <= 0 || out[1] <= 0 {
		return fmt.Errorf("%w: conv %s: input %v too small for kernel %d", ErrShape, l.Conv.Name, inShape, l.Size)
	}
	depth := inShape[2]
	l.paramBase = newParams(
		[]int{l.Size, l.Size, depth, l.Nfeats},
		l.Size*l.Size*depth, l.Size*l.Size*l.Nfeats, l.Conv.Init,
	)
	l.inShape = append([]int{}, inShape...)
	return nil
}

func (l *conv) OutShape(inShape []int) []int {
	return []int{
		num.ConvOut(inShape[0], l.Size, l.Stride, l.Pad),
		num.ConvOut(inShape[1], l.Size, l.Stride, l.Pad),
		l.Nfeats,
	}
}

func (l *conv) Fprop(in *num.Array) *num.Array {
	h, w, d := l.inShape[0], l.inShape[1], l.inShape[2]
	out := l.OutShape(l.inShape)
	pixels := out[0] * out[1]
	nBatch := in.Batch()
	dst := num.NewArray(nBatch, out[0], out[1], out[2])
	cols := num.NewArray(pixels, l.Size*l.Size*d)
	weights := l.w.Reshape(-1, l.Nfeats)
	for i := 0; i < nBatch; i++ {
		num.Im2col(in.Sample(i), h, w, d, l.Size, l.Stride, l.Pad, cols)
		num.Gemm(1, 0, cols, weights, num.NewArrayFrom(dst.Sample(i), pixels, l.Nfeats), num.NoTrans, num.NoTrans)
	}
	num.AddBias(dst, l.b.Data)
	activate(l.Activation, dst)
	return dst
}

// pool layer implentation
type maxPool struct {
	MaxPool
	inShape []int
}

func (l *maxPool) Name() string { return l.MaxPool.Name }

func (l *maxPool) Type() string { return "maxPool" }

func (l *maxPool) Init(inShape []int) error {
	if len(inShape) != 3 {
		return fmt.Errorf("%w: maxPool %s expects 3 dimensional input, got %v", ErrShape, l.MaxPool.Name, inShape)
	}
	if l.Size <= 0 || l.Stride <= 0 {
		return fmt.Errorf("%w: maxPool %s: invalid settings %+v", ErrConfig, l.MaxPool.Name, l.MaxPool)
	}
	if inShape[0] < l.Size || inShape[1] < l.Size {
		return fmt.Errorf("%w: maxPool %s: input %v smaller than pool size %d", ErrShape, l.MaxPool.Name, inShape, l.Size)
	}
	l.inShape = append([]int{}, inShape...)
	return nil
}

func (l *maxPool) OutShape(inShape []int) []int {
	return []int{
		num.ConvOut(inShape[0], l.Size, l.Stride, 0),
		num.ConvOut(inShape[1], l.Size, l.Stride, 0),
		inShape[2],
	}
}

func (l *maxPool) Fprop(in *num.Array) *num.Array {
	out := l.OutShape(l.inShape)
	dst := num.NewArray(in.Batch(), out[0], out[1], out[2])
	for i := 0; i < in.Batch(); i++ {
		num.MaxPool(in.Sample(i), l.inShape[0], l.inShape[1], l.inShape[2], l.Size, l.Stride, dst.Sample(i))
	}
	return dst
}

type flatten struct {
	Flatten
}

func (l *flatten) Name() string { return l.Flatten.Name }

func (l *flatten) Type() string { return "flatten" }

func (l *flatten) Init(inShape []int) error { return nil }

func (l *flatten) OutShape(inShape []int) []int {
	return []int{num.Prod(inShape)}
}

func (l *flatten) Fprop(in *num.Array) *num.Array {
	return in.Reshape(in.Batch(), -1)
}

// dense layer implementation
type dense struct {
	Dense
	paramBase
}

func (l *dense) Name() string { return l.Dense.Name }

func (l *dense) Type() string { return "dense" }

func (l *dense) Units() int { return l.Nout }

func (l *dense) ActivationName() string { return activationName(l.Activation) }

func (l *dense) Init(inShape []int) error {
	if len(inShape) != 1 {
		return fmt.Errorf("%w: dense %s expects flattened input, got %v", ErrShape, l.Dense.Name, inShape)
	}
	if l.Nout <= 0 {
		return fmt.Errorf("%w: dense %s: output count must be positive", ErrConfig, l.Dense.Name)
	}
	if err := checkActivation(l.Activation); err != nil {
		return err
	}
	l.paramBase = newParams([]int{inShape[0], l.Nout}, inShape[0], l.Nout, l.Dense.Init)
	return nil
}

func (l *dense) OutShape(inShape []int) []int {
	return []int{l.Nout}
}

func (l *dense) Fprop(in *num.Array) *num.Array {
	src := in.Reshape(in.Batch(), -1)
	dst := num.NewArray(in.Batch(), l.Nout)
	num.Gemm(1, 0, src, l.w, dst, num.NoTrans, num.NoTrans)
	num.AddBias(dst, l.b.Data)
	activate(l.Activation, dst)
	return dst
}

type dropout struct {
	Dropout
}

func (l *dropout) Name() string { return l.Dropout.Name }

func (l *dropout) Type() string { return "dropout" }

func (l *dropout) Init(inShape []int) error {
	if l.Rate < 0 || l.Rate >= 1 {
		return fmt.Errorf("%w: dropout %s: rate %g out of range", ErrConfig, l.Dropout.Name, l.Rate)
	}
	return nil
}

func (l *dropout) OutShape(inShape []int) []int { return inShape }

func (l *dropout) Fprop(in *num.Array) *num.Array { return in }

// weight and bias parameters
type paramBase struct {
	w, b    *num.Array
	fanIn   int
	fanOut  int
	init    InitType
	inShape []int
}

func newParams(wShape []int, fanIn, fanOut int, init InitType) paramBase {
	return paramBase{
		w:      num.NewArray(wShape...),
		b:      num.NewArray(wShape[len(wShape)-1]),
		fanIn:  fanIn,
		fanOut: fanOut,
		init:   init,
	}
}

func (p *paramBase) Params() (W, B *num.Array) {
	return p.w, p.b
}

// Biases start at zero, weights are drawn from the configured initialiser.
func (p *paramBase) InitParams(src rand.Source) error {
	for i := range p.b.Data {
		p.b.Data[i] = 0
	}
	return p.init.Fill(p.w.Data, p.fanIn, p.fanOut, src)
}

func (p *paramBase) SetParams(W, B []float32) error {
	if len(W) != p.w.Size() || len(B) != p.b.Size() {
		return fmt.Errorf("%w: size mismatch - have %d %d - expect %d %d",
			ErrShape, len(W), len(B), p.w.Size(), p.b.Size())
	}
	copy(p.w.Data, W)
	copy(p.b.Data, B)
	return nil
}

func activationName(name string) string {
	if name == "" {
		return Linear
	}
	return name
}

func checkActivation(name string) error {
	switch name {
	case "", Linear, Relu, Sigmoid, Softmax:
		return nil
	}
	return fmt.Errorf("%w: activation type %s invalid", ErrConfig, name)
}

func activate(name string, x *num.Array) {
	switch name {
	case Relu:
		num.Relu(x)
	case Sigmoid:
		num.Sigmoid(x)
	case Softmax:
		num.Softmax(x)
	}
}

func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func unmarshal(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
