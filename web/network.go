// Package web has a web based viewer for a trained network: layer summary,
// weight visualisation and live prediction of microscopy images.
package web

import (
	"fmt"
	"html/template"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"

	"github.com/ethanbass/amfinder/amf"
	"github.com/ethanbass/amfinder/nnet"
	"github.com/ethanbass/amfinder/num"
	"github.com/ethanbass/amfinder/predict"
)

const (
	aspectWeights    = 0.25
	factorMinWeights = 20
)

// color map definition
// diverging palette: negative weights blue, zero near white, positive red
var weightPalette = []color.NRGBA{
	{33, 102, 172, 255},
	{146, 197, 222, 255},
	{247, 247, 247, 255},
	{244, 165, 130, 255},
	{178, 24, 43, 255},
}

// Network wraps the model being viewed with its run configuration.
type Network struct {
	*nnet.Model
	Conf  *amf.Config
	pred  *predict.Predictor
	stats map[string]nnet.LayerStats
	views map[string]*viewLayer
	sync.Mutex
}

// weight image for one parameter layer
type viewLayer struct {
	ltype    string
	wShape   []int
	bShape   []int
	wImage   *image.NRGBA
	wix, wiy int
	wox, woy int
	wborder  int
}

// NewNetwork prepares the model for viewing. The config must have been passed
// through amf.Load so that its level and header match the model.
func NewNetwork(model *nnet.Model, conf *amf.Config) (*Network, error) {
	pred, err := predict.New(model, conf)
	if err != nil {
		return nil, err
	}
	n := &Network{Model: model, Conf: conf, pred: pred, stats: map[string]nnet.LayerStats{}, views: map[string]*viewLayer{}}
	for _, s := range model.WeightStats() {
		n.stats[s.Name] = s
	}
	slog.Info("viewing network", "model", model.Name, "level", conf.Level, "params", model.NumParams())
	return n, nil
}

func (n *Network) heading() template.HTML {
	s := fmt.Sprintf(`%s: level %d  <span class="header">%v</span>  %d parameters`, n.Name, n.Conf.Level, n.Conf.Header, n.NumParams())
	return template.HTML(s)
}

// ParamLayers returns the names of the layers with weights in network order.
func (n *Network) ParamLayers() []string {
	var names []string
	for _, layer := range n.Layers {
		if _, ok := layer.(nnet.ParamLayer); ok {
			names = append(names, layer.Name())
		}
	}
	return names
}

// weightImage returns the rendered weights of the named layer, built on first use.
func (n *Network) weightImage(name string) (*image.NRGBA, bool) {
	if v, ok := n.views[name]; ok {
		return v.wImage, true
	}
	layer, ok := n.GetLayer(name)
	if !ok {
		return nil, false
	}
	pLayer, ok := layer.(nnet.ParamLayer)
	if !ok {
		return nil, false
	}
	W, B := pLayer.Params()
	v := &viewLayer{ltype: layer.Type()}
	if err := v.addWeightImage(W.Dims(), B.Dims()); err != nil {
		slog.Warn("weight image", "layer", name, "error", err)
		return nil, false
	}
	v.draw(W, B)
	n.views[name] = v
	return v.wImage, true
}

func (l *viewLayer) addWeightImage(wDims, bDims []int) error {
	if len(bDims) != 1 || len(wDims) < 1 || bDims[0] != wDims[len(wDims)-1] {
		return fmt.Errorf("weight shape not supported %v %v", wDims, bDims)
	}
	l.wShape, l.bShape = wDims, bDims
	switch len(wDims) {
	case 2:
		// fully connected layer
		l.wiy, l.wix = gridShape(wDims[0], 0, 1)
		l.woy, l.wox = gridShape(wDims[1], factorMinWeights, aspectWeights)
		l.wborder = 1
	case 4:
		// convolutional layer, one kernel per input channel stacked vertically
		l.wix, l.wiy = wDims[1], wDims[0]*wDims[2]
		l.woy, l.wox = gridShape(wDims[3], factorMinWeights, aspectWeights)
		l.wborder = 2
	default:
		return fmt.Errorf("weight shape not supported %v %v", wDims, bDims)
	}
	l.wImage = image.NewNRGBA(image.Rect(0, 0, (l.wix+l.wborder)*l.wox, (l.wiy+l.wborder)*l.woy))
	return nil
}

// cell returns the top left corner of the block drawn for output unit i.
func (l *viewLayer) cell(i int) image.Point {
	return image.Pt((l.wix+l.wborder)*(i%l.wox), (l.wiy+l.wborder)*(i/l.wox))
}

// pixel position within the block of the weight at row j of the weight matrix
func (l *viewLayer) pos(j int) (x, y int) {
	if len(l.wShape) == 4 {
		kh, kw, c := j/(l.wShape[1]*l.wShape[2]), (j/l.wShape[2])%l.wShape[1], j%l.wShape[2]
		return kw, c*l.wShape[0] + kh
	}
	return j % l.wix, j / l.wix
}

func (l *viewLayer) draw(W, B *num.Array) {
	nout := l.wShape[len(l.wShape)-1]
	rows := W.Size() / nout
	scale := float32(0)
	for _, v := range W.Data {
		scale = max(scale, float32(math.Abs(float64(v))))
	}
	if scale == 0 {
		scale = 1
	}
	for i := 0; i < nout; i++ {
		c := l.cell(i)
		// bias along the top and left edges of the block
		bias := weightColor(B.Data[i], scale)
		for j := 0; j <= l.wix; j++ {
			l.wImage.SetNRGBA(c.X+j, c.Y, bias)
		}
		for j := 0; j <= l.wiy; j++ {
			l.wImage.SetNRGBA(c.X, c.Y+j, bias)
		}
		for j := 0; j < rows; j++ {
			x, y := l.pos(j)
			l.wImage.SetNRGBA(c.X+x+1, c.Y+y+1, weightColor(W.Data[j*nout+i], scale))
		}
	}
}

// gridShape lays out n blocks as rows*cols == n with rows <= aspect*cols,
// or as a single row when n <= nmin or no such factorisation exists.
func gridShape(n, nmin int, aspect float64) (rows, cols int) {
	if n < 1 {
		panic(fmt.Sprintf("gridShape: invalid block count %d", n))
	}
	rows = 1
	if n > nmin {
		limit := int(math.Sqrt(float64(n) * aspect))
		for r := 2; r <= limit; r++ {
			if n%r == 0 {
				rows = r
			}
		}
	}
	return rows, n / rows
}

// weightColor maps val in [-scale, scale] onto weightPalette.
func weightColor(val, scale float32) color.NRGBA {
	last := len(weightPalette) - 1
	t := (val/scale + 1) / 2
	switch {
	case t <= 0:
		return weightPalette[0]
	case t >= 1:
		return weightPalette[last]
	}
	pos := t * float32(last)
	ix := int(pos)
	frac := pos - float32(ix)
	lo, hi := weightPalette[ix], weightPalette[ix+1]
	mix := func(a, b uint8) uint8 {
		return uint8(float32(a) + (float32(b)-float32(a))*frac + 0.5)
	}
	return color.NRGBA{mix(lo.R, hi.R), mix(lo.G, hi.G), mix(lo.B, hi.B), 255}
}
