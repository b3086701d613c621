package predict

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethanbass/amfinder/amf"
	"github.com/ethanbass/amfinder/img"
	"github.com/ethanbass/amfinder/nnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tinyModel has a 4x4 RGB input and either one softmax head or one sigmoid head per label.
func tinyModel(t *testing.T, labels ...string) *nnet.Model {
	g := nnet.NewGraph()
	x := g.Input("input", 4, 4, 3)
	x = x.Apply(nnet.Conv{Name: "C1", Nfeats: 2, Size: 3, Activation: nnet.Relu, Init: nnet.HeUniform})
	x = x.Apply(nnet.MaxPool{Name: "M1", Size: 2})
	x = x.Apply(nnet.Flatten{Name: "F"})
	var outputs []*nnet.Tensor
	if len(labels) == 0 {
		outputs = append(outputs, x.Apply(nnet.Dense{Name: amf.RootSegmentation, Nout: 3, Activation: nnet.Softmax}))
	}
	for _, label := range labels {
		outputs = append(outputs, x.Apply(nnet.Dense{Name: label, Nout: 1, Activation: nnet.Sigmoid}))
	}
	m, err := g.Model("tiny", outputs...)
	require.NoError(t, err)
	require.NoError(t, m.InitWeights(11))
	return m
}

func gradient(w, h int) image.Image {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, color.RGBA{R: uint8(20 * x), G: uint8(30 * y), B: uint8(5 * x * y), A: 255})
		}
	}
	return m
}

func testConfig(tileSize, batchSize, workers int) *amf.Config {
	cfg := amf.DefaultConfig()
	cfg.TileSize = tileSize
	cfg.BatchSize = batchSize
	cfg.Workers = workers
	return &cfg
}

func TestNew(t *testing.T) {
	cfg := testConfig(0, 0, 0)
	p, err := New(tinyModel(t), cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, p.TileSize)
	assert.Equal(t, 1, p.BatchSize)
	assert.Equal(t, 1, p.Workers)
	assert.Equal(t, amf.ColonizationHeader, p.Header)

	cfg.Level = 2
	cfg.Header = []string{"A", "V", "H"}
	_, err = New(tinyModel(t, "A", "V"), cfg)
	assert.ErrorIs(t, err, amf.ErrInvalidConfig)
}

func TestImage(t *testing.T) {
	m := tinyModel(t)
	src := gradient(12, 9)
	p, err := New(m, testConfig(4, 4, 3))
	require.NoError(t, err)
	res, err := p.Image(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, res, 6)

	tiles := img.Tiles(src.Bounds(), 4)
	want, err := m.Predict(img.Batch(src, tiles, 4))
	require.NoError(t, err)
	for i, r := range res {
		assert.Equal(t, tiles[i], r.Tile)
		require.Len(t, r.Probs, 3)
		assert.InDeltaSlice(t, want[0].Sample(i), r.Probs, 1e-6)
		assert.InDelta(t, 1, r.Probs[0]+r.Probs[1]+r.Probs[2], 1e-5)
		for _, p := range r.Probs {
			assert.LessOrEqual(t, p, r.Probs[r.Class])
		}
	}
}

func TestImageResized(t *testing.T) {
	m := tinyModel(t, "A", "V")
	cfg := testConfig(8, 3, 2)
	cfg.Level = 2
	cfg.Header = []string{"A", "V"}
	p, err := New(m, cfg)
	require.NoError(t, err)
	res, err := p.Image(context.Background(), gradient(16, 24))
	require.NoError(t, err)
	require.Len(t, res, 6)
	assert.Equal(t, -1, res[0].Class)
	assert.Equal(t, 2, res[5].Row)
	assert.Equal(t, 1, res[5].Col)
	for _, r := range res {
		require.Len(t, r.Probs, 2)
		for _, v := range r.Probs {
			assert.True(t, v > 0 && v < 1)
		}
	}
}

func TestRunError(t *testing.T) {
	p, err := New(tinyModel(t), testConfig(4, 1, 2))
	require.NoError(t, err)
	boom := errors.New("boom")
	var calls atomic.Int32
	err = p.Run(context.Background(), gradient(40, 40), func([]Result) error {
		calls.Add(1)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Less(t, int(calls.Load()), 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Image(ctx, gradient(40, 40))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForEach(t *testing.T) {
	var running, peak, total atomic.Int32
	err := forEach(context.Background(), 20, 3, func(i int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		total.Add(1)
		running.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 20, total.Load())
	assert.LessOrEqual(t, int(peak.Load()), 3)
	assert.NoError(t, forEach(context.Background(), 0, 0, func(int) error { return errors.New("unused") }))
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "root.tif")
	require.NoError(t, os.WriteFile(bad, []byte("II*\x00broken"), 0644))
	p, err := New(tinyModel(t), testConfig(4, 2, 2))
	require.NoError(t, err)
	_, err = p.File(context.Background(), bad)
	assert.ErrorIs(t, err, img.ErrImage)
	assert.Equal(t, amf.ExitInvalidImage, amf.ExitCode(err))

	_, err = p.File(context.Background(), filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, amf.ExitFailure, amf.ExitCode(err))
}

func TestCSV(t *testing.T) {
	res := []Result{
		{Tile: img.Tile{Row: 0, Col: 0}, Probs: []float32{0.25, 0.5, 0.25}},
		{Tile: img.Tile{Row: 0, Col: 1}, Probs: []float32{1, 0, 0}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, amf.ColonizationHeader, res))
	assert.Equal(t, "row,col,Y,N,X\n0,0,0.2500,0.5000,0.2500\n0,1,1.0000,0.0000,0.0000\n", buf.String())

	name := filepath.Join(t.TempDir(), "root.csv")
	require.NoError(t, SaveCSV(name, amf.ColonizationHeader, res))
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))

	assert.Equal(t, "images/root.csv", OutputName("images/root.tiff"))
	assert.True(t, strings.HasSuffix(OutputName("noext"), "noext.csv"))
}
