// Package predict runs a model over the tiles of an image.
package predict

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethanbass/amfinder/amf"
	"github.com/ethanbass/amfinder/img"
	"github.com/ethanbass/amfinder/nnet"
	"github.com/ethanbass/amfinder/num"
)

// Result holds the class or structure probabilities of one tile, in header order.
// Class is the index of the most probable label for a single softmax head, or -1.
type Result struct {
	img.Tile
	Probs []float32
	Class int
}

// Predictor splits images into tiles and evaluates them batch-wise with a bounded
// number of goroutines. It is safe for concurrent use.
type Predictor struct {
	Model     *nnet.Model
	Header    []string
	TileSize  int
	BatchSize int
	Workers   int
	inSize    int
}

// New returns a predictor for model using the tile, batch and worker settings from
// cfg. The header must have one label per model output unit.
func New(model *nnet.Model, cfg *amf.Config) (*Predictor, error) {
	shape := model.InputShape()
	if len(shape) != 3 || shape[0] != shape[1] || shape[2] != 3 {
		return nil, fmt.Errorf("%w: model input %v is not a square RGB tile", amf.ErrInvalidConfig, shape)
	}
	header := cfg.Headers()
	units := 0
	for _, h := range model.Heads() {
		units += h.Units
	}
	if units != len(header) {
		return nil, fmt.Errorf("%w: header %v does not match %d model outputs", amf.ErrInvalidConfig, header, units)
	}
	p := &Predictor{
		Model:     model,
		Header:    append([]string{}, header...),
		TileSize:  cfg.TileSize,
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		inSize:    shape[0],
	}
	if p.TileSize <= 0 {
		p.TileSize = p.inSize
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 1
	}
	if p.Workers <= 0 {
		p.Workers = 1
	}
	return p, nil
}

// Run evaluates every complete tile of src and calls fn with each batch of results
// as it completes. Calls to fn are serialised but batches arrive in any order.
func (p *Predictor) Run(ctx context.Context, src image.Image, fn func([]Result) error) error {
	tiles := img.Tiles(src.Bounds(), p.TileSize)
	nbatch := (len(tiles) + p.BatchSize - 1) / p.BatchSize
	slog.Debug("predict", "tiles", len(tiles), "batches", nbatch, "workers", p.Workers)
	var mu sync.Mutex
	return forEach(ctx, nbatch, p.Workers, func(i int) error {
		start := i * p.BatchSize
		end := min(start+p.BatchSize, len(tiles))
		res, err := p.batch(src, tiles[start:end])
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		return fn(res)
	})
}

// Image returns the results for every tile of src in row major order.
func (p *Predictor) Image(ctx context.Context, src image.Image) ([]Result, error) {
	var res []Result
	err := p.Run(ctx, src, func(r []Result) error {
		res = append(res, r...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Row != res[j].Row {
			return res[i].Row < res[j].Row
		}
		return res[i].Col < res[j].Col
	})
	return res, nil
}

// File loads the named image and predicts all of its tiles. Decode errors are
// reported with the ExitInvalidImage code.
func (p *Predictor) File(ctx context.Context, name string) ([]Result, error) {
	src, err := img.Load(name)
	if err != nil {
		if errors.Is(err, img.ErrImage) {
			return nil, &amf.ExitError{Code: amf.ExitInvalidImage, Message: "cannot decode image", Err: err}
		}
		return nil, err
	}
	start := time.Now()
	res, err := p.Image(ctx, src)
	if err != nil {
		return nil, err
	}
	slog.Info("predicted", "file", name, "tiles", len(res), "elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (p *Predictor) batch(src image.Image, tiles []img.Tile) ([]Result, error) {
	out, err := p.Model.Predict(img.Batch(src, tiles, p.inSize))
	if err != nil {
		return nil, err
	}
	class := make([]int, len(tiles))
	if len(out) == 1 && len(p.Header) > 1 {
		class = num.Unhot(out[0])
	} else {
		for i := range class {
			class[i] = -1
		}
	}
	res := make([]Result, len(tiles))
	for i, t := range tiles {
		res[i] = Result{Tile: t, Probs: make([]float32, 0, len(p.Header)), Class: class[i]}
		for _, head := range out {
			res[i].Probs = append(res[i].Probs, head.Sample(i)...)
		}
	}
	return res, nil
}

// forEach calls body for 0 <= i < length with at most limit calls running at once.
// It stops starting new calls after the first error or once ctx is done.
func forEach(ctx context.Context, length, limit int, body func(i int) error) error {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() { firstErr = err })
		cancel()
	}
	sem := make(chan struct{}, limit)
	for i := 0; i < length; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := body(i); err != nil {
				fail(err)
			}
		}(i)
	}
	wg.Wait()
	return firstErr
}
