package nnet

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const fileVersion = 1

// Contents of a model file: the network definition plus weights per parameter layer.
type ModelData struct {
	Version int
	Conf    Config
	Params  []LayerData
}

type LayerData struct {
	Layer   string
	Weights []float32
	Biases  []float32
}

// Export copies the model definition and weights.
func (m *Model) Export() ModelData {
	data := ModelData{Version: fileVersion, Conf: m.Config}
	for _, layer := range m.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			data.Params = append(data.Params, LayerData{
				Layer:   l.Name(),
				Weights: append([]float32{}, W.Data...),
				Biases:  append([]float32{}, B.Data...),
			})
		}
	}
	return data
}

// Import sets the weights from saved layer data. Every parameter layer must be present.
func (m *Model) Import(params []LayerData) error {
	found := map[string]bool{}
	for _, p := range params {
		layer, ok := m.GetLayer(p.Layer)
		if !ok {
			return fmt.Errorf("%w: weights for unknown layer %s", ErrModelFile, p.Layer)
		}
		l, ok := layer.(ParamLayer)
		if !ok {
			return fmt.Errorf("%w: layer %s has no parameters", ErrModelFile, p.Layer)
		}
		if err := l.SetParams(p.Weights, p.Biases); err != nil {
			return fmt.Errorf("%w: layer %s import error: %v", ErrModelFile, p.Layer, err)
		}
		found[p.Layer] = true
	}
	for _, layer := range m.Layers {
		if _, ok := layer.(ParamLayer); ok && !found[layer.Name()] {
			return fmt.Errorf("%w: missing weights for layer %s", ErrModelFile, layer.Name())
		}
	}
	return nil
}

// Save encodes the model in gob format, written to a temp file first and then renamed.
func (m *Model) Save(name string) error {
	tmp := filepath.Join(filepath.Dir(name), "."+filepath.Base(name))
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	slog.Info("saving model", "name", m.Name, "file", name)
	if err = gob.NewEncoder(f).Encode(m.Export()); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, name)
}

// LoadModel reads back a gob encoded model file and rebuilds the network.
// Decode and validation failures wrap ErrModelFile.
func LoadModel(name string) (*Model, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	slog.Debug("loading model", "file", name)
	var data ModelData
	if err = gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelFile, name, err)
	}
	if data.Version != fileVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrModelFile, name, data.Version)
	}
	m, err := New(data.Conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelFile, name, err)
	}
	if err = m.Import(data.Params); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}
