package nnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrConfig         = errors.New("invalid network config")
	ErrShape          = errors.New("shape mismatch")
	ErrDuplicateLayer = errors.New("duplicate layer name")
	ErrModelFile      = errors.New("invalid model file")
)

// Network definition plus the settings an external trainer compiles it with.
// Layers are stored in topological order, the first one is the input.
type Config struct {
	Name      string
	Layers    []LayerConfig
	Outputs   []string
	Loss      string   `json:",omitempty"`
	Optimizer string   `json:",omitempty"`
	Metrics   []string `json:",omitempty"`
}

// Load network definition from json file
func LoadConfig(name string) (c Config, err error) {
	var f *os.File
	if f, err = os.Open(name); err != nil {
		return
	}
	defer f.Close()
	slog.Debug("loading network config", "file", name)
	dec := json.NewDecoder(f)
	if err = dec.Decode(&c); err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrConfig, name, err)
	}
	return
}

// Save config to JSON file, written to a temp file first and then renamed.
func (c Config) Save(name string) error {
	tmp := filepath.Join(filepath.Dir(name), "."+filepath.Base(name))
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	slog.Debug("saving network config", "file", name)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(c); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, name)
}

// Layer returns the config for the named layer.
func (c Config) Layer(name string) (LayerConfig, bool) {
	for _, l := range c.Layers {
		if l.Name == name {
			return l, true
		}
	}
	return LayerConfig{}, false
}

func (c Config) String() string {
	str := []string{
		"== Config ==",
		fmt.Sprintf("%-10s: %s", "Name", c.Name),
		fmt.Sprintf("%-10s: %s", "Loss", c.Loss),
		fmt.Sprintf("%-10s: %s", "Optimizer", c.Optimizer),
		fmt.Sprintf("%-10s: %v", "Metrics", c.Metrics),
		fmt.Sprintf("%-10s: %v", "Outputs", c.Outputs),
	}
	if c.Layers != nil {
		str = append(str, "== Network ==")
		for i, layer := range c.Layers {
			str = append(str, fmt.Sprintf("%2d: %s", i, layer))
		}
	}
	return strings.Join(str, "\n")
}
