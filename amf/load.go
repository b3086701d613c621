package amf

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethanbass/amfinder/nnet"
)

// Load returns the pre-trained network named by cfg.Model if that file exists,
// otherwise a new network for cfg.Level when training. Prediction without a
// pre-trained network fails with ErrNoPretrainedModel.
//
// For a loaded network the annotation level is recovered from its layers: a
// root segmentation layer (RS) means level 1, anything else level 2. cfg.Level
// and cfg.Header are updated to match.
func Load(cfg *Config) (*nnet.Model, error) {
	if path := cfg.Model; path != "" {
		if isFile(path) {
			return loadPretrained(cfg, path)
		}
		slog.Warn("pre-trained network not found", "path", path)
	}
	switch cfg.RunMode {
	case Train:
		return newNetwork(cfg)
	case Predict:
		return nil, ErrNoPretrainedModel
	}
	return nil, fmt.Errorf("%w: unknown run mode %q", ErrInvalidConfig, cfg.RunMode)
}

func loadPretrained(cfg *Config, path string) (*nnet.Model, error) {
	slog.Info("pre-trained network", "path", path)
	m, err := nnet.LoadModel(path)
	if err != nil {
		return nil, err
	}
	if _, ok := m.GetLayer(RootSegmentation); ok {
		cfg.Level = 1
		cfg.Header = append([]string{}, ColonizationHeader...)
		slog.Info("classes: colonized (Myc+), non-colonized (Myc-), background (X)", "level", cfg.Level)
	} else {
		cfg.Level = 2
		cfg.Header = append([]string{}, m.Outputs...)
		slog.Info("classes: arbuscule (A), vesicle (V), hyphopodium (H), intraradical hypha (I)",
			"level", cfg.Level, "header", cfg.Header)
	}
	return m, nil
}

func newNetwork(cfg *Config) (*nnet.Model, error) {
	slog.Info("initializes a new network", "level", cfg.Level)
	var m *nnet.Model
	var err error
	switch cfg.Level {
	case 1:
		m, err = Colonization()
	case 2:
		m, err = MycStructures(cfg.Headers())
	default:
		return nil, fmt.Errorf("%w: annotation level %d must be 1 or 2", ErrInvalidConfig, cfg.Level)
	}
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed <= 0 {
		seed = time.Now().UTC().UnixNano()
	}
	slog.Debug("random seed", "seed", seed)
	if err = m.InitWeights(uint64(seed)); err != nil {
		return nil, err
	}
	return m, nil
}

// isFile reports whether path names an existing regular file.
func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
