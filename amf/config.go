package amf

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
)

// Run mode selects between training a network and predicting with one.
type RunMode string

const (
	Train   RunMode = "train"
	Predict RunMode = "predict"
)

// Default labels for each annotation level.
var (
	ColonizationHeader  = []string{"Y", "N", "X"}
	MycStructuresHeader = []string{"A", "V", "H", "I"}
)

// Run configuration settings. Load updates Level and Header to match the network it returns.
type Config struct {
	Model     string
	RunMode   RunMode
	Level     int
	Header    []string `json:",omitempty"`
	TileSize  int
	BatchSize int
	Workers   int
	Seed      int64
	Output    string
	LogLevel  string
	LogFormat string
}

// DefaultConfig returns settings for training a new colonization network.
func DefaultConfig() Config {
	return Config{
		RunMode:   Train,
		Level:     1,
		TileSize:  InputSize,
		BatchSize: 32,
		Workers:   runtime.GOMAXPROCS(0),
		Output:    "amfinder.amf",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load config from json file, unset values keep their defaults.
func LoadConfig(name string) (c Config, err error) {
	c = DefaultConfig()
	var f *os.File
	if f, err = os.Open(name); err != nil {
		return
	}
	defer f.Close()
	slog.Debug("loading run config", "file", name)
	if err = json.NewDecoder(f).Decode(&c); err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
	}
	return
}

// Save config to JSON file
func (c Config) Save(name string) error {
	tmp := filepath.Join(filepath.Dir(name), "."+filepath.Base(name))
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
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

// Headers returns the configured labels, or the defaults for the current level.
func (c *Config) Headers() []string {
	if len(c.Header) > 0 {
		return c.Header
	}
	if c.Level == 1 {
		return ColonizationHeader
	}
	return MycStructuresHeader
}

// Validate checks the settings before any model is built.
func (c Config) Validate() error {
	switch c.RunMode {
	case Train, Predict:
	default:
		return fmt.Errorf("%w: run mode %q must be %q or %q", ErrInvalidConfig, c.RunMode, Train, Predict)
	}
	// level and header are taken from a pre-trained model file when one exists
	if c.Model == "" || !isFile(c.Model) {
		if c.Level != 1 && c.Level != 2 {
			return fmt.Errorf("%w: annotation level %d must be 1 or 2", ErrInvalidConfig, c.Level)
		}
		if c.Level == 1 && len(c.Header) > 0 && len(c.Header) != len(ColonizationHeader) {
			return fmt.Errorf("%w: level 1 needs %d class labels, got %v", ErrInvalidConfig, len(ColonizationHeader), c.Header)
		}
	}
	if c.TileSize <= 0 || c.BatchSize <= 0 {
		return fmt.Errorf("%w: tile size %d and batch size %d must be positive", ErrInvalidConfig, c.TileSize, c.BatchSize)
	}
	return nil
}

func (c Config) Fields() []string {
	st := reflect.TypeOf(c)
	fld := make([]string, st.NumField())
	for i := range fld {
		fld[i] = st.Field(i).Name
	}
	return fld
}

func (c Config) Get(key string) interface{} {
	return reflect.ValueOf(c).FieldByName(key).Interface()
}

func (c Config) String() string {
	str := []string{"== Config =="}
	for _, key := range c.Fields() {
		str = append(str, fmt.Sprintf("%-10s: %v", key, c.Get(key)))
	}
	return strings.Join(str, "\n")
}
