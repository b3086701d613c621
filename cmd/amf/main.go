// Command amf builds or loads an AMFinder network. In train mode the network is
// written to the output file, in predict mode each image argument is split into
// tiles and the per tile probabilities are saved next to it as CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/ethanbass/amfinder/amf"
	"github.com/ethanbass/amfinder/predict"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	amf.CheckErr(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	def := amf.DefaultConfig()
	fs := flag.NewFlagSet("amf", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: amf [opts] [image...]")
		fs.PrintDefaults()
	}
	confFile := fs.String("config", "", "run configuration JSON file, flags override its values")
	model := fs.String("model", def.Model, "pre-trained network file")
	mode := fs.String("mode", string(def.RunMode), "run mode: train or predict")
	level := fs.Int("level", def.Level, "annotation level: 1 colonization, 2 fungal structures")
	header := fs.String("header", "", "comma separated fungal structure labels for level 2")
	tileSize := fs.Int("tile", def.TileSize, "tile size in pixels")
	batchSize := fs.Int("batch", def.BatchSize, "tiles per batch")
	workers := fs.Int("workers", def.Workers, "number of batches evaluated in parallel")
	seed := fs.Int64("seed", def.Seed, "random number seed for new networks, 0 for time based")
	output := fs.String("o", def.Output, "output file for the network in train mode")
	topology := fs.String("topology", "", "also write the network topology as JSON to this file")
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug, info, warn or error")
	logFormat := fs.String("log-format", def.LogFormat, "log format: text or json")
	summary := fs.Bool("summary", false, "print the network summary")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", amf.ErrInvalidConfig, err)
	}

	cfg := def
	if *confFile != "" {
		var err error
		if cfg, err = amf.LoadConfig(*confFile); err != nil {
			return err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.Model = *model
		case "mode":
			cfg.RunMode = amf.RunMode(*mode)
		case "level":
			cfg.Level = *level
		case "header":
			cfg.Header = splitList(*header)
		case "tile":
			cfg.TileSize = *tileSize
		case "batch":
			cfg.BatchSize = *batchSize
		case "workers":
			cfg.Workers = *workers
		case "seed":
			cfg.Seed = *seed
		case "o":
			cfg.Output = *output
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})
	slog.SetDefault(amf.NewLogger(cfg.LogLevel, cfg.LogFormat, stderr))
	if err := cfg.Validate(); err != nil {
		return err
	}
	slog.Debug("run configuration\n" + cfg.String())

	m, err := amf.Load(&cfg)
	if err != nil {
		return err
	}
	if *summary {
		fmt.Fprint(stdout, m.Summary())
	}
	if *topology != "" {
		if err := m.Config.Save(*topology); err != nil {
			return err
		}
	}

	switch cfg.RunMode {
	case amf.Train:
		return m.Save(cfg.Output)
	case amf.Predict:
		pred, err := predict.New(m, &cfg)
		if err != nil {
			return err
		}
		if fs.NArg() == 0 {
			slog.Warn("no images to predict")
		}
		for _, name := range fs.Args() {
			res, err := pred.File(ctx, name)
			if err != nil {
				return err
			}
			if err := predict.SaveCSV(predict.OutputName(name), pred.Header, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
