// Command amfweb serves a web viewer for a pre-trained AMFinder network.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/ethanbass/amfinder/amf"
	"github.com/ethanbass/amfinder/web"
)

func main() {
	cfg := amf.DefaultConfig()
	cfg.RunMode = amf.Predict
	fs := flag.NewFlagSet("amfweb", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: amfweb [opts] <model>")
		fs.PrintDefaults()
	}
	addr := fs.String("addr", ":8080", "listen address")
	var opts web.Options
	fs.StringVar(&opts.ImageDir, "images", ".", "directory of images to predict")
	fs.StringVar(&opts.User, "user", "", "require basic auth with this user name")
	fs.IntVar(&cfg.TileSize, "tile", cfg.TileSize, "tile size in pixels")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "tiles per batch")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of batches evaluated in parallel")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(amf.ExitInvalidConfig)
	}
	cfg.Model = fs.Arg(0)
	opts.Password = os.Getenv("AMFWEB_PASSWORD")
	slog.SetDefault(amf.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr))
	if opts.User != "" && opts.Password == "" {
		amf.CheckErr(fmt.Errorf("%w: AMFWEB_PASSWORD must be set with -user", amf.ErrInvalidConfig))
	}
	amf.CheckErr(cfg.Validate())

	model, err := amf.Load(&cfg)
	amf.CheckErr(err)
	net, err := web.NewNetwork(model, &cfg)
	amf.CheckErr(err)
	handler, err := web.NewRouter(net, opts)
	amf.CheckErr(err)

	srv := &http.Server{Addr: *addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	slog.Info("serving web page", "addr", *addr, "images", opts.ImageDir)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		amf.CheckErr(err)
	}
}
