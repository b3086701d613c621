package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethanbass/amfinder/img"
	"github.com/ethanbass/amfinder/predict"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var imageExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true}

// Message sent over the websocket for each batch of predicted tiles.
type TileMessage struct {
	Row   int       `json:"row"`
	Col   int       `json:"col"`
	Probs []float32 `json:"probs"`
	Class int       `json:"class"`
}

type StreamMessage struct {
	Image  string        `json:"image"`
	Header []string      `json:"header,omitempty"`
	Rows   int           `json:"rows,omitempty"`
	Cols   int           `json:"cols,omitempty"`
	Tiles  []TileMessage `json:"tiles,omitempty"`
	Done   bool          `json:"done,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type PredictPage struct {
	*Templates
	Images []string
	dir    string
	net    *Network
}

// Base data for handler functions to run predictions on the images in dir
func NewPredictPage(t *Templates, net *Network, dir string) *PredictPage {
	return &PredictPage{Templates: t, net: net, dir: dir}
}

// Handler function for the prediction page
func (p *PredictPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		images, err := p.listImages()
		if err != nil {
			logError(w, err)
			return
		}
		p.net.Lock()
		defer p.net.Unlock()
		p.Select("/predict/")
		p.Heading = p.net.heading()
		p.Images = images
		p.Exec(w, "predict", p)
	}
}

// Handler function for the websocket connection which streams the tile predictions for an image
func (p *PredictPage) Websocket() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["image"]
		path, err := p.imagePath(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade", "error", err)
			return
		}
		defer conn.Close()
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			// reading detects the client closing the connection
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()
		if err := p.stream(ctx, conn, name, path); err != nil {
			slog.Warn("prediction stream", "image", name, "error", err)
			conn.WriteJSON(StreamMessage{Image: name, Error: err.Error()})
		}
	}
}

func (p *PredictPage) stream(ctx context.Context, conn *websocket.Conn, name, path string) error {
	src, err := img.Load(path)
	if err != nil {
		return err
	}
	pred := p.net.pred
	rows, cols := img.Grid(src.Bounds(), pred.TileSize)
	err = conn.WriteJSON(StreamMessage{Image: name, Header: pred.Header, Rows: rows, Cols: cols})
	if err != nil {
		return err
	}
	err = pred.Run(ctx, src, func(res []predict.Result) error {
		msg := StreamMessage{Image: name, Tiles: make([]TileMessage, len(res))}
		for i, r := range res {
			msg.Tiles[i] = TileMessage{Row: r.Row, Col: r.Col, Probs: r.Probs, Class: r.Class}
		}
		return conn.WriteJSON(msg)
	})
	if err != nil {
		return err
	}
	slog.Info("streamed predictions", "image", name, "tiles", rows*cols)
	return conn.WriteJSON(StreamMessage{Image: name, Done: true})
}

// imagePath resolves an image name within the image directory.
func (p *PredictPage) imagePath(name string) (string, error) {
	if p.dir == "" || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", os.ErrNotExist
	}
	if !imageExt[strings.ToLower(filepath.Ext(name))] {
		return "", os.ErrNotExist
	}
	path := filepath.Join(p.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", os.ErrNotExist
	}
	return path, nil
}

func (p *PredictPage) listImages() ([]string, error) {
	if p.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(p.dir)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("image directory not found", "dir", p.dir)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var images []string
	for _, e := range entries {
		if _, err := p.imagePath(e.Name()); err == nil {
			images = append(images, e.Name())
		}
	}
	sort.Strings(images)
	return images, nil
}
