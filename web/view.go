package web

import (
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethanbass/amfinder/nnet"
	"github.com/ethanbass/amfinder/stats"
	"github.com/gorilla/mux"
)

const (
	histWidth  = 480
	histHeight = 320
)

type ModelPage struct {
	*Templates
	Layers []LayerInfo
	Heads  []nnet.Head
	Total  int
	net    *Network
}

type LayerInfo struct {
	Name    string
	Type    string
	Shape   string
	Params  int
	Input   string
	Weights *stats.Average
}

// Base data for the handler which shows the model summary
func NewModelPage(t *Templates, net *Network) *ModelPage {
	return &ModelPage{Templates: t, net: net}
}

// Handler function for the model summary page
func (p *ModelPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.Select("/model/")
		p.Heading = p.net.heading()
		p.Layers = p.Layers[:0]
		for _, l := range p.net.Config.Layers {
			shape, _ := p.net.Shape(l.Name)
			info := LayerInfo{
				Name:   l.Name,
				Type:   l.Type,
				Shape:  strings.Trim(fmt.Sprint(shape), "[]"),
				Params: p.net.LayerParams(l.Name),
				Input:  l.Input,
			}
			if s, ok := p.net.stats[l.Name]; ok {
				info.Weights = &s.Weights
			}
			p.Layers = append(p.Layers, info)
		}
		p.Heads = p.net.Heads()
		p.Total = p.net.NumParams()
		p.Exec(w, "model", p)
	}
}

type WeightsPage struct {
	*Templates
	Layer string
	Stats nnet.LayerStats
	net   *Network
}

// Base data for handler functions to view the weights of each layer
func NewWeightsPage(t *Templates, net *Network) *WeightsPage {
	p := &WeightsPage{Templates: t, net: net}
	for _, name := range net.ParamLayers() {
		p.AddOption(Link{Name: name, Url: "/weights/select/" + name})
	}
	return p
}

// Handler function for the weights page, shows the layer saved in the session
func (p *WeightsPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.Select("/weights/")
		p.Heading = p.net.heading()
		p.Layer = ""
		if name, ok := p.session(r).Values["layer"].(string); ok {
			if _, ok := p.net.stats[name]; ok {
				p.Layer = name
			}
		}
		if p.Layer == "" && len(p.Options) > 0 {
			p.Layer = p.Options[0].Name
		}
		p.SelectOptions(p.Layer)
		p.Stats = p.net.stats[p.Layer]
		p.Exec(w, "weights", p)
	}
}

// Handler function to select the layer to view
func (p *WeightsPage) Setopt() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		name := mux.Vars(r)["layer"]
		if _, ok := p.net.stats[name]; !ok {
			http.NotFound(w, r)
			return
		}
		s := p.session(r)
		s.Values["layer"] = name
		if err := s.Save(r, w); err != nil {
			logError(w, err)
			return
		}
		http.Redirect(w, r, "/weights/", http.StatusFound)
	}
}

// Handler function to generate the weight image for a layer
func (p *WeightsPage) Image() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		name := mux.Vars(r)["layer"]
		img, ok := p.net.weightImage(name)
		if !ok {
			slog.Debug("weight image not found", "layer", name)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-type", "image/png")
		if err := png.Encode(w, img); err != nil {
			slog.Error("encode weight image", "layer", name, "error", err)
		}
	}
}

// Handler function to plot a histogram of the weights for a layer
func (p *WeightsPage) Hist() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		name := mux.Vars(r)["layer"]
		layer, ok := p.net.GetLayer(name)
		pLayer, isParam := layer.(nnet.ParamLayer)
		if !ok || !isParam {
			http.NotFound(w, r)
			return
		}
		W, _ := pLayer.Params()
		plt, err := weightHist(name, W.Data, p.index(name))
		if err != nil {
			logError(w, err)
			return
		}
		w.Header().Set("Content-type", "image/svg+xml")
		if err := writePlot(w, plt, histWidth, histHeight); err != nil {
			slog.Error("write histogram", "layer", name, "error", err)
		}
	}
}

func (p *WeightsPage) index(name string) int {
	for i, opt := range p.Options {
		if opt.Name == name {
			return i
		}
	}
	return 0
}

type ConfigPage struct {
	*Templates
	Fields []Field
	net    *Network
}

type Field struct {
	Name  string
	Value string
}

// Base data for the handler which shows the run configuration
func NewConfigPage(t *Templates, net *Network) *ConfigPage {
	return &ConfigPage{Templates: t, net: net}
}

// Handler function for the config page
func (p *ConfigPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.Select("/config/")
		p.Heading = p.net.heading()
		p.Fields = p.Fields[:0]
		for _, key := range p.net.Conf.Fields() {
			p.Fields = append(p.Fields, Field{Name: key, Value: fmt.Sprint(p.net.Conf.Get(key))})
		}
		p.Exec(w, "config", p)
	}
}
