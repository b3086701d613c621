package web

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
)

// Options for the viewer.
type Options struct {
	// Directory of images offered for prediction.
	ImageDir string
	// If User is set requests must authenticate with basic auth.
	User     string
	Password string
	// Key used to sign session cookies, random if empty.
	SessionKey []byte
}

// NewRouter returns the handler serving all pages of the viewer.
func NewRouter(net *Network, opts Options) (http.Handler, error) {
	key := opts.SessionKey
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}
	t, err := NewTemplates(key)
	if err != nil {
		return nil, err
	}
	modelPage := NewModelPage(t.Clone(), net)
	weightsPage := NewWeightsPage(t.Clone(), net)
	predictPage := NewPredictPage(t.Clone(), net, opts.ImageDir)
	configPage := NewConfigPage(t.Clone(), net)

	r := mux.NewRouter()
	r.Handle("/", http.RedirectHandler("/model/", http.StatusFound))
	r.HandleFunc("/model/", modelPage.Base())

	r.HandleFunc("/weights/", weightsPage.Base())
	r.HandleFunc("/weights/select/{layer}", weightsPage.Setopt())
	r.HandleFunc("/weights/{layer}.png", weightsPage.Image())
	r.HandleFunc("/weights/{layer}/hist.svg", weightsPage.Hist())

	r.HandleFunc("/predict/", predictPage.Base())
	r.HandleFunc("/predict/ws/{image}", predictPage.Websocket())

	r.HandleFunc("/config/", configPage.Base())

	if opts.User != "" {
		r.Use(NewAuthMiddleware(opts.User, opts.Password).Middleware)
	}
	return r, nil
}
