package web

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
)

//go:embed assets/*.html
var assets embed.FS

const sessionName = "amfweb"

// Template and main menu definition
type Templates struct {
	*template.Template
	Menu    []Link
	Options []Link
	Heading template.HTML
	store   sessions.Store
}

type Link struct {
	Url      string
	Name     string
	Selected bool
}

// Parse the embedded templates and set up the main menu. Session cookies are signed with sessionKey.
func NewTemplates(sessionKey []byte) (*Templates, error) {
	var err error
	t := &Templates{Menu: []Link{}, Options: []Link{}}
	t.Template, err = template.ParseFS(assets, "assets/*.html")
	if err != nil {
		return nil, err
	}
	store := sessions.NewCookieStore(sessionKey)
	store.Options.HttpOnly = true
	t.store = store
	t.AddMenuItem(Link{Name: "model", Url: "/model/"})
	t.AddMenuItem(Link{Name: "weights", Url: "/weights/"})
	t.AddMenuItem(Link{Name: "predict", Url: "/predict/"})
	t.AddMenuItem(Link{Name: "config", Url: "/config/"})
	return t, nil
}

func (t *Templates) Clone() *Templates {
	return &Templates{
		Template: t.Template,
		Menu:     append([]Link{}, t.Menu...),
		Options:  append([]Link{}, t.Options...),
		store:    t.store,
	}
}

func (t *Templates) Select(url string) *Templates {
	for i, key := range t.Menu {
		t.Menu[i].Selected = strings.HasPrefix(key.Url, url)
	}
	return t
}

func (t *Templates) AddMenuItem(l Link) *Templates {
	t.Menu = append(t.Menu, l)
	return t
}

func (t *Templates) AddOption(l Link) *Templates {
	t.Options = append(t.Options, l)
	return t
}

func (t *Templates) SelectOptions(names ...string) *Templates {
	for i, key := range t.Options {
		t.Options[i].Selected = false
		for _, name := range names {
			if key.Name == name {
				t.Options[i].Selected = true
			}
		}
	}
	return t
}

// Exec renders the named template, reporting any error to the client.
func (t *Templates) Exec(w http.ResponseWriter, name string, data interface{}) {
	if err := t.ExecuteTemplate(w, name, data); err != nil {
		logError(w, err)
	}
}

// session returns the viewer session for the request, a new one if the cookie is missing or invalid.
func (t *Templates) session(r *http.Request) *sessions.Session {
	s, err := t.store.Get(r, sessionName)
	if err != nil {
		slog.Debug("new session", "error", err)
	}
	return s
}

func logError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	http.Error(w, fmt.Sprint(err), http.StatusInternalServerError)
}
