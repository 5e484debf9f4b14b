// Package templates renders the HTML fragments patched into the viewer by
// Datastar SSE responses.
package templates

import (
	"bytes"
	"html/template"
	"io/fs"
	"os"
	"sync"
)

const pattern = "*.html"

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// statusClass maps a layer load state to its list item class.
	"statusClass": func(ready bool, errMsg string) string {
		switch {
		case errMsg != "":
			return "failed"
		case ready:
			return "ready"
		default:
			return "loading"
		}
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// New parses the fragments in fragmentsDir (web/templates/fragments).
func New(fragmentsDir string) (*Renderer, error) {
	return NewFS(os.DirFS(fragmentsDir))
}

// NewFS parses the fragments at the root of fsys.
func NewFS(fsys fs.FS) (*Renderer, error) {
	tmpl, err := parse(fsys)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

func parse(fsys fs.FS) (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(fsys, pattern)
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}

// Reload re-parses the fragments (useful for dev hot-reload). The old
// templates stay in place if parsing fails.
func (r *Renderer) Reload(fragmentsDir string) error {
	tmpl, err := parse(os.DirFS(fragmentsDir))
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
