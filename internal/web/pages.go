// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package web

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/samber/oops"

	"github.com/passgate/passgate/pkg/errutil"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageNames = []string{"home", "login", "register"}

type pageData struct {
	Title string
	Name  string
	Flash []string
}

// pages holds one template set per page, each combined with the layout.
type pages struct {
	byName map[string]*template.Template
}

func loadPages() (*pages, error) {
	p := &pages{byName: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, oops.Code("WEB_TEMPLATE_FAILED").With("page", name).Wrap(err)
		}
		p.byName[name] = t
	}
	return p, nil
}

func staticFiles() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err) // embedded directory is always present
	}
	return sub
}

// render executes the page into a buffer so that a template failure can
// still produce a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	t, ok := s.pages.byName[name]
	if !ok {
		s.logger.ErrorContext(r.Context(), "unknown page", "page", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		errutil.LogError(s.logger, "page render failed", oops.With("page", name).Wrap(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	//nolint:errcheck // client may disconnect
	buf.WriteTo(w)
}
