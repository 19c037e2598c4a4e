// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package views renders capweb's server-side pages. Every page is executed
// inside the "main" layout.
package views

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// ErrUnknownView is returned when rendering a view that doesn't exist.
var ErrUnknownView = errors.New("unknown view")

// View names.
const (
	Index     = "index"
	Profile   = "profile"
	LoggedOut = "loggedout"
)

// IndexData is rendered by the Index view.
type IndexData struct {
	IsAuthenticated bool
	LoginURL        string
}

// ProfileData is rendered by the Profile view. UserJSON is the
// pretty-printed user record.
type ProfileData struct {
	IsAuthenticated bool
	UserJSON        string
	LogoutURL       string
}

// LoggedOutData is rendered by the LoggedOut view.
type LoggedOutData struct {
	IsAuthenticated bool
}

// Renderer executes the embedded views. It is safe for concurrent use.
type Renderer struct {
	views map[string]*template.Template
}

// New parses the layout with each page.
func New() (*Renderer, error) {
	const op = "views.New"
	r := &Renderer{views: map[string]*template.Template{}}
	for _, name := range []string{Index, Profile, LoggedOut} {
		t, err := template.New(name).ParseFS(templateFS, "templates/main.gohtml", "templates/"+name+".gohtml")
		if err != nil {
			return nil, fmt.Errorf("%s: unable to parse %s view: %w", op, name, err)
		}
		r.views[name] = t
	}
	return r, nil
}

// Render executes the named view into w with the status code. The view is
// fully executed before anything is written, so a failure leaves w
// untouched.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data interface{}) error {
	const op = "Renderer.Render"
	t, ok := r.views[name]
	if !ok {
		return fmt.Errorf("%s: %q: %w", op, name, ErrUnknownView)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "main", data); err != nil {
		return fmt.Errorf("%s: unable to execute %s view: %w", op, name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	return nil
}
