// Package view renders the server-side HTML pages.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"timed-exercise-service/internal/domain"
)

//go:embed templates/*.html
var files embed.FS

// Page names.
const (
	PageIndex    = "index"
	PageExercise = "exercise"
	PageError    = "error"
)

// IndexData feeds the catalog page.
type IndexData struct {
	Exercises []domain.Exercise
}

// ExerciseData feeds the attempt page, both while answering and once results are shown.
type ExerciseData struct {
	View        domain.AttemptView
	SubmitURL   string
	ActivityURL string
	SocketURL   string
}

// ErrorData feeds the error page.
type ErrorData struct {
	Status  int
	Message string
}

// Renderer holds one template set per page, each cloned from the shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

func New() (*Renderer, error) {
	funcs := template.FuncMap{
		"inc": func(i int) int { return i + 1 },
		"at": func(s []string, i int) string {
			if i < 0 || i >= len(s) {
				return ""
			}
			return s[i]
		},
		"matches": func(got, want string) bool {
			got = strings.TrimSpace(got)
			return got != "" && strings.EqualFold(got, strings.TrimSpace(want))
		},
	}

	base, err := template.New("base").Funcs(funcs).ParseFS(files, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{PageIndex, PageExercise, PageError} {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(files, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = clone
	}
	return r, nil
}

// Render writes the named page wrapped in the layout.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}
