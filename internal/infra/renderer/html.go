// Package renderer renders digests into HTML email bodies with html/template.
package renderer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"daily-digest/internal/usecase/assemble"
)

//go:embed templates/*.html
var templatesFS embed.FS

const digestTemplate = "digest.html"

// HTMLRenderer renders the embedded digest template. The parsed template is safe
// for concurrent use.
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer parses the embedded templates.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

// Render executes the digest template. Feed titles, summaries and links are escaped
// by html/template; links with unsafe schemes are neutralized.
func (r *HTMLRenderer) Render(data assemble.RenderData) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, digestTemplate, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", digestTemplate, err)
	}
	return buf.String(), nil
}
