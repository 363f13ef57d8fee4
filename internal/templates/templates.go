// Package templates renders the web front end pages
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed html/*.html
var content embed.FS

// Templates manages the HTML templates
type Templates struct {
	index *template.Template
	error *template.Template
}

// TemplateError wraps a failure to render a page
type TemplateError struct {
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// LoadTemplates loads and parses all HTML templates
func LoadTemplates() (*Templates, error) {
	t := &Templates{}
	var err error

	if t.index, err = template.ParseFS(content, "html/index.html", "html/layout.html"); err != nil {
		return nil, &TemplateError{Message: "parsing index page", Cause: err}
	}
	if t.error, err = template.ParseFS(content, "html/error.html", "html/layout.html"); err != nil {
		return nil, &TemplateError{Message: "parsing error page", Cause: err}
	}
	return t, nil
}

// IndexData holds data for the main page
type IndexData struct {
	CSRFToken    string
	TopApps      []AppOption
	DefaultScope string
	Tenant       string
}

// AppOption is one selectable application
type AppOption struct {
	Name     string
	ClientID string
	Scope    string
}

// RenderIndex renders the main page
func (t *Templates) RenderIndex(w http.ResponseWriter, data IndexData) error {
	return t.render(w, t.index, http.StatusOK, data)
}

// ErrorData holds data for the error page
type ErrorData struct {
	Status  int
	Title   string
	Message string
}

// RenderError renders the error page with data.Status, 500 when unset
func (t *Templates) RenderError(w http.ResponseWriter, data ErrorData) error {
	if data.Status == 0 {
		data.Status = http.StatusInternalServerError
	}
	return t.render(w, t.error, data.Status, data)
}

// RenderToString renders a template to a string
func (t *Templates) RenderToString(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", &TemplateError{Message: "failed to render template", Cause: err}
	}
	return buf.String(), nil
}

// render executes into a buffer first so a failing template never sends a
// partial page or commits a status code
func (t *Templates) render(w http.ResponseWriter, tmpl *template.Template, status int, data any) error {
	page, err := t.RenderToString(tmpl, data)
	if err != nil {
		return err
	}

	sw := t.NewSafeWriter(w)
	sw.SetStatusCode(status)
	if _, err := sw.Write([]byte(page)); err != nil {
		return &TemplateError{Message: "writing response", Cause: err}
	}
	return nil
}
