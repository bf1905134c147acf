package handlers

import (
	"embed"
	"html/template"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// stampLayout renders stored timestamps on the detail page.
const stampLayout = "2006-01-02 15:04:05 UTC"

// Templates parses the embedded page templates. Page names are the file
// names: list.html, tweet.html and message.html.
func Templates() (*template.Template, error) {
	return template.New("pages").Funcs(template.FuncMap{
		"join":  strings.Join,
		"stamp": func(t time.Time) string { return t.UTC().Format(stampLayout) },
		"score": formatScore,
	}).ParseFS(templateFS, "templates/*.html")
}

// MustTemplates is Templates for static wiring; it panics on a parse error.
func MustTemplates() *template.Template {
	return template.Must(Templates())
}

// formatScore renders a sentiment with at least one decimal place, so 1.0
// reads "1.0" rather than "1".
func formatScore(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
