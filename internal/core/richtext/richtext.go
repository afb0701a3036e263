// Package richtext converts Asana HTML notes into display-ready text.
// Normalization happens once at ingestion; the render path only reads
// the stored result.
package richtext

import (
	"html"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy = bluemonday.StrictPolicy()

	brRe   = regexp.MustCompile(`(?i)<br\s*/?>`)
	paraRe = regexp.MustCompile(`(?i)</(p|div|li|h[1-6])>`)
	multiNL = regexp.MustCompile(`\n{3,}`)
)

// Normalize converts raw html_notes markup to plain display text.
// Block-level closings become newlines before tags are stripped, so
// paragraph structure survives.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := brRe.ReplaceAllString(raw, "\n")
	s = paraRe.ReplaceAllString(s, "\n")
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = multiNL.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Renderer renders normalized note text for the detail pane using a
// terminal-aware markdown renderer. Safe for reuse across renders.
type Renderer struct {
	tr *glamour.TermRenderer
}

// NewRenderer builds a renderer wrapped at the given width.
func NewRenderer(width int) (*Renderer, error) {
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{tr: tr}, nil
}

// Render renders text for display. On renderer failure the plain text
// is returned as-is; notes must never block a frame.
func (r *Renderer) Render(text string) string {
	if r == nil || r.tr == nil {
		return text
	}
	out, err := r.tr.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
