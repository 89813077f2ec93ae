// ABOUTME: Markdown to HTML rendering for message content
// ABOUTME: Raw HTML in messages is omitted, so output is safe to embed in a page

package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts Markdown message content to HTML.
type Renderer struct {
	md goldmark.Markdown
}

// New creates a renderer with GitHub-flavored Markdown enabled.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// HTML renders content. Model replies are usually Markdown; user input is
// rendered the same way so a transcript reads consistently.
func (r *Renderer) HTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
