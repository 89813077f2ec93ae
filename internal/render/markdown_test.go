package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_HTML(t *testing.T) {
	r := New()

	tests := []struct {
		name     string
		in       string
		contains []string
	}{
		{"paragraph", "hello", []string{"<p>hello</p>"}},
		{"emphasis", "**bold** and *soft*", []string{"<strong>bold</strong>", "<em>soft</em>"}},
		{"code block", "```go\nfmt.Println(1)\n```", []string{"<pre><code class=\"language-go\">"}},
		{"list", "- one\n- two", []string{"<ul>", "<li>one</li>"}},
		{"gfm table", "| a | b |\n|---|---|\n| 1 | 2 |", []string{"<table>", "<td>1</td>"}},
		{"strikethrough", "~~gone~~", []string{"<del>gone</del>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.HTML(tt.in)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestRenderer_HTML_OmitsRawHTML(t *testing.T) {
	out, err := New().HTML("<script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
}
