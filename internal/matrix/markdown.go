// ABOUTME: Markdown to HTML rendering for outgoing Matrix messages
// ABOUTME: Uses goldmark with GFM so plugin tables and code blocks survive

package matrix

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderMarkdown returns the HTML body for text, or "" when the text has no
// markup worth sending as formatted_body.
func renderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	out := strings.TrimSpace(buf.String())

	plain := "<p>" + text + "</p>"
	if out == plain {
		return "", nil
	}
	return out, nil
}
