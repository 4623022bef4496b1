package models

import (
	"bytes"
	"fmt"
	"html/template"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// codeStyle is the chroma style of fenced code blocks.
const codeStyle = "github"

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(highlighting.WithStyle(codeStyle)),
	),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderMarkdown converts message content to HTML. Fenced code blocks are highlighted with
// inline styles. Raw HTML in the content is not passed through, so the result is safe to embed in
// templates.
func RenderMarkdown(content string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// RenderedEntry is an Entry prepared for the templates: the reasoning and the display part are
// rendered separately.
type RenderedEntry struct {
	Entry

	Thinking template.HTML
	Display  template.HTML
}

// RenderEntry splits the entry's reasoning from its answer and renders both.
func RenderEntry(e Entry) (RenderedEntry, error) {
	re := RenderedEntry{Entry: e}
	if e.Role != RoleAssistant {
		display, err := RenderMarkdown(e.Content)
		if err != nil {
			return RenderedEntry{}, err
		}
		re.Display = display
		return re, nil
	}

	parsed := ParseThinking(e.Content)
	if parsed.HasThinking {
		thinking, err := RenderMarkdown(parsed.ThinkingContent)
		if err != nil {
			return RenderedEntry{}, err
		}
		re.Thinking = thinking
	}
	display, err := RenderMarkdown(parsed.DisplayContent)
	if err != nil {
		return RenderedEntry{}, err
	}
	re.Display = display
	return re, nil
}
