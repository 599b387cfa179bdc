package dispatch

import (
	"regexp"
	"slices"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/inkwell-ai/inkwell/internal/tools"
)

// Intent biasing. When the user's phrasing clearly names a document
// operation, the tool list offered to the model is narrowed to that
// operation and tool choice is made mandatory. Provider-agnostic: the
// bias lives in the request, not in prompt engineering per provider.
var (
	updateIntent = regexp.MustCompile(`(?i)\b(update|revise|edit|rewrite|change|shorten|lengthen|fix|polish|tweak)\b.{0,50}\b(doc(?:ument)?|draft|post|article|text|it|this|that)\b`)

	createIntent = regexp.MustCompile(`(?i)\b(write|draft|create|compose|start|make)\b.{0,50}\b(doc(?:ument)?|draft|post|article|essay|e-?mail|letter|memo|blog|outline|summary)\b`)
)

// documentBias classifies the message into a forced document
// operation. Returns the tool key and true when the phrasing is
// unambiguous; update wins over create when a document is open, since
// "rewrite the intro" refers to existing text.
func documentBias(message string, hasOpenDoc bool) (string, bool) {
	if hasOpenDoc && updateIntent.MatchString(message) {
		return tools.UpdateDocument, true
	}
	if createIntent.MatchString(message) {
		return tools.CreateDocument, true
	}
	return "", false
}

// coerceDocumentRequest is the last-resort safety net behind the
// intent bias: when the model answered with plain text instead of a
// document tool call, decide which call it should have been. Returns
// nil when the text belongs in chat.
//
// With a document open, document-shaped text (or any reply to an
// explicit update request) becomes an update_document call carrying
// the full text, so document content never surfaces only as chat
// prose. Without one, document-shaped text on a create request becomes
// create_document. Denied tools are never coerced.
func coerceDocumentRequest(message, text string, hasOpenDoc bool, permitted []string) *ai.ToolRequest {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if hasOpenDoc && (looksLikeDocument(trimmed) || updateIntent.MatchString(message)) &&
		slices.Contains(permitted, tools.UpdateDocument) {
		return &ai.ToolRequest{
			Name:  tools.UpdateDocument,
			Input: map[string]any{"content": trimmed},
		}
	}

	if createIntent.MatchString(message) && looksLikeDocument(trimmed) &&
		slices.Contains(permitted, tools.CreateDocument) {
		return &ai.ToolRequest{
			Name: tools.CreateDocument,
			Input: map[string]any{
				"title":   documentTitle(trimmed),
				"content": trimmed,
			},
		}
	}
	return nil
}

// looksLikeDocument reports whether plain model text is document-shaped:
// a Markdown heading, an email with a subject line, or a letter
// opening. Used to coerce prose the model should have routed through a
// document tool.
func looksLikeDocument(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "# ") || strings.HasPrefix(trimmed, "## ") {
		return true
	}
	for _, line := range strings.SplitN(trimmed, "\n", 5) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Subject:") || strings.HasPrefix(line, "Dear ") {
			return true
		}
	}
	return false
}

// documentTitle derives a title from document-shaped text: the first
// heading or subject line, else the first line, truncated.
func documentTitle(text string) string {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "## ")
		line = strings.TrimPrefix(line, "# ")
		line = strings.TrimPrefix(line, "Subject:")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > 80 {
			return string(runes[:77]) + "..."
		}
		return line
	}
	return "Untitled"
}
