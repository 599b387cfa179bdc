package router

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/inkwell-ai/inkwell/internal/envelope"
)

// Machine-readable reuse blocks embedded in assistant output. A later
// turn can recover structured context from them without re-invoking
// the tool. Consumers must tolerate absence or malformation: skip,
// never crash.
const reuseBlockVersion = "1"

var (
	toolJSONBlock = regexp.MustCompile(`(?s)<tool_json tool="([^"]+)" v="[^"]*">(.*?)</tool_json>`)
	ctxBlock      = regexp.MustCompile(`(?s)<ctx tool="([^"]+)" v="[^"]*">(.*?)</ctx>`)
)

// formatSuccess renders a user-facing result: a textual summary, then
// the machine-readable blocks carrying the raw envelope and the
// compact context facts.
func formatSuccess(toolName string, env *envelope.Envelope, ctx map[string]string) string {
	var b strings.Builder

	summary := strings.TrimSpace(env.Summary)
	if summary == "" {
		summary = "Done."
	}
	b.WriteString(summary)

	if email := ctx["email"]; email != "" && !strings.Contains(summary, email) {
		fmt.Fprintf(&b, "\n\nEmail: %s", email)
	}

	if raw, err := json.Marshal(env); err == nil {
		fmt.Fprintf(&b, "\n\n<tool_json tool=%q v=%q>%s</tool_json>", toolName, reuseBlockVersion, raw)
	}
	if len(ctx) > 0 {
		if raw, err := json.Marshal(ctx); err == nil {
			fmt.Fprintf(&b, "\n<ctx tool=%q v=%q>%s</ctx>", toolName, reuseBlockVersion, raw)
		}
	}
	return b.String()
}

// ParseContext recovers the <ctx> facts for toolName from a prior
// assistant message. Returns nil when the block is absent or
// malformed.
func ParseContext(text, toolName string) map[string]string {
	for _, m := range ctxBlock.FindAllStringSubmatch(text, -1) {
		if m[1] != toolName {
			continue
		}
		var ctx map[string]string
		if err := json.Unmarshal([]byte(m[2]), &ctx); err != nil {
			continue
		}
		return ctx
	}
	return nil
}

// ParseEnvelope recovers the embedded raw envelope for toolName from a
// prior assistant message. Returns nil when absent or malformed.
func ParseEnvelope(text, toolName string) *envelope.Envelope {
	for _, m := range toolJSONBlock.FindAllStringSubmatch(text, -1) {
		if m[1] != toolName {
			continue
		}
		var env envelope.Envelope
		if err := json.Unmarshal([]byte(m[2]), &env); err != nil {
			continue
		}
		return &env
	}
	return nil
}
