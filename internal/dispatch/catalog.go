package dispatch

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/inkwell-ai/inkwell/internal/tools"
)

// Tool input schemas. Field descriptions reach the model through the
// generated JSON schema, so they are written for the model, not for Go
// readers.

// CreateDocumentInput asks for a brand-new document.
type CreateDocumentInput struct {
	Title   string `json:"title" jsonschema:"description=Short title for the new document"`
	Content string `json:"content" jsonschema:"description=Complete Markdown content of the document"`
}

// UpdateDocumentInput rewrites the open document. Content is always the
// full replacement text, never a diff.
type UpdateDocumentInput struct {
	Content string `json:"content" jsonschema:"description=The complete new content of the document. Always provide the full document, never a partial edit or diff"`
	Title   string `json:"title,omitempty" jsonschema:"description=New title, only when the user asked to rename"`
}

// WebSearchInput runs a web search through the workflow gateway.
type WebSearchInput struct {
	Query string `json:"query" jsonschema:"description=The search query"`
}

// CRMLookupInput looks up a contact or account in the CRM.
type CRMLookupInput struct {
	Query string `json:"query" jsonschema:"description=Name or company to look up"`
}

// EmailLookupInput finds a work email from a public profile URL.
type EmailLookupInput struct {
	ProfileURL string `json:"profile_url" jsonschema:"description=The person's public profile URL"`
}

// RegisterTools defines every catalog tool with Genkit and returns the
// handles keyed by tool name. The tool bodies never run: generation
// uses ai.WithReturnToolRequests, so requests surface to the caller for
// execution against the store or the gateway.
func RegisterTools(g *genkit.Genkit) map[string]ai.Tool {
	registered := make(map[string]ai.Tool)
	for _, def := range tools.Catalog() {
		var tool ai.Tool
		switch def.Key {
		case tools.CreateDocument:
			tool = genkit.DefineTool(g, def.Key, def.Description,
				func(_ *ai.ToolContext, _ CreateDocumentInput) (string, error) {
					return "", errNotExecutable(def.Key)
				})
		case tools.UpdateDocument:
			tool = genkit.DefineTool(g, def.Key, def.Description,
				func(_ *ai.ToolContext, _ UpdateDocumentInput) (string, error) {
					return "", errNotExecutable(def.Key)
				})
		case tools.WebSearch:
			tool = genkit.DefineTool(g, def.Key, def.Description,
				func(_ *ai.ToolContext, _ WebSearchInput) (string, error) {
					return "", errNotExecutable(def.Key)
				})
		case tools.CRMLookup:
			tool = genkit.DefineTool(g, def.Key, def.Description,
				func(_ *ai.ToolContext, _ CRMLookupInput) (string, error) {
					return "", errNotExecutable(def.Key)
				})
		case tools.EmailLookup:
			tool = genkit.DefineTool(g, def.Key, def.Description,
				func(_ *ai.ToolContext, _ EmailLookupInput) (string, error) {
					return "", errNotExecutable(def.Key)
				})
		}
		registered[def.Key] = tool
	}
	return registered
}

func errNotExecutable(name string) error {
	return fmt.Errorf("tool %s must be executed by the dispatcher, not by the model runtime", name)
}

// refsFor maps permitted tool keys to registered tool refs, in catalog
// order. Unknown keys are skipped.
func refsFor(registered map[string]ai.Tool, keys []string) []ai.ToolRef {
	refs := make([]ai.ToolRef, 0, len(keys))
	for _, k := range keys {
		if t, ok := registered[k]; ok && t != nil {
			refs = append(refs, t)
		}
	}
	return refs
}
