// Package tools defines the fixed tool catalog and the per-user
// permission model consulted before any tool runs.
package tools

// Tool keys. The catalog is small and fixed; there is no dynamic
// registration.
const (
	CreateDocument = "create_document"
	UpdateDocument = "update_document"
	WebSearch      = "web_search"
	CRMLookup      = "crm_lookup"
	EmailLookup    = "email_lookup"
)

// Definition describes one catalog entry.
type Definition struct {
	Key         string
	Description string
	// External tools run through the workflow gateway; internal ones
	// against the artifact store.
	External bool
}

// Catalog returns the full tool catalog. Callers filter it by
// permission before exposing it to the model.
func Catalog() []Definition {
	return []Definition{
		{
			Key:         CreateDocument,
			Description: "Create a new document for the user. Provide a title and the full Markdown content.",
		},
		{
			Key:         UpdateDocument,
			Description: "Update the currently open document. Always provide the complete new content, never a diff.",
		},
		{
			Key:         WebSearch,
			Description: "Search the web for up-to-date information. Provide a search query.",
			External:    true,
		},
		{
			Key:         CRMLookup,
			Description: "Look up a contact or account in the CRM by name or company.",
			External:    true,
		},
		{
			Key:         EmailLookup,
			Description: "Find the work email address for a person given their public profile URL.",
			External:    true,
		},
	}
}

// Permissions maps tool key to granted/denied. Absent keys deny.
type Permissions map[string]bool

// Allowed reports whether the tool is granted. Deny-by-default: a
// missing flag is a denial.
func (p Permissions) Allowed(toolKey string) bool {
	return p != nil && p[toolKey]
}

// Filter returns the catalog entries the permissions grant.
func Filter(catalog []Definition, perms Permissions) []Definition {
	out := make([]Definition, 0, len(catalog))
	for _, def := range catalog {
		if perms.Allowed(def.Key) {
			out = append(out, def)
		}
	}
	return out
}
