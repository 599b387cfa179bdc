package envelope

import "strings"

// BuildContext extracts a small set of identity-like facts from the
// envelope's data payload, keyed for reuse in later turns. Each fact
// uses first-non-empty-of-candidates semantics, so the assorted field
// spellings different workflows emit collapse to one key.
//
// Returns an empty map when data is absent.
func BuildContext(env *Envelope) map[string]string {
	ctx := make(map[string]string)
	if env == nil || env.Data == nil {
		return ctx
	}
	data := env.Data

	if name := personName(data); name != "" {
		ctx["name"] = name
	}
	if email := firstString(data, "email", "email_address", "work_email"); email != "" {
		ctx["email"] = email
	}
	if company := firstString(data, "company", "company_name", "organization"); company != "" {
		ctx["company"] = company
	}
	if link := firstString(data, "linkedin_url", "profile_url", "url"); link != "" {
		ctx["profile"] = link
	}
	return ctx
}

// personName assembles a display name from a full-name field or from
// first+last parts.
func personName(data map[string]any) string {
	if name := firstString(data, "name", "full_name", "fullName"); name != "" {
		return name
	}
	first := firstString(data, "first_name", "firstName")
	last := firstString(data, "last_name", "lastName")
	return strings.TrimSpace(first + " " + last)
}

func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := data[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
