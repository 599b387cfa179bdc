package router

import "regexp"

// Hard-routing decides a tool invocation purely from pattern-matching
// the user's text, bypassing the LLM. The patterns are deliberately
// narrow: a false positive steals a turn from the model, a false
// negative only costs one model call.
var (
	// emailLookupIntent matches requests to find someone's email or
	// contact details.
	emailLookupIntent = regexp.MustCompile(`(?i)\b(look\s?up|find|get|fetch|locate|what(?:'s| is))\b.{0,60}\b(e-?mail|contact)\b`)

	// composeIntent matches requests to write an email. These are
	// compose requests for the LLM, never lookups, and must win over
	// emailLookupIntent ("find a nice way to word this email").
	composeIntent = regexp.MustCompile(`(?i)\b(write|draft|compose|send|reply)\b.{0,60}\b(e-?mail|message|letter)\b`)

	// profileURLPattern extracts the required argument for the email
	// lookup tool.
	profileURLPattern = regexp.MustCompile(`https?://(?:www\.)?linkedin\.com/in/[A-Za-z0-9\-_.%]+/?`)

	// retryIntent marks an explicit user retry, which bypasses the
	// dedup cache.
	retryIntent = regexp.MustCompile(`(?i)\b(retry|try (?:that |it )?again|re-?run|once more)\b`)
)

// matchesEmailLookup reports whether the message hard-routes to the
// email lookup tool.
func matchesEmailLookup(message string) bool {
	if composeIntent.MatchString(message) {
		return false
	}
	return emailLookupIntent.MatchString(message)
}

// extractProfileURL pulls the first profile URL out of the message, or
// returns "".
func extractProfileURL(message string) string {
	return profileURLPattern.FindString(message)
}

// wantsRetry reports whether the message carries an explicit retry
// intent.
func wantsRetry(message string) bool {
	return retryIntent.MatchString(message)
}
