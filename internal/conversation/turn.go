// Package conversation holds the minimal turn types shared by the
// routing and dispatch layers. The conversation itself is owned by the
// caller; this core only reads it as model context.
package conversation

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role
	Content string
}

// LastUser returns the content of the most recent user turn, or "".
func LastUser(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

// LastAssistant returns the content of the most recent assistant turn,
// or "".
func LastAssistant(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleAssistant {
			return turns[i].Content
		}
	}
	return ""
}

// Trim returns the last n turns.
func Trim(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
