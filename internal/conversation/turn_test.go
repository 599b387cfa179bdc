package conversation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkwell-ai/inkwell/internal/conversation"
)

func TestLastUserAndAssistant(t *testing.T) {
	t.Parallel()

	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "first"},
		{Role: conversation.RoleAssistant, Content: "reply"},
		{Role: conversation.RoleUser, Content: "second"},
	}
	assert.Equal(t, "second", conversation.LastUser(turns))
	assert.Equal(t, "reply", conversation.LastAssistant(turns))
	assert.Empty(t, conversation.LastUser(nil))
	assert.Empty(t, conversation.LastAssistant(nil))
}

func TestTrim(t *testing.T) {
	t.Parallel()

	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "a"},
		{Role: conversation.RoleAssistant, Content: "b"},
		{Role: conversation.RoleUser, Content: "c"},
	}
	assert.Len(t, conversation.Trim(turns, 2), 2)
	assert.Equal(t, "c", conversation.Trim(turns, 2)[1].Content)
	assert.Len(t, conversation.Trim(turns, 0), 3, "zero keeps everything")
	assert.Len(t, conversation.Trim(turns, 10), 3)
}
