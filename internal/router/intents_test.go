package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesEmailLookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    bool
	}{
		{"find the email for https://linkedin.com/in/dana-reyes", true},
		{"can you look up her contact info?", true},
		{"what's the email address for this profile?", true},
		{"fetch the work email for this person", true},
		{"write an email to Dana about the renewal", false},
		{"draft a quick email for me", false},
		{"reply to that email from Dana", false},
		{"summarize this article", false},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, matchesEmailLookup(tt.message))
		})
	}
}

func TestExtractProfileURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"https://linkedin.com/in/dana-reyes",
		extractProfileURL("her profile is https://linkedin.com/in/dana-reyes thanks"))
	assert.Equal(t,
		"https://www.linkedin.com/in/dana-reyes/",
		extractProfileURL("see https://www.linkedin.com/in/dana-reyes/"))
	assert.Empty(t, extractProfileURL("no link here"))
	assert.Empty(t, extractProfileURL("https://example.com/in/dana"))
}

func TestWantsRetry(t *testing.T) {
	t.Parallel()

	assert.True(t, wantsRetry("please retry that lookup"))
	assert.True(t, wantsRetry("try it again"))
	assert.True(t, wantsRetry("re-run the search"))
	assert.False(t, wantsRetry("find her email"))
}
