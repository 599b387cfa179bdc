package router

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/budget"
	"github.com/inkwell-ai/inkwell/internal/conversation"
	"github.com/inkwell-ai/inkwell/internal/envelope"
	"github.com/inkwell-ai/inkwell/internal/gateway"
	"github.com/inkwell-ai/inkwell/internal/tools"
)

// fakeInvoker scripts gateway responses and counts calls.
type fakeInvoker struct {
	calls   int
	results []any
	errs    []error
}

func (f *fakeInvoker) Call(_ context.Context, _ string, _ map[string]any) (*gateway.Result, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	var raw any
	if i < len(f.results) {
		raw = f.results[i]
	}
	return &gateway.Result{Raw: raw}, nil
}

func lookupEnvelope() map[string]any {
	return map[string]any{
		"toolId":  tools.EmailLookup,
		"status":  "ok",
		"summary": "Found a work email for Dana Reyes.",
		"data": map[string]any{
			"name":         "Dana Reyes",
			"email":        "dana.reyes@acme.test",
			"company":      "Acme",
			"linkedin_url": "https://linkedin.com/in/dana-reyes",
		},
		"ui": map[string]any{
			"mime":    envelope.CardMIME,
			"content": map[string]any{"kind": "contact", "title": "Dana Reyes"},
		},
	}
}

func allowLookup() tools.Permissions {
	return tools.Permissions{tools.EmailLookup: true}
}

func newTestRouter(t *testing.T, gw Invoker, b *budget.Budget) *Router {
	t.Helper()
	if b == nil {
		b = budget.New(budget.Config{})
	}
	r, err := New(Config{Gateway: gw, Budget: b})
	require.NoError(t, err)
	return r
}

func TestRoute_NotHardRouted(t *testing.T) {
	t.Parallel()

	gw := &fakeInvoker{}
	r := newTestRouter(t, gw, nil)

	for _, msg := range []string{
		"help me outline a blog post",
		"write an email to Dana about the renewal",
		"draft a follow-up message for https://linkedin.com/in/dana-reyes",
	} {
		resp, err := r.Route(context.Background(), msg, nil, allowLookup())
		require.NoError(t, err)
		assert.False(t, resp.Handled, "message %q must flow to the model", msg)
	}
	assert.Zero(t, gw.calls)
}

func TestRoute_LookupThenCached(t *testing.T) {
	t.Parallel()

	gw := &fakeInvoker{results: []any{lookupEnvelope()}}
	r := newTestRouter(t, gw, nil)

	msg := "find the email for https://linkedin.com/in/dana-reyes"
	resp, err := r.Route(context.Background(), msg, nil, allowLookup())
	require.NoError(t, err)
	require.True(t, resp.Handled)
	assert.Contains(t, resp.Output, "dana.reyes@acme.test")
	assert.Contains(t, resp.Output, "<tool_json tool=\"email_lookup\"")
	assert.Contains(t, resp.Output, "<ctx tool=\"email_lookup\"")
	assert.Equal(t, "Email for Dana Reyes", resp.SuggestedTitle)
	require.NotNil(t, resp.Card)
	assert.Equal(t, "contact", resp.Card["kind"])

	// Same request again inside the TTL: served from cache.
	resp2, err := r.Route(context.Background(), msg, nil, allowLookup())
	require.NoError(t, err)
	assert.Equal(t, resp.Output, resp2.Output)
	assert.Equal(t, 1, gw.calls, "second identical request must not hit the gateway")
}

func TestRoute_ExplicitRetryBypassesCache(t *testing.T) {
	t.Parallel()

	gw := &fakeInvoker{results: []any{lookupEnvelope(), lookupEnvelope()}}
	r := newTestRouter(t, gw, nil)

	msg := "find the email for https://linkedin.com/in/dana-reyes"
	_, err := r.Route(context.Background(), msg, nil, allowLookup())
	require.NoError(t, err)

	_, err = r.Route(context.Background(), "retry: find the email for https://linkedin.com/in/dana-reyes", nil, allowLookup())
	require.NoError(t, err)
	assert.Equal(t, 2, gw.calls)
}

func TestRoute_FailedRetryEvictsStaleSuccess(t *testing.T) {
	t.Parallel()

	gw := &fakeInvoker{
		results: []any{lookupEnvelope(), nil, lookupEnvelope()},
		errs:    []error{nil, gateway.ErrStreamEnded, nil},
	}
	r := newTestRouter(t, gw, nil)

	msg := "find the email for https://linkedin.com/in/dana-reyes"
	_, err := r.Route(context.Background(), msg, nil, allowLookup())
	require.NoError(t, err)

	// An explicit retry goes out fresh and fails.
	resp, err := r.Route(context.Background(), "retry: find the email for https://linkedin.com/in/dana-reyes", nil, allowLookup())
	require.NoError(t, err)
	assert.Contains(t, resp.Output, "couldn't reach")

	// The failure invalidated the earlier cached success, so the next
	// identical request must hit the gateway instead of replaying it.
	resp, err = r.Route(context.Background(), msg, nil, allowLookup())
	require.NoError(t, err)
	assert.Contains(t, resp.Output, "dana.reyes@acme.test")
	assert.Equal(t, 3, gw.calls)
}

func TestRoute_PermissionDenied(t *testing.T) {
	t.Parallel()

	gw := &fakeInvoker{}
	r := newTestRouter(t, gw, nil)

	resp, err := r.Route(context.Background(),
		"find the email for https://linkedin.com/in/dana-reyes",
		nil, tools.Permissions{})
	require.NoError(t, err)
	require.True(t, resp.Handled)
	assert.Contains(t, resp.Output, "isn't enabled")
	assert.Zero(t, gw.calls, "denied tool must never reach the gateway")
}

func TestRoute_MissingURLAsksForIt(t *testing.T) {
	t.Parallel()

	gw := &fakeInvoker{}
	r := newTestRouter(t, gw, nil)

	resp, err := r.Route(context.Background(), "can you find her email?", nil, allowLookup())
	require.NoError(t, err)
	require.True(t, resp.Handled)
	assert.Contains(t, resp.Output, "LinkedIn profile URL")
	assert.Zero(t, gw.calls)
}

func TestRoute_URLRecoveredFromPriorTurns(t *testing.T) {
	t.Parallel()

	gw := &fakeInvoker{results: []any{lookupEnvelope()}}
	r := newTestRouter(t, gw, nil)

	prior := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "here's her profile: https://linkedin.com/in/dana-reyes"},
		{Role: conversation.RoleAssistant, Content: "Got it."},
	}
	resp, err := r.Route(context.Background(), "now find her email", prior, allowLookup())
	require.NoError(t, err)
	require.True(t, resp.Handled)
	assert.Contains(t, resp.Output, "dana.reyes@acme.test")
	assert.Equal(t, 1, gw.calls)
}

func TestRoute_FailureThenEscalation(t *testing.T) {
	t.Parallel()

	timeout := fmt.Errorf("call email_lookup: %w", gateway.ErrTimeout)
	gw := &fakeInvoker{errs: []error{timeout, timeout}}
	r := newTestRouter(t, gw, nil)

	msg := "find the email for https://linkedin.com/in/dana-reyes"

	resp, err := r.Route(context.Background(), msg, nil, allowLookup())
	require.NoError(t, err)
	assert.Contains(t, resp.Output, "timed out")

	// Failures are not cached, so the retry hits the gateway again. The
	// second consecutive failure crosses the threshold and escalates.
	resp, err = r.Route(context.Background(), msg, nil, allowLookup())
	require.NoError(t, err)
	assert.Contains(t, resp.Output, "appears to be unavailable")
	assert.Equal(t, 2, gw.calls)
}

func TestRoute_SuccessClearsFailureEscalation(t *testing.T) {
	t.Parallel()

	gw := &fakeInvoker{
		errs:    []error{gateway.ErrStreamEnded, nil},
		results: []any{nil, lookupEnvelope()},
	}
	r := newTestRouter(t, gw, nil)

	msg := "find the email for https://linkedin.com/in/dana-reyes"
	resp, err := r.Route(context.Background(), msg, nil, allowLookup())
	require.NoError(t, err)
	assert.Contains(t, resp.Output, "couldn't reach")

	resp, err = r.Route(context.Background(), msg, nil, allowLookup())
	require.NoError(t, err)
	assert.Contains(t, resp.Output, "dana.reyes@acme.test")

	key := budget.Key(tools.EmailLookup, map[string]any{"profile_url": "https://linkedin.com/in/dana-reyes"})
	assert.False(t, r.budget.TooManyFailures(key))
}

func TestInvoke_ToolReportedError(t *testing.T) {
	t.Parallel()

	errEnvelope := map[string]any{
		"toolId":  tools.CRMLookup,
		"status":  "error",
		"summary": "upstream CRM rejected the query",
	}
	gw := &fakeInvoker{results: []any{errEnvelope, errEnvelope}}
	r := newTestRouter(t, gw, nil)

	inv, err := r.Invoke(context.Background(), tools.CRMLookup, map[string]any{"q": "acme"}, false)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusError, inv.Status)
	assert.Contains(t, inv.Output, "upstream CRM rejected the query")

	// Tool-reported errors are never cached.
	inv2, err := r.Invoke(context.Background(), tools.CRMLookup, map[string]any{"q": "acme"}, false)
	require.NoError(t, err)
	assert.False(t, inv2.Cached)
	assert.Equal(t, 2, gw.calls)
}

func TestInvoke_NotFoundCachedOnShorterTTL(t *testing.T) {
	t.Parallel()

	now := time.Now()
	clock := func() time.Time { return now }
	b := budget.New(budget.Config{Now: func() time.Time { return clock() }})

	gw := &fakeInvoker{results: []any{
		map[string]any{"toolId": tools.EmailLookup, "status": "not_found", "summary": "No email on file."},
		lookupEnvelope(),
	}}
	r := newTestRouter(t, gw, b)

	args := map[string]any{"profile_url": "https://linkedin.com/in/dana-reyes"}
	inv, err := r.Invoke(context.Background(), tools.EmailLookup, args, false)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusNotFound, inv.Status)

	// Inside the partial TTL the miss is served from cache.
	inv, err = r.Invoke(context.Background(), tools.EmailLookup, args, false)
	require.NoError(t, err)
	assert.True(t, inv.Cached)

	// Past the partial TTL a fresh call goes out.
	now = now.Add(budget.DefaultPartialTTL + time.Second)
	inv, err = r.Invoke(context.Background(), tools.EmailLookup, args, false)
	require.NoError(t, err)
	assert.False(t, inv.Cached)
	assert.Equal(t, 2, gw.calls)
}

func TestInvoke_UnrecognizableResult(t *testing.T) {
	t.Parallel()

	gw := &fakeInvoker{results: []any{map[string]any{"noise": true}}}
	r := newTestRouter(t, gw, nil)

	_, err := r.Invoke(context.Background(), tools.WebSearch, map[string]any{"q": "x"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognizable")
}

func TestNew_RequiresGateway(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}
