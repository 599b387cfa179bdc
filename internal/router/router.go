// Package router hard-routes a narrow set of user requests straight to
// gateway tools, bypassing the model. It owns the permission check, the
// invocation budget consult, and the conversion of every failure into a
// user-facing message.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inkwell-ai/inkwell/internal/budget"
	"github.com/inkwell-ai/inkwell/internal/conversation"
	"github.com/inkwell-ai/inkwell/internal/envelope"
	"github.com/inkwell-ai/inkwell/internal/gateway"
	"github.com/inkwell-ai/inkwell/internal/tools"
)

// Invoker performs one gateway tool call. Satisfied by *gateway.Client.
type Invoker interface {
	Call(ctx context.Context, toolName string, args map[string]any) (*gateway.Result, error)
}

// ResubmitPolicy controls when an identical request triggers a fresh
// gateway call. The default blocks resubmission only while the latest
// attempt for the call succeeded and its cached result is live:
// failures are never cached and evict any stale cached success, so a
// prior failure always allows a fresh attempt, and explicit "retry"
// phrasing bypasses the cache outright.
type ResubmitPolicy struct {
	// AlwaysResubmit disables the dedup cache entirely: every
	// hard-routed request performs a fresh call.
	AlwaysResubmit bool
}

// Config assembles a Router.
type Config struct {
	Gateway Invoker
	Budget  *budget.Budget
	Policy  ResubmitPolicy
	Logger  *slog.Logger
}

// Router classifies user messages and runs hard-routed tool calls.
type Router struct {
	gateway Invoker
	budget  *budget.Budget
	policy  ResubmitPolicy
	logger  *slog.Logger
}

// New creates a Router.
func New(cfg Config) (*Router, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("router: gateway client is required")
	}
	if cfg.Budget == nil {
		cfg.Budget = budget.New(budget.Config{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		gateway: cfg.Gateway,
		budget:  cfg.Budget,
		policy:  cfg.Policy,
		logger:  cfg.Logger,
	}, nil
}

// Response is the outcome of Route. Handled=false means the message is
// not a hard-routed request and should flow to the model instead; in
// that case every other field is zero.
type Response struct {
	Handled bool
	// Output is the complete user-facing reply, including any reuse
	// blocks.
	Output string
	// Card is the renderable card from the tool result, if any.
	Card envelope.Card
	// SuggestedTitle is a short conversation title derived from the
	// result, or "".
	SuggestedTitle string
}

// Route classifies message and, when it hard-routes, runs the tool call
// end to end. Failures never surface as errors: they are converted to
// user-facing wording in Response.Output.
func (r *Router) Route(ctx context.Context, message string, prior []conversation.Turn, perms tools.Permissions) (*Response, error) {
	if !matchesEmailLookup(message) {
		return &Response{}, nil
	}

	profileURL := extractProfileURL(message)
	if profileURL == "" {
		profileURL = priorProfileURL(prior)
	}
	if profileURL == "" {
		return &Response{
			Handled: true,
			Output:  "I can look that up, but I need the person's LinkedIn profile URL. Could you paste it?",
		}, nil
	}

	if !perms.Allowed(tools.EmailLookup) {
		return &Response{
			Handled: true,
			Output:  "Email lookup isn't enabled for your account, so I can't run that search.",
		}, nil
	}

	args := map[string]any{"profile_url": profileURL}
	forceRetry := r.policy.AlwaysResubmit || wantsRetry(message)

	inv, err := r.Invoke(ctx, tools.EmailLookup, args, forceRetry)
	if err != nil {
		return &Response{
			Handled: true,
			Output:  r.FailureMessage(tools.EmailLookup, args, err),
		}, nil
	}

	resp := &Response{
		Handled: true,
		Output:  inv.Output,
		Card:    inv.Card,
	}
	if name := inv.Ctx["name"]; name != "" {
		resp.SuggestedTitle = "Email for " + name
	}
	return resp, nil
}

// Invocation is the outcome of one budgeted gateway call.
type Invocation struct {
	// Output is formatted user-facing text, reuse blocks included.
	Output string
	Card   envelope.Card
	// Ctx holds the compact facts extracted from the result.
	Ctx map[string]string
	// Status is the envelope status ("ok", "not_found", ...).
	Status string
	// Cached marks a result served from the dedup cache without a
	// network call.
	Cached bool
}

// Invoke runs one gateway tool call through the invocation budget:
// serve from cache unless forceRetry, otherwise call, normalize, record
// the outcome, and format the result. Transport and normalization
// failures return an error after being recorded against the failure
// counter; tool-reported non-success statuses are results, not errors.
func (r *Router) Invoke(ctx context.Context, toolName string, args map[string]any, forceRetry bool) (*Invocation, error) {
	key := budget.Key(toolName, args)

	if entry := r.budget.ShouldSkip(key, forceRetry); entry != nil {
		r.logger.Debug("serving cached tool result", "tool", toolName)
		return &Invocation{
			Output: entry.Output,
			Card:   entry.Card,
			Ctx:    entry.Ctx,
			Status: entry.ResultStatus,
			Cached: true,
		}, nil
	}

	res, err := r.gateway.Call(ctx, toolName, args)
	if err != nil {
		r.budget.RecordFailure(key)
		r.logger.Warn("gateway call failed", "tool", toolName, "error", err)
		return nil, fmt.Errorf("invoke %s: %w", toolName, err)
	}

	env, shape := envelope.Extract(res.Raw, res.FallbackText)
	if env == nil {
		r.budget.RecordFailure(key)
		r.logger.Warn("unrecognizable tool result", "tool", toolName)
		return nil, fmt.Errorf("invoke %s: unrecognizable result payload", toolName)
	}
	r.logger.Debug("tool result normalized", "tool", toolName, "shape", shape, "status", env.Status)

	if env.Status == envelope.StatusError {
		r.budget.RecordFailure(key)
		return &Invocation{
			Output: errorSummary(env),
			Status: env.Status,
		}, nil
	}

	ctxMap := envelope.BuildContext(env)
	output := formatSuccess(toolName, env, ctxMap)
	card := env.Card()

	r.budget.RecordSuccess(key, budget.Entry{
		Output:       output,
		Ctx:          ctxMap,
		Card:         card,
		ResultStatus: env.Status,
	})

	return &Invocation{
		Output: output,
		Card:   card,
		Ctx:    ctxMap,
		Status: env.Status,
	}, nil
}

// FailureMessage converts an invocation error into user-facing wording,
// escalating once the failure counter for this call crosses the
// threshold.
func (r *Router) FailureMessage(toolName string, args map[string]any, err error) string {
	label := toolLabel(toolName)
	if r.budget.TooManyFailures(budget.Key(toolName, args)) {
		return fmt.Sprintf("The %s service appears to be unavailable right now. I'll hold off on retrying for a bit.", label)
	}
	if errors.Is(err, gateway.ErrTimeout) {
		return fmt.Sprintf("The %s request timed out. Want me to try again?", label)
	}
	return fmt.Sprintf("I couldn't reach the %s service. Want me to try again?", label)
}

// errorSummary renders a tool-reported error envelope.
func errorSummary(env *envelope.Envelope) string {
	if s := env.Summary; s != "" {
		return fmt.Sprintf("The tool reported an error: %s", s)
	}
	return "The tool reported an error without details."
}

// priorProfileURL recovers a profile URL from earlier turns: first from
// the user's own messages, then from context blocks embedded in
// assistant replies.
func priorProfileURL(prior []conversation.Turn) string {
	for i := len(prior) - 1; i >= 0; i-- {
		t := prior[i]
		switch t.Role {
		case conversation.RoleUser:
			if url := extractProfileURL(t.Content); url != "" {
				return url
			}
		case conversation.RoleAssistant:
			if ctx := ParseContext(t.Content, tools.EmailLookup); ctx["profile"] != "" {
				return ctx["profile"]
			}
		}
	}
	return ""
}

// toolLabel maps a tool key to the phrase used in user-facing failure
// wording.
func toolLabel(toolName string) string {
	switch toolName {
	case tools.EmailLookup:
		return "email lookup"
	case tools.CRMLookup:
		return "CRM lookup"
	case tools.WebSearch:
		return "web search"
	default:
		return toolName
	}
}
