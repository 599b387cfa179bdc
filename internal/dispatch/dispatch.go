// Package dispatch turns a conversation turn into a model call: it
// assembles history and document context, offers the permitted tools,
// and returns the model's text or its tool requests for the caller to
// execute.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/inkwell-ai/inkwell/internal/conversation"
)

// DefaultMaxHistoryTurns bounds how much conversation is replayed to
// the model per request.
const DefaultMaxHistoryTurns = 20

// ErrEmptyMessage indicates a dispatch with no user text.
var ErrEmptyMessage = errors.New("dispatch: empty message")

const systemPrompt = `You are Inkwell, a writing assistant. You help users draft and revise
documents and answer questions, using tools when they apply.

Rules:
- When creating or updating a document, always use the document tools.
  Never paste document content into the chat reply instead.
- update_document always takes the complete new content, never a diff
  or a partial edit.
- Use lookup and search tools only when the user asks for external
  information. Never invent contact details.
- Keep chat replies brief; long-form writing belongs in documents.`

// DocContext is the open document injected into the system prompt so
// update requests operate on real text.
type DocContext struct {
	Title   string
	Content string
}

// Request is one dispatch to the model.
type Request struct {
	Message string
	History []conversation.Turn
	// Doc is the currently open document, nil when none.
	Doc *DocContext
	// Permitted lists the tool keys the user may invoke.
	Permitted []string
}

// Result is the model's answer: final text, or tool requests the
// caller must execute.
type Result struct {
	Text         string
	ToolRequests []*ai.ToolRequest
}

// Config assembles a Dispatcher.
type Config struct {
	Genkit *genkit.Genkit
	// ModelName is the provider-qualified model, e.g.
	// "googleai/gemini-2.5-flash".
	ModelName       string
	Temperature     float64
	MaxTokens       int
	MaxHistoryTurns int
	// RateLimiter throttles model calls; nil uses a default.
	RateLimiter *rate.Limiter
	Retry       RetryConfig
	Logger      *slog.Logger
}

// Dispatcher issues model calls. Stateless and safe for concurrent
// use; all configuration is captured at construction.
type Dispatcher struct {
	g               *genkit.Genkit
	registered      map[string]ai.Tool
	modelName       string
	temperature     float64
	maxTokens       int
	maxHistoryTurns int
	limiter         *rate.Limiter
	retry           RetryConfig
	logger          *slog.Logger
}

// New creates a Dispatcher and registers the tool catalog with Genkit.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("dispatch: genkit instance is required")
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		return nil, errors.New("dispatch: model name is required")
	}
	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = DefaultMaxHistoryTurns
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = rate.NewLimiter(10, 30)
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Dispatcher{
		g:               cfg.Genkit,
		registered:      RegisterTools(cfg.Genkit),
		modelName:       cfg.ModelName,
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		maxHistoryTurns: cfg.MaxHistoryTurns,
		limiter:         cfg.RateLimiter,
		retry:           cfg.Retry,
		logger:          cfg.Logger,
	}, nil
}

// Dispatch sends one turn to the model. Document-intent phrasing
// narrows the offered tools and makes tool choice mandatory;
// document-shaped plain text is coerced into a create_document request
// after the fact.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	permitted := req.Permitted
	forcedTool, forced := documentBias(req.Message, req.Doc != nil)
	if forced && slices.Contains(permitted, forcedTool) {
		permitted = []string{forcedTool}
	} else {
		forced = false
	}

	opts := []ai.GenerateOption{
		ai.WithSystem(d.systemPrompt(req.Doc)),
		ai.WithMessages(d.buildMessages(req)...),
		ai.WithModelName(d.modelName),
	}
	refs := refsFor(d.registered, permitted)
	if len(refs) > 0 {
		opts = append(opts, ai.WithTools(refs...), ai.WithReturnToolRequests(true))
	}
	if forced {
		opts = append(opts, ai.WithToolChoice(ai.ToolChoiceRequired))
	}
	if cfg := d.generationConfig(); cfg != nil {
		opts = append(opts, ai.WithConfig(cfg))
	}

	d.logger.Debug("dispatching to model",
		"model", d.modelName,
		"tools", len(refs),
		"forced_tool", forcedTool,
		"history_turns", len(req.History),
	)

	resp, err := d.generateWithRetry(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	result := &Result{
		Text:         strings.TrimSpace(resp.Text()),
		ToolRequests: resp.ToolRequests(),
	}

	// The model sometimes pastes full document content into the chat
	// reply instead of calling the tool. Coerce it into the document
	// call it should have been.
	if len(result.ToolRequests) == 0 {
		if coerced := coerceDocumentRequest(req.Message, result.Text, req.Doc != nil, req.Permitted); coerced != nil {
			d.logger.Debug("coercing document-shaped reply into tool request", "tool", coerced.Name)
			result.ToolRequests = []*ai.ToolRequest{coerced}
			result.Text = ""
		}
	}

	return result, nil
}

// SuggestTitle generates a short conversation title from the first
// user message. Best-effort: returns "" on any failure.
func (d *Dispatcher) SuggestTitle(ctx context.Context, firstMessage string) string {
	const maxTitleRunes = 60

	runes := []rune(firstMessage)
	if len(runes) > 500 {
		firstMessage = string(runes[:500]) + "..."
	}

	resp, err := genkit.Generate(ctx, d.g,
		ai.WithModelName(d.modelName),
		ai.WithPrompt(`Generate a concise title (max %d characters) for a conversation
that starts with this message. Return only the title, no quotes.

Message: %s`, maxTitleRunes, firstMessage),
	)
	if err != nil {
		d.logger.Debug("title generation failed", "error", err)
		return ""
	}

	title := strings.TrimSpace(resp.Text())
	titleRunes := []rune(title)
	if len(titleRunes) > maxTitleRunes {
		title = string(titleRunes[:maxTitleRunes-3]) + "..."
	}
	return title
}

// systemPrompt appends the open document, full content included, so
// updates are grounded in the real current text.
func (d *Dispatcher) systemPrompt(doc *DocContext) string {
	if doc == nil {
		return systemPrompt
	}
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nThe user has a document open. When they ask for changes, call\nupdate_document with the complete revised content.\n\n")
	fmt.Fprintf(&b, "Open document title: %s\nOpen document content:\n%s", doc.Title, doc.Content)
	return b.String()
}

// buildMessages maps trimmed history plus the current message into
// model messages.
func (d *Dispatcher) buildMessages(req Request) []*ai.Message {
	history := conversation.Trim(req.History, d.maxHistoryTurns)
	msgs := make([]*ai.Message, 0, len(history)+1)
	for _, turn := range history {
		switch turn.Role {
		case conversation.RoleUser:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(turn.Content)))
		case conversation.RoleAssistant:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(turn.Content)))
		}
	}
	return append(msgs, ai.NewUserMessage(ai.NewTextPart(req.Message)))
}

func (d *Dispatcher) generationConfig() *ai.GenerationCommonConfig {
	if d.temperature == 0 && d.maxTokens == 0 {
		return nil
	}
	cfg := &ai.GenerationCommonConfig{}
	if d.temperature != 0 {
		cfg.Temperature = d.temperature
	}
	if d.maxTokens != 0 {
		cfg.MaxOutputTokens = d.maxTokens
	}
	return cfg
}
