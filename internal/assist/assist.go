// Package assist orchestrates one conversation turn end to end: hard
// routing first, then model dispatch, then execution of whatever tool
// requests the model makes, against the artifact store for document
// tools and through the gateway for external ones.
package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/internal/artifact"
	"github.com/inkwell-ai/inkwell/internal/conversation"
	"github.com/inkwell-ai/inkwell/internal/dispatch"
	"github.com/inkwell-ai/inkwell/internal/envelope"
	"github.com/inkwell-ai/inkwell/internal/router"
	"github.com/inkwell-ai/inkwell/internal/tools"
)

// fallbackReply is returned when the model produces neither text nor
// tool requests.
const fallbackReply = "I couldn't come up with a response. Could you rephrase that?"

// ArtifactStore is the slice of the artifact store the assistant
// needs. Satisfied by *artifact.Store.
type ArtifactStore interface {
	SaveVersion(ctx context.Context, conversationID uuid.UUID, incoming *artifact.Artifact) (*artifact.Artifact, int, error)
	List(ctx context.Context, conversationID uuid.UUID) ([]*artifact.Artifact, error)
}

// Dispatcher issues model calls. Satisfied by *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
	SuggestTitle(ctx context.Context, firstMessage string) string
}

// Router hard-routes messages and runs budgeted gateway calls.
// Satisfied by *router.Router.
type Router interface {
	Route(ctx context.Context, message string, prior []conversation.Turn, perms tools.Permissions) (*router.Response, error)
	Invoke(ctx context.Context, toolName string, args map[string]any, forceRetry bool) (*router.Invocation, error)
	FailureMessage(toolName string, args map[string]any, err error) string
}

// Config assembles an Assistant.
type Config struct {
	Router      Router
	Dispatcher  Dispatcher
	Artifacts   ArtifactStore
	Permissions tools.Permissions
	Logger      *slog.Logger
}

// Assistant owns the per-conversation state: the turn history replayed
// to the model and which document is currently open. State is held in
// memory only; restarts begin conversations fresh while artifacts
// persist in the store.
type Assistant struct {
	router      Router
	dispatcher  Dispatcher
	artifacts   ArtifactStore
	permissions tools.Permissions
	logger      *slog.Logger

	mu      sync.Mutex
	history map[uuid.UUID][]conversation.Turn
	openDoc map[uuid.UUID]string
}

// New creates an Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Router == nil {
		return nil, errors.New("assist: router is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("assist: dispatcher is required")
	}
	if cfg.Artifacts == nil {
		return nil, errors.New("assist: artifact store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assistant{
		router:      cfg.Router,
		dispatcher:  cfg.Dispatcher,
		artifacts:   cfg.Artifacts,
		permissions: cfg.Permissions,
		logger:      cfg.Logger,
		history:     make(map[uuid.UUID][]conversation.Turn),
		openDoc:     make(map[uuid.UUID]string),
	}, nil
}

// Reply is the assistant's answer to one turn.
type Reply struct {
	Text string
	// Card is a renderable card from a tool result, if any.
	Card envelope.Card
	// SuggestedTitle is set on the first turn of a conversation.
	SuggestedTitle string
	// Artifact and Version are set when the turn created or updated a
	// document.
	Artifact *artifact.Artifact
	Version  int
}

// HandleTurn processes one user message. Failures of downstream
// services never surface as errors: they become user-facing wording in
// the reply. Only broken preconditions (nil context, empty message)
// return an error.
func (a *Assistant) HandleTurn(ctx context.Context, conversationID uuid.UUID, message string) (*Reply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, dispatch.ErrEmptyMessage
	}

	prior := a.historyFor(conversationID)
	firstTurn := len(prior) == 0

	reply, err := a.respond(ctx, conversationID, message, prior)
	if err != nil {
		return nil, err
	}

	if firstTurn && reply.SuggestedTitle == "" {
		reply.SuggestedTitle = a.dispatcher.SuggestTitle(ctx, message)
	}

	a.appendTurns(conversationID, message, reply.Text)
	return reply, nil
}

func (a *Assistant) respond(ctx context.Context, conversationID uuid.UUID, message string, prior []conversation.Turn) (*Reply, error) {
	routed, err := a.router.Route(ctx, message, prior, a.permissions)
	if err != nil {
		return nil, fmt.Errorf("assist: route: %w", err)
	}
	if routed.Handled {
		return &Reply{
			Text:           routed.Output,
			Card:           routed.Card,
			SuggestedTitle: routed.SuggestedTitle,
		}, nil
	}

	doc, err := a.openDocument(ctx, conversationID)
	if err != nil {
		a.logger.Warn("loading open document", "error", err)
		// Non-fatal: dispatch proceeds without document context.
	}

	req := dispatch.Request{
		Message:   message,
		History:   prior,
		Permitted: a.permittedKeys(),
	}
	if doc != nil {
		if cur := doc.Current(); cur != nil {
			req.Doc = &dispatch.DocContext{Title: doc.Title, Content: cur.Content}
		}
	}

	result, err := a.dispatcher.Dispatch(ctx, req)
	if err != nil {
		a.logger.Warn("model dispatch failed", "error", err)
		return &Reply{Text: "I'm having trouble reaching the language model right now. Please try again in a moment."}, nil
	}

	if len(result.ToolRequests) > 0 {
		return a.executeToolRequests(ctx, conversationID, result)
	}

	text := result.Text
	if text == "" {
		text = fallbackReply
	}
	return &Reply{Text: text}, nil
}

// executeToolRequests runs the model's tool requests in order and
// folds their outcomes into one reply.
func (a *Assistant) executeToolRequests(ctx context.Context, conversationID uuid.UUID, result *dispatch.Result) (*Reply, error) {
	reply := &Reply{Text: result.Text}
	var parts []string
	if result.Text != "" {
		parts = append(parts, result.Text)
	}

	for _, req := range result.ToolRequests {
		if !a.permissions.Allowed(req.Name) {
			a.logger.Warn("model requested a denied tool", "tool", req.Name)
			parts = append(parts, fmt.Sprintf("I can't use %s: it isn't enabled for your account.", req.Name))
			continue
		}

		args, err := toolArgs(req)
		if err != nil {
			a.logger.Warn("undecodable tool arguments", "tool", req.Name, "error", err)
			parts = append(parts, "The model produced a tool call I couldn't understand, so I skipped it.")
			continue
		}

		switch req.Name {
		case tools.CreateDocument, tools.UpdateDocument:
			text, err := a.executeDocumentTool(ctx, conversationID, req.Name, args, reply)
			if err != nil {
				a.logger.Warn("document tool failed", "tool", req.Name, "error", err)
				parts = append(parts, "I couldn't save the document. Please try again.")
				continue
			}
			parts = append(parts, text)

		default:
			inv, err := a.router.Invoke(ctx, req.Name, args, false)
			if err != nil {
				parts = append(parts, a.router.FailureMessage(req.Name, args, err))
				continue
			}
			parts = append(parts, inv.Output)
			if reply.Card == nil {
				reply.Card = inv.Card
			}
		}
	}

	reply.Text = strings.Join(parts, "\n\n")
	if strings.TrimSpace(reply.Text) == "" {
		reply.Text = fallbackReply
	}
	return reply, nil
}

// executeDocumentTool persists a create or update against the artifact
// store and records the resulting open document.
func (a *Assistant) executeDocumentTool(ctx context.Context, conversationID uuid.UUID, toolName string, args map[string]any, reply *Reply) (string, error) {
	title, _ := args["title"].(string)
	content, _ := args["content"].(string)

	var incoming *artifact.Artifact
	switch toolName {
	case tools.CreateDocument:
		incoming = &artifact.Artifact{
			Title:    title,
			Type:     artifact.TypeDocument,
			Versions: []artifact.Version{{Content: content}},
		}
	case tools.UpdateDocument:
		openID := a.openDocID(conversationID)
		if openID == "" {
			return "", errors.New("no document is open")
		}
		incoming = &artifact.Artifact{
			ID:       openID,
			Title:    title,
			Versions: []artifact.Version{{Content: content}},
			Mode:     artifact.ModeAppend,
		}
	}

	saved, version, err := a.artifacts.SaveVersion(ctx, conversationID, incoming)
	if err != nil {
		return "", err
	}

	a.setOpenDoc(conversationID, saved.ID)
	reply.Artifact = saved
	reply.Version = version

	if toolName == tools.CreateDocument {
		return fmt.Sprintf("I've created %q for you.", saved.Title), nil
	}
	return fmt.Sprintf("I've updated %q (now at version %d).", saved.Title, version), nil
}

// openDocument resolves the conversation's open document: the one
// tracked in memory, else the most recently updated artifact in the
// store.
func (a *Assistant) openDocument(ctx context.Context, conversationID uuid.UUID) (*artifact.Artifact, error) {
	collection, err := a.artifacts.List(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(collection) == 0 {
		return nil, nil
	}

	if id := a.openDocID(conversationID); id != "" {
		for _, art := range collection {
			if art.ID == id {
				return art, nil
			}
		}
	}

	latest := collection[0]
	for _, art := range collection[1:] {
		if art.UpdatedAt > latest.UpdatedAt {
			latest = art
		}
	}
	a.setOpenDoc(conversationID, latest.ID)
	return latest, nil
}

// History returns a copy of the conversation's turns.
func (a *Assistant) History(conversationID uuid.UUID) []conversation.Turn {
	return a.historyFor(conversationID)
}

// Reset drops the in-memory state for a conversation. Stored artifacts
// are untouched.
func (a *Assistant) Reset(conversationID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.history, conversationID)
	delete(a.openDoc, conversationID)
}

func (a *Assistant) permittedKeys() []string {
	keys := make([]string, 0, len(a.permissions))
	for _, def := range tools.Catalog() {
		if a.permissions.Allowed(def.Key) {
			keys = append(keys, def.Key)
		}
	}
	return keys
}

func (a *Assistant) historyFor(conversationID uuid.UUID) []conversation.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	turns := a.history[conversationID]
	out := make([]conversation.Turn, len(turns))
	copy(out, turns)
	return out
}

func (a *Assistant) appendTurns(conversationID uuid.UUID, userText, assistantText string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history[conversationID] = append(a.history[conversationID],
		conversation.Turn{Role: conversation.RoleUser, Content: userText},
		conversation.Turn{Role: conversation.RoleAssistant, Content: assistantText},
	)
}

func (a *Assistant) openDocID(conversationID uuid.UUID) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openDoc[conversationID]
}

func (a *Assistant) setOpenDoc(conversationID uuid.UUID, artifactID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.openDoc[conversationID] = artifactID
}

// toolArgs decodes a tool request's input into a string-keyed map via
// a JSON round-trip, since providers deliver either typed structs or
// raw maps.
func toolArgs(req *ai.ToolRequest) (map[string]any, error) {
	if req.Input == nil {
		return map[string]any{}, nil
	}
	if m, ok := req.Input.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("encode tool input: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode tool input: %w", err)
	}
	return m, nil
}
