// Package envelope defines the canonical tool-result record and the
// normalization that recovers it from the heterogeneous payload shapes
// returned by the workflow gateway.
//
// Different workflow revisions wrap the same logical result in
// different layers (content arrays, stringified JSON, bare objects).
// Extract tries a closed set of known shapes in a fixed priority order
// and only then falls back to a bounded structural scan, so the cheap
// explicit shapes always win over the expensive search.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CardMIME is the sentinel mime type marking a renderable card.
// Any other value in ui.mime means "no card", even if content is set.
const CardMIME = "application/vnd.inkwell.card+json"

// Status values produced by gateway tools. Only StatusOK is treated as
// success by callers; everything else is a tool-reported non-success.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusNotFound = "not_found"
)

// Card is a structured, renderable summary of a tool result. Its
// layout is owned by the UI layer; the core treats it as opaque JSON.
type Card map[string]any

// UI carries an optional renderable card. The card is recognized only
// when MIME equals CardMIME.
type UI struct {
	MIME    string `json:"mime"`
	Content Card   `json:"content,omitempty"`
}

// Meta holds optional envelope metadata.
type Meta struct {
	LatencyMs int      `json:"latencyMs,omitempty"`
	Source    []string `json:"source,omitempty"`
}

// Envelope is the canonical, tool-agnostic result record. It is
// immutable once constructed; normalization never mutates the source
// payload.
type Envelope struct {
	ToolID  string         `json:"toolId"`
	Version int            `json:"version,omitempty"`
	Status  string         `json:"status"`
	Summary string         `json:"summary"`
	Data    map[string]any `json:"data,omitempty"`
	UI      *UI            `json:"ui,omitempty"`
	Meta    *Meta          `json:"meta,omitempty"`
}

// OK reports whether the envelope represents a successful result.
func (e *Envelope) OK() bool {
	return e != nil && e.Status == StatusOK
}

// Card returns the renderable card, or nil when the mime is not the
// card sentinel. An unknown mime with content present is still "no
// card": the UI must never render payloads it cannot identify.
func (e *Envelope) Card() Card {
	if e == nil || e.UI == nil || e.UI.MIME != CardMIME {
		return nil
	}
	return e.UI.Content
}

// fromValue converts a decoded JSON value into an Envelope if it is an
// object carrying at least a toolId or a ui block. Conversion goes
// through a marshal round-trip so unknown fields are dropped and the
// source value is never aliased.
func fromValue(v any) (*Envelope, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("envelope: not an object")
	}
	if _, hasTool := obj["toolId"]; !hasTool {
		if _, hasUI := obj["ui"]; !hasUI {
			return nil, fmt.Errorf("envelope: object has neither toolId nor ui")
		}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("envelope: re-encode: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("envelope: decode: %w", err)
	}
	if strings.TrimSpace(env.Status) == "" {
		env.Status = StatusOK
	}
	return &env, nil
}
