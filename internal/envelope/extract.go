package envelope

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Shape names returned by Extract, identifying which recognized layout
// matched. Useful in logs when a workflow changes its wrapping.
const (
	ShapeContentJSON    = "content_array_json"
	ShapeContentText    = "content_array_text"
	ShapeArrayJSON      = "array_json"
	ShapeJSONWrapper    = "json_wrapper"
	ShapeSelfDescribing = "self_describing"
	ShapeFallbackText   = "fallback_text"
	ShapeDeepScan       = "deep_scan"
)

// scanNodeLimit caps how many nodes the structural fallback visits.
// Bounds worst-case cost on adversarial or deeply nested payloads.
const scanNodeLimit = 400

// Extract normalizes an arbitrary gateway response value into a
// canonical Envelope. raw is the decoded JSON-RPC result (or any
// decoded JSON value); fallbackText, when non-empty, is the raw text
// the gateway supplied alongside the structured result.
//
// Shapes are tried in a fixed priority order; the first match wins.
// Returns (nil, "") when nothing recognizable is found. The source
// value is never mutated.
func Extract(raw any, fallbackText string) (*Envelope, string) {
	// Shape 1+2: content array, either {content:[{json|text}]} or a
	// bare array whose elements carry a json field.
	if env, shape := fromContentItems(raw); env != nil {
		return env, shape
	}

	// Shape 3: top-level {json: {...}} wrapper.
	if obj, ok := raw.(map[string]any); ok {
		if inner, ok := obj["json"]; ok {
			if env, err := fromValue(inner); err == nil {
				return env, ShapeJSONWrapper
			}
		}
	}

	// Shape 4: the value already is an envelope.
	if env, err := fromValue(raw); err == nil {
		return env, ShapeSelfDescribing
	}

	// Shape 5: stringified JSON supplied out of band, possibly wrapped
	// in a single array level.
	if env := fromFallbackText(fallbackText); env != nil {
		return env, ShapeFallbackText
	}

	// Shape 6: bounded breadth-first scan for a card-bearing node.
	if env := deepScan(raw); env != nil {
		return env, ShapeDeepScan
	}

	return nil, ""
}

// fromContentItems handles the two content-array layouts. Items may
// carry a structured "json" field or a "text" field holding JSON text.
func fromContentItems(raw any) (*Envelope, string) {
	var items []any
	switch v := raw.(type) {
	case map[string]any:
		content, ok := v["content"].([]any)
		if !ok {
			return nil, ""
		}
		items = content
	case []any:
		items = v
	default:
		return nil, ""
	}

	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if inner, ok := obj["json"]; ok {
			if env, err := fromValue(inner); err == nil {
				return env, shapeFor(raw, ShapeContentJSON, ShapeArrayJSON)
			}
		}
		if text, ok := obj["text"].(string); ok {
			if env := parseJSONText(text); env != nil {
				return env, shapeFor(raw, ShapeContentText, ShapeArrayJSON)
			}
		}
	}
	return nil, ""
}

// shapeFor distinguishes the wrapped content-array shape from the bare
// array shape for reporting purposes.
func shapeFor(raw any, wrapped, bare string) string {
	if _, ok := raw.(map[string]any); ok {
		return wrapped
	}
	return bare
}

func fromFallbackText(text string) *Envelope {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return parseJSONText(text)
}

// parseJSONText decodes a JSON string and unwraps one level of array
// wrapping before attempting envelope conversion.
func parseJSONText(text string) *Envelope {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil
	}
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return nil
		}
		v = arr[0]
	}
	env, err := fromValue(v)
	if err != nil {
		return nil
	}
	return env
}

// deepScan walks the value breadth-first looking for any object whose
// ui.mime equals the card sentinel, returning the first match. The
// walk is capped at scanNodeLimit nodes and tracks visited containers
// by reference so self-referential structures terminate.
func deepScan(raw any) *Envelope {
	type node struct{ v any }
	queue := []node{{raw}}
	visited := make(map[uintptr]struct{})
	seen := 0

	for len(queue) > 0 && seen < scanNodeLimit {
		cur := queue[0]
		queue = queue[1:]
		seen++

		if ptr, ok := containerPointer(cur.v); ok {
			if _, dup := visited[ptr]; dup {
				continue
			}
			visited[ptr] = struct{}{}
		}

		switch v := cur.v.(type) {
		case map[string]any:
			if ui, ok := v["ui"].(map[string]any); ok {
				if mime, _ := ui["mime"].(string); mime == CardMIME {
					if env, err := fromValue(v); err == nil {
						return env
					}
				}
			}
			for _, child := range v {
				queue = append(queue, node{child})
			}
		case []any:
			for _, child := range v {
				queue = append(queue, node{child})
			}
		}
	}
	return nil
}

// containerPointer returns an identity for maps and slices so the scan
// can detect revisits. Scalars need no tracking.
func containerPointer(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	default:
		return 0, false
	}
}
