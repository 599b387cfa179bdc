// Package budget limits redundant or looping tool invocations.
//
// It is a best-effort, process-local safety net, not a transactional
// guarantee: a dedup cache short-circuits repeat invocations of the
// same (tool, arguments) key inside a TTL window, and per-key failure
// counters let callers escalate from "try again" to "this capability
// appears unavailable" wording. State lives only in memory and resets
// on restart, deliberately.
package budget

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/inkwell-ai/inkwell/internal/envelope"
)

// Default TTL windows. Partial results (tool answered but found
// nothing) expire sooner so users can retry quickly; failure counters
// outlive both so repeated breakage is visible across retries.
const (
	DefaultSuccessTTL = 3 * time.Minute
	DefaultPartialTTL = 45 * time.Second
	DefaultFailureTTL = 10 * time.Minute

	// DefaultFailureThreshold is the consecutive-failure count at
	// which wording escalates to "capability unavailable".
	DefaultFailureThreshold = 2
)

// Entry is a cached invocation result, reusable instead of a network
// call while its TTL holds.
type Entry struct {
	// Output is the formatted user-facing text of the original result.
	Output string
	// Ctx holds compact facts extracted from the envelope.
	Ctx map[string]string
	// Card is the renderable card, if the envelope carried one.
	Card envelope.Card
	// ResultStatus is the envelope status ("ok", "not_found", ...).
	ResultStatus string
	// Timestamp is when the entry was recorded.
	Timestamp time.Time
}

// partial reports whether the entry is a near-success that should
// expire on the shorter TTL.
func (e Entry) partial() bool {
	return e.ResultStatus != envelope.StatusOK
}

type failureWindow struct {
	count     int
	timestamp time.Time
}

// Config tunes the budget. Zero values use the defaults above.
type Config struct {
	SuccessTTL       time.Duration
	PartialTTL       time.Duration
	FailureTTL       time.Duration
	FailureThreshold int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Budget is the process-wide dedup cache and failure counter. Safe for
// concurrent use; a single mutex suffices at expected call volumes.
type Budget struct {
	mu       sync.Mutex
	entries  map[string]Entry
	failures map[string]failureWindow

	successTTL time.Duration
	partialTTL time.Duration
	failureTTL time.Duration
	threshold  int
	now        func() time.Time
}

// New creates a Budget, applying defaults for zero config values.
func New(cfg Config) *Budget {
	if cfg.SuccessTTL <= 0 {
		cfg.SuccessTTL = DefaultSuccessTTL
	}
	if cfg.PartialTTL <= 0 {
		cfg.PartialTTL = DefaultPartialTTL
	}
	if cfg.FailureTTL <= 0 {
		cfg.FailureTTL = DefaultFailureTTL
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Budget{
		entries:    make(map[string]Entry),
		failures:   make(map[string]failureWindow),
		successTTL: cfg.SuccessTTL,
		partialTTL: cfg.PartialTTL,
		failureTTL: cfg.FailureTTL,
		threshold:  cfg.FailureThreshold,
		now:        cfg.Now,
	}
}

// Key builds the canonical cache key for a tool invocation. Argument
// maps are serialized with sorted keys (encoding/json sorts map keys,
// recursively), so logically identical calls with differently-ordered
// arguments collide.
func Key(toolName string, args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		// Non-serializable arguments never dedup; each call is unique.
		return fmt.Sprintf("%s:unserializable:%p", toolName, &args)
	}
	return toolName + ":" + string(raw)
}

// ShouldSkip returns a live cached entry for key, or nil when the
// caller must perform a fresh invocation. forceRetry (an explicit user
// "retry" intent) bypasses the cache entirely.
func (b *Budget) ShouldSkip(key string, forceRetry bool) *Entry {
	if forceRetry {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return nil
	}

	ttl := b.successTTL
	if entry.partial() {
		ttl = b.partialTTL
	}
	if b.now().Sub(entry.Timestamp) > ttl {
		delete(b.entries, key)
		return nil
	}

	out := entry
	return &out
}

// RecordSuccess stores a (near-)successful result for key and clears
// its failure window.
func (b *Budget) RecordSuccess(key string, entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry.Timestamp = b.now()
	b.entries[key] = entry
	delete(b.failures, key)
}

// RecordFailure increments the failure counter for key and drops any
// cached result: a failed fresh attempt invalidates the stale success,
// so the cache only ever blocks resubmission while the latest attempt
// for the key succeeded. Counters have their own, longer TTL; a stale
// window restarts at one.
func (b *Budget) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.entries, key)

	now := b.now()
	fw := b.failures[key]
	if fw.count > 0 && now.Sub(fw.timestamp) > b.failureTTL {
		fw = failureWindow{}
	}
	fw.count++
	fw.timestamp = now
	b.failures[key] = fw
}

// ClearFailures resets the failure window for key.
func (b *Budget) ClearFailures(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, key)
}

// TooManyFailures reports whether key has reached the escalation
// threshold within the failure window.
func (b *Budget) TooManyFailures(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	fw, ok := b.failures[key]
	if !ok {
		return false
	}
	if b.now().Sub(fw.timestamp) > b.failureTTL {
		delete(b.failures, key)
		return false
	}
	return fw.count >= b.threshold
}
