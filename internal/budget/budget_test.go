package budget_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/budget"
	"github.com/inkwell-ai/inkwell/internal/envelope"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time             { return c.now }
func (c *fakeClock) Advance(d time.Duration)    { c.now = c.now.Add(d) }
func newFakeClock() *fakeClock                  { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func newBudget(clock *fakeClock) *budget.Budget {
	return budget.New(budget.Config{Now: clock.Now})
}

func TestKey_OrderInsensitive(t *testing.T) {
	t.Parallel()

	a := budget.Key("crm_lookup", map[string]any{"name": "Jane", "company": "Acme"})
	b := budget.Key("crm_lookup", map[string]any{"company": "Acme", "name": "Jane"})
	assert.Equal(t, a, b)

	c := budget.Key("crm_lookup", map[string]any{"name": "Jane", "company": "Other"})
	assert.NotEqual(t, a, c)

	d := budget.Key("web_search", map[string]any{"name": "Jane", "company": "Acme"})
	assert.NotEqual(t, a, d, "tool name is part of the key")
}

func TestKey_NestedArgsOrderInsensitive(t *testing.T) {
	t.Parallel()

	a := budget.Key("t", map[string]any{"f": map[string]any{"x": 1, "y": 2}})
	b := budget.Key("t", map[string]any{"f": map[string]any{"y": 2, "x": 1}})
	assert.Equal(t, a, b)
}

func TestShouldSkip_ServesFreshEntry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	b := newBudget(clock)
	key := budget.Key("email_lookup", map[string]any{"profile_url": "https://example.com/p"})

	require.Nil(t, b.ShouldSkip(key, false), "cold cache must not skip")

	b.RecordSuccess(key, budget.Entry{
		Output:       "Found jane@acme.example",
		Ctx:          map[string]string{"email": "jane@acme.example"},
		ResultStatus: envelope.StatusOK,
	})

	clock.Advance(time.Minute)
	entry := b.ShouldSkip(key, false)
	require.NotNil(t, entry)
	assert.Equal(t, "Found jane@acme.example", entry.Output)
	assert.Equal(t, "jane@acme.example", entry.Ctx["email"])
}

func TestShouldSkip_ForceRetryBypasses(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	b := newBudget(clock)
	key := "email_lookup:{}"
	b.RecordSuccess(key, budget.Entry{ResultStatus: envelope.StatusOK})

	assert.Nil(t, b.ShouldSkip(key, true))
	assert.NotNil(t, b.ShouldSkip(key, false), "bypass must not evict the entry")
}

func TestShouldSkip_SuccessTTLExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	b := newBudget(clock)
	key := "k"
	b.RecordSuccess(key, budget.Entry{ResultStatus: envelope.StatusOK})

	clock.Advance(budget.DefaultSuccessTTL + time.Second)
	assert.Nil(t, b.ShouldSkip(key, false), "expired entry must force a fresh call")
}

func TestShouldSkip_PartialExpiresSooner(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	b := newBudget(clock)
	key := "k"
	b.RecordSuccess(key, budget.Entry{ResultStatus: envelope.StatusNotFound})

	clock.Advance(30 * time.Second)
	assert.NotNil(t, b.ShouldSkip(key, false))

	clock.Advance(budget.DefaultPartialTTL)
	assert.Nil(t, b.ShouldSkip(key, false), "not_found results must expire on the short TTL")
}

func TestFailures_EscalateAtThreshold(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	b := newBudget(clock)
	key := "k"

	assert.False(t, b.TooManyFailures(key))

	b.RecordFailure(key)
	assert.False(t, b.TooManyFailures(key), "one failure is still 'try again' territory")

	b.RecordFailure(key)
	assert.True(t, b.TooManyFailures(key))
}

func TestFailures_WindowExpires(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	b := newBudget(clock)
	key := "k"

	b.RecordFailure(key)
	b.RecordFailure(key)
	require.True(t, b.TooManyFailures(key))

	clock.Advance(budget.DefaultFailureTTL + time.Minute)
	assert.False(t, b.TooManyFailures(key))

	// A stale window restarts counting at one.
	b.RecordFailure(key)
	assert.False(t, b.TooManyFailures(key))
}

func TestRecordFailure_EvictsCachedResult(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	b := newBudget(clock)
	key := "k"

	b.RecordSuccess(key, budget.Entry{ResultStatus: envelope.StatusOK})
	require.NotNil(t, b.ShouldSkip(key, false))

	b.RecordFailure(key)
	assert.Nil(t, b.ShouldSkip(key, false),
		"a failed attempt must invalidate the stale success, so only a successful latest attempt blocks resubmission")
}

func TestRecordSuccess_ClearsFailures(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	b := newBudget(clock)
	key := "k"

	b.RecordFailure(key)
	b.RecordFailure(key)
	require.True(t, b.TooManyFailures(key))

	b.RecordSuccess(key, budget.Entry{ResultStatus: envelope.StatusOK})
	assert.False(t, b.TooManyFailures(key))
}
