package pricecache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyIsDeterministic(t *testing.T) {
	ctx := map[string]interface{}{"multiplier": 1.1, "demand": "high"}

	assert.Equal(t, Key(42, ctx), Key(42, ctx))
}

func TestKeyVariesByPlan(t *testing.T) {
	ctx := map[string]interface{}{"multiplier": 1.1}

	assert.NotEqual(t, Key(1, ctx), Key(2, ctx))
}

func TestKeyVariesByMarketContext(t *testing.T) {
	a := Key(1, map[string]interface{}{"multiplier": 1.1})
	b := Key(1, map[string]interface{}{"multiplier": 1.2})

	assert.NotEqual(t, a, b)
}

func TestKeyHasBoundedLength(t *testing.T) {
	big := map[string]interface{}{"blob": strings.Repeat("x", 10_000)}
	key := Key(1, big)

	assert.True(t, strings.HasPrefix(key, "price:plan:1:ctx:"))
	assert.Less(t, len(key), 64)
}

func TestKeyHandlesUnserializableContext(t *testing.T) {
	// Channels cannot be marshalled; the key falls back to an empty context.
	assert.Equal(t, Key(1, map[string]interface{}{}), Key(1, make(chan int)))
}

func TestNewDefaultsTTL(t *testing.T) {
	c := New(nil)

	assert.Equal(t, DefaultTTL, c.ttl())
}

func TestNewUsesProvidedTTL(t *testing.T) {
	c := New(func() time.Duration { return 30 * time.Second })

	assert.Equal(t, 30*time.Second, c.ttl())
}

func TestSetGetRoundTrip(t *testing.T) {
	configureTestCache(t)
	resetPriceCacheRedis(t)
	t.Cleanup(func() { resetPriceCacheRedis(t) })

	c := New(nil)
	ctx := map[string]interface{}{"multiplier": 1.1}

	assert.Nil(t, c.Get(7, ctx))

	err := c.Set(7, ctx, Entry{Price: 1150, Currency: "INR", Multiplier: 1.1})
	assert.NoError(t, err)

	entry := c.Get(7, ctx)
	if entry == nil {
		t.Fatal("expected cached entry after Set")
	}
	assert.Equal(t, uint(7), entry.PlanID)
	assert.Equal(t, 1150.0, entry.Price)
	assert.Equal(t, "INR", entry.Currency)
	assert.False(t, entry.CachedAt.IsZero())

	// A different market context is a different entry.
	assert.Nil(t, c.Get(7, map[string]interface{}{"multiplier": 1.2}))
}

func TestInvalidatePlanRemovesAllContexts(t *testing.T) {
	configureTestCache(t)
	resetPriceCacheRedis(t)
	t.Cleanup(func() { resetPriceCacheRedis(t) })

	c := New(nil)
	ctxA := map[string]interface{}{"multiplier": 1.1}
	ctxB := map[string]interface{}{"multiplier": 1.2}

	assert.NoError(t, c.Set(7, ctxA, Entry{Price: 1150}))
	assert.NoError(t, c.Set(7, ctxB, Entry{Price: 1200}))
	assert.NoError(t, c.Set(8, ctxA, Entry{Price: 900}))

	assert.NoError(t, c.InvalidatePlan(7))

	// Every context of plan 7 is gone, plan 8 is untouched.
	assert.Nil(t, c.Get(7, ctxA))
	assert.Nil(t, c.Get(7, ctxB))
	if c.Get(8, ctxA) == nil {
		t.Fatal("invalidation of plan 7 must not remove plan 8 entries")
	}
}
