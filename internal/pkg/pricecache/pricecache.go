package pricecache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/PricePilot/PricePilot/internal/pkg/cache"
)

const keyPrefix = "price:plan:"

// DefaultTTL applies when no TTL is configured in settings.
const DefaultTTL = 5 * time.Minute

// Entry is the cached result of a price read for one (plan, market
// context) pair.
type Entry struct {
	PlanID     uint      `json:"plan_id"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	Multiplier float64   `json:"multiplier"`
	CachedAt   time.Time `json:"cached_at"`
}

// Cache is a short-TTL read cache keyed by plan and serialized market
// context. It is best-effort: a miss or a Redis failure just means the
// caller recomputes. Invalidation is called synchronously after a
// committed price write, so reads never observe a stale price for longer
// than the invalidation step takes.
type Cache struct {
	ttl func() time.Duration
}

// New creates a price cache. ttl is read per operation so settings changes
// apply without restart; nil falls back to DefaultTTL.
func New(ttl func() time.Duration) *Cache {
	if ttl == nil {
		ttl = func() time.Duration { return DefaultTTL }
	}
	return &Cache{ttl: ttl}
}

// Key builds the cache key for a plan and a serializable market context.
// The context is hashed so arbitrary maps produce bounded key lengths.
func Key(planID uint, marketContext interface{}) string {
	serialized, err := json.Marshal(marketContext)
	if err != nil {
		serialized = []byte("{}")
	}
	sum := sha256.Sum256(serialized)
	return fmt.Sprintf("%s%d:ctx:%s", keyPrefix, planID, hex.EncodeToString(sum[:8]))
}

// Get returns the cached entry, or nil on miss or cache failure.
func (c *Cache) Get(planID uint, marketContext interface{}) *Entry {
	raw, err := cache.Get(Key(planID, marketContext))
	if err != nil {
		if err != redis.Nil {
			log.Debugf("[PriceCache] Read error for plan %d: %v", planID, err)
		}
		return nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Warnf("[PriceCache] Corrupt entry for plan %d, dropping: %v", planID, err)
		_ = cache.Delete(Key(planID, marketContext))
		return nil
	}
	return &entry
}

// Set stores an entry under the configured TTL.
func (c *Cache) Set(planID uint, marketContext interface{}, entry Entry) error {
	entry.PlanID = planID
	entry.CachedAt = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return cache.Set(Key(planID, marketContext), data, c.ttl())
}

// InvalidatePlan removes every cached entry for the plan regardless of
// market context.
func (c *Cache) InvalidatePlan(planID uint) error {
	pattern := fmt.Sprintf("%s%d:ctx:*", keyPrefix, planID)
	deleted, err := cache.DeletePattern(pattern)
	if err != nil {
		return fmt.Errorf("invalidate plan %d: %w", planID, err)
	}
	if deleted > 0 {
		log.Debugf("[PriceCache] Invalidated %d entries for plan %d", deleted, planID)
	}
	return nil
}
