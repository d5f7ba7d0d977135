package slots

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

const defaultCacheTTL = 10 * time.Minute

// SlotCache stores generated, pre-merge slots in Redis. Keys include a
// fingerprint of the rules and options, so editing a rule never serves stale
// slots. Merged slots are never cached.
type SlotCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSlotCache(client *redis.Client, ttl time.Duration) *SlotCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &SlotCache{redis: client, ttl: ttl}
}

// Key derives the cache key for one generation call.
func (c *SlotCache) Key(clinicID, doctorID string, date time.Time, rules []scheduling.AvailabilityRule, opts scheduling.GenerateOptions) (string, error) {
	data, err := json.Marshal(struct {
		Rules []scheduling.AvailabilityRule `json:"rules"`
		Opts  scheduling.GenerateOptions    `json:"opts"`
		Zone  string                        `json:"zone"`
	}{rules, opts, date.Location().String()})
	if err != nil {
		return "", fmt.Errorf("slots: fingerprint rules: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("slots:generated:%s:%s:%s:%s", clinicID, doctorID, date.Format(scheduling.DateLayout), hex.EncodeToString(sum[:12])), nil
}

// Get returns cached slots. The bool is false on a miss.
func (c *SlotCache) Get(ctx context.Context, key string) ([]scheduling.Slot, bool, error) {
	if c == nil || c.redis == nil {
		return nil, false, nil
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("slots: cache get: %w", err)
	}
	var slots []scheduling.Slot
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, false, fmt.Errorf("slots: cache decode: %w", err)
	}
	return slots, true, nil
}

// Set stores generated slots under key for the cache TTL.
func (c *SlotCache) Set(ctx context.Context, key string, slots []scheduling.Slot) error {
	if c == nil || c.redis == nil {
		return nil
	}
	if slots == nil {
		slots = []scheduling.Slot{}
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("slots: cache encode: %w", err)
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("slots: cache set: %w", err)
	}
	return nil
}
