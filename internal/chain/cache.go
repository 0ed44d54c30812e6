package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"landchain/internal/chain/metrics"
)

const verdictKeyPrefix = "chain:verdict:"

// VerdictCache memoizes positive verification verdicts in Redis. Confirmed
// transactions are immutable, so a verdict that passed once stays valid;
// negative verdicts are never cached because a not-found transaction may still
// confirm. All methods are nil-safe so the cache stays optional.
type VerdictCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewVerdictCache wraps a Redis client. Returns nil when client is nil.
func NewVerdictCache(client *redis.Client, ttl time.Duration, m *metrics.Metrics) *VerdictCache {
	if client == nil {
		return nil
	}
	return &VerdictCache{client: client, ttl: ttl, metrics: m}
}

// verdictKey derives a stable key from the verification kind, the signature,
// and the required-account list the verdict was computed against.
func verdictKey(kind, signature string, required []string) string {
	h := sha256.Sum256([]byte(kind + "|" + signature + "|" + strings.Join(required, ",")))
	return verdictKeyPrefix + hex.EncodeToString(h[:])
}

// Get returns a cached verdict if present.
func (c *VerdictCache) Get(ctx context.Context, key string) (Verdict, bool) {
	if c == nil {
		return Verdict{}, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.IncrementCacheLookup("miss")
		return Verdict{}, false
	}
	if err != nil {
		// Cache trouble must never block verification.
		c.metrics.IncrementCacheLookup("miss")
		return Verdict{}, false
	}
	var v Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return Verdict{}, false
	}
	c.metrics.IncrementCacheLookup("hit")
	return v, true
}

// Put stores a verdict. Only positive verdicts are accepted.
func (c *VerdictCache) Put(ctx context.Context, key string, v Verdict) {
	if c == nil || !v.OK {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
}
