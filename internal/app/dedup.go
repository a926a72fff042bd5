/**
 * @description
 * Bounded deduplication window for the event subscriber, keyed by ledger
 * transaction id. Deduplication here is a throughput optimization, not a
 * correctness requirement: the evaluator is independently idempotent, so a
 * window that loses state (restart, Redis outage) only costs a bounded number
 * of redundant evaluations.
 */
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupWindow remembers recently processed transaction ids for a bounded
// time. Check and Mark are split so an id is only recorded after its event has
// been fully processed: a nacked delivery must stay eligible for redelivery,
// never be swallowed as a duplicate of itself.
type DedupWindow interface {
	// Check reports whether the id was marked within the window.
	Check(ctx context.Context, transactionID int64) (bool, error)
	// Mark records the id for the window's duration.
	Mark(ctx context.Context, transactionID int64) error
}

// MemoryDedupWindow is a single-replica, in-process TTL set. State is lost on
// restart, which is acceptable by design.
type MemoryDedupWindow struct {
	mu     sync.Mutex
	ttl    time.Duration
	seen   map[int64]time.Time
	nowFn  func() time.Time
	lastGC time.Time
}

// NewMemoryDedupWindow creates an in-memory window with the given TTL.
func NewMemoryDedupWindow(ttl time.Duration) *MemoryDedupWindow {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryDedupWindow{
		ttl:   ttl,
		seen:  make(map[int64]time.Time),
		nowFn: time.Now,
	}
}

// Check reports whether the id is inside the window.
func (w *MemoryDedupWindow) Check(ctx context.Context, transactionID int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.nowFn()
	w.pruneLocked(now)

	expiry, ok := w.seen[transactionID]
	return ok && expiry.After(now), nil
}

// Mark records the id for the window's duration.
func (w *MemoryDedupWindow) Mark(ctx context.Context, transactionID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seen[transactionID] = w.nowFn().Add(w.ttl)
	return nil
}

// pruneLocked drops expired entries at most once per TTL interval so the set
// stays bounded by the redelivery window.
func (w *MemoryDedupWindow) pruneLocked(now time.Time) {
	if now.Sub(w.lastGC) < w.ttl {
		return
	}
	for id, expiry := range w.seen {
		if !expiry.After(now) {
			delete(w.seen, id)
		}
	}
	w.lastGC = now
}

// RedisDedupWindow shares the window across subscriber replicas: Check reads
// with EXISTS, Mark claims with SET NX EX once the event is processed. Redis
// errors fail open: an unverifiable id is treated as unseen and forwarded,
// because a redundant forward is safe and a dropped one is not.
type RedisDedupWindow struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisDedupWindow creates a Redis-backed window.
func NewRedisDedupWindow(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisDedupWindow {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "promotion:dedup"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisDedupWindow{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
	}
}

// Check reports whether the id is inside the shared window.
func (w *RedisDedupWindow) Check(ctx context.Context, transactionID int64) (bool, error) {
	if w == nil || w.client == nil {
		return false, nil
	}
	hits, err := w.client.Exists(ctx, w.key(transactionID)).Result()
	if err != nil {
		return false, err
	}
	return hits > 0, nil
}

// Mark claims the id for the window's duration.
func (w *RedisDedupWindow) Mark(ctx context.Context, transactionID int64) error {
	if w == nil || w.client == nil {
		return nil
	}
	return w.client.SetNX(ctx, w.key(transactionID), 1, w.ttl).Err()
}

func (w *RedisDedupWindow) key(transactionID int64) string {
	return fmt.Sprintf("%s:tx:%d", w.prefix, transactionID)
}
