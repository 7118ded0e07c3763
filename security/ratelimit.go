package security

import (
	"container/list"
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultMaxLimiterEntries bounds the number of identifiers tracked by a KeyedLimiter
const DefaultMaxLimiterEntries = 10000

// limiterEntry tracks a rate limiter for one identifier
type limiterEntry struct {
	identifier string
	limiter    *rate.Limiter
}

// KeyedLimiter provides per-identifier token bucket rate limiting with LRU eviction.
// It throttles outbound calls per provider and inbound requests per client IP.
// A nil *KeyedLimiter allows everything.
type KeyedLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*list.Element
	lruList    *list.List
	rate       rate.Limit
	burst      int
	maxEntries int
	logger     *slog.Logger

	totalEvictions int64
}

// NewKeyedLimiter creates a limiter allowing requestsPerSecond with the given burst per identifier.
// Returns nil (no limiting) when requestsPerSecond is not positive.
func NewKeyedLimiter(requestsPerSecond float64, burst int, logger *slog.Logger) *KeyedLimiter {
	return NewKeyedLimiterWithConfig(requestsPerSecond, burst, DefaultMaxLimiterEntries, logger)
}

// NewKeyedLimiterWithConfig creates a limiter with a custom maximum number of tracked identifiers.
// When the limit is reached the least recently used identifier is evicted.
func NewKeyedLimiterWithConfig(requestsPerSecond float64, burst, maxEntries int, logger *slog.Logger) *KeyedLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if burst <= 0 {
		burst = 1
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxLimiterEntries
	}

	return &KeyedLimiter{
		limiters:   make(map[string]*list.Element),
		lruList:    list.New(),
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		maxEntries: maxEntries,
		logger:     logger,
	}
}

// limiterFor returns the limiter for identifier, creating it if needed
func (kl *KeyedLimiter) limiterFor(identifier string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	if elem, ok := kl.limiters[identifier]; ok {
		kl.lruList.MoveToFront(elem)
		return elem.Value.(*limiterEntry).limiter
	}

	if kl.lruList.Len() >= kl.maxEntries {
		if oldest := kl.lruList.Back(); oldest != nil {
			entry := oldest.Value.(*limiterEntry)
			kl.lruList.Remove(oldest)
			delete(kl.limiters, entry.identifier)
			kl.totalEvictions++
			kl.logger.Debug("Evicted rate limiter entry", "identifier", entry.identifier)
		}
	}

	entry := &limiterEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(kl.rate, kl.burst),
	}
	kl.limiters[identifier] = kl.lruList.PushFront(entry)
	return entry.limiter
}

// Allow reports whether a request for identifier may proceed now
func (kl *KeyedLimiter) Allow(identifier string) bool {
	if kl == nil {
		return true
	}
	return kl.limiterFor(identifier).Allow()
}

// Wait blocks until a request for identifier may proceed or ctx is done
func (kl *KeyedLimiter) Wait(ctx context.Context, identifier string) error {
	if kl == nil {
		return nil
	}
	return kl.limiterFor(identifier).Wait(ctx)
}

// Len returns the number of tracked identifiers
func (kl *KeyedLimiter) Len() int {
	if kl == nil {
		return 0
	}
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return kl.lruList.Len()
}
