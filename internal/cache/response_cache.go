package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// Mode controls how the response cache participates in an inference call,
// mirroring the per-call cache_options of spec §4.7.
type Mode string

const (
	ModeOff       Mode = "off"
	ModeOn        Mode = "on"
	ModeReadOnly  Mode = "read_only"
	ModeWriteOnly Mode = "write_only"
)

func (m Mode) allowsRead() bool  { return m == ModeOn || m == ModeReadOnly }
func (m Mode) allowsWrite() bool { return m == ModeOn || m == ModeWriteOnly }

// Fingerprint is the cache key: a hash over everything that determines a
// model call's output deterministically — model name, provider-resolved
// request body, and any extra_cache_key the caller supplied to
// disambiguate otherwise-identical requests (e.g. a sampling seed).
func Fingerprint(modelName string, rawRequest string, extraCacheKey string) string {
	h := sha256.New()
	h.Write([]byte(modelName))
	h.Write([]byte{0})
	h.Write([]byte(rawRequest))
	h.Write([]byte{0})
	h.Write([]byte(extraCacheKey))
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	result    inference.ModelInferenceResult
	timestamp int64
}

// ResponseCache stores ModelInferenceResult values keyed by Fingerprint,
// using a mutex-guarded map with TTL expiry and oldest-first eviction,
// retaining the cached value instead of a seen/unseen boolean.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	maxSize int
}

type Options struct {
	TTL     time.Duration
	MaxSize int
}

func New(opts Options) *ResponseCache {
	maxSize := opts.MaxSize
	if maxSize < 0 {
		maxSize = 0
	}
	return &ResponseCache{entries: make(map[string]entry), ttl: opts.TTL, maxSize: maxSize}
}

// Get returns the cached result for a fingerprint if present and unexpired.
func (c *ResponseCache) Get(fingerprint string) (inference.ModelInferenceResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fingerprint]
	if !ok {
		return inference.ModelInferenceResult{}, false
	}
	if c.ttl > 0 && time.Now().UnixMilli()-e.timestamp > c.ttl.Milliseconds() {
		delete(c.entries, fingerprint)
		return inference.ModelInferenceResult{}, false
	}
	return e.result, true
}

// Put stores a result under a fingerprint, pruning expired and
// over-capacity entries afterward.
func (c *ResponseCache) Put(fingerprint string, result inference.ModelInferenceResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixMilli()
	c.entries[fingerprint] = entry{result: result, timestamp: now}
	c.prune(now)
}

func (c *ResponseCache) prune(nowUnix int64) {
	if c.ttl > 0 {
		cutoff := nowUnix - c.ttl.Milliseconds()
		for k, e := range c.entries {
			if e.timestamp < cutoff {
				delete(c.entries, k)
			}
		}
	}
	if c.maxSize <= 0 {
		return
	}
	for len(c.entries) > c.maxSize {
		var oldestKey string
		var oldestTs int64 = int64(^uint64(0) >> 1)
		for k, e := range c.entries {
			if e.timestamp < oldestTs {
				oldestTs = e.timestamp
				oldestKey = k
			}
		}
		if oldestKey == "" {
			break
		}
		delete(c.entries, oldestKey)
	}
}

func (c *ResponseCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Lookup resolves the cache for one model call according to Mode: it only
// reads when the mode allows reads, and returns ok=false (forcing the
// caller to actually invoke the provider) otherwise.
func (c *ResponseCache) Lookup(mode Mode, fingerprint string) (inference.ModelInferenceResult, bool) {
	if !mode.allowsRead() {
		return inference.ModelInferenceResult{}, false
	}
	return c.Get(fingerprint)
}

// Store writes a freshly computed result according to Mode.
func (c *ResponseCache) Store(mode Mode, fingerprint string, result inference.ModelInferenceResult) {
	if !mode.allowsWrite() {
		return
	}
	c.Put(fingerprint, result)
}
