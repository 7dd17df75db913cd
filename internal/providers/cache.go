package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// EmbeddingsBuilder constructs and warms up one embedding backend.
type EmbeddingsBuilder func(ctx context.Context, ref ProviderRef) (EmbeddingProvider, error)

type cacheEntry struct {
	provider    EmbeddingProvider
	lastErr     error
	lastAttempt time.Time
}

// EmbeddingsCache keeps one embedding backend per provider ref for the whole
// process. Concurrent first uses share a single build, and a failed build is
// not retried until the backoff window has passed.
type EmbeddingsCache struct {
	mu      sync.Mutex
	group   singleflight.Group
	entries map[string]*cacheEntry
	backoff time.Duration
	build   EmbeddingsBuilder
	now     func() time.Time
}

func NewEmbeddingsCache(backoff time.Duration, build EmbeddingsBuilder) *EmbeddingsCache {
	return &EmbeddingsCache{
		entries: map[string]*cacheEntry{},
		backoff: backoff,
		build:   build,
		now:     time.Now,
	}
}

func (c *EmbeddingsCache) Get(ctx context.Context, ref ProviderRef) (EmbeddingProvider, error) {
	c.mu.Lock()
	e := c.entries[ref.Raw]
	if e != nil {
		if e.provider != nil {
			p := e.provider
			c.mu.Unlock()
			return p, nil
		}
		if e.lastErr != nil && c.now().Sub(e.lastAttempt) < c.backoff {
			err := e.lastErr
			c.mu.Unlock()
			return nil, fmt.Errorf("embeddings %s in init backoff: %w", ref.Raw, err)
		}
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(ref.Raw, func() (any, error) {
		p, err := c.build(ctx, ref)
		c.mu.Lock()
		defer c.mu.Unlock()
		entry := &cacheEntry{provider: p, lastErr: err, lastAttempt: c.now()}
		if err != nil {
			entry.provider = nil
		}
		c.entries[ref.Raw] = entry
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("init embeddings %s: %w", ref.Raw, err)
	}
	return v.(EmbeddingProvider), nil
}

// LastError reports the most recent build failure for ref, if any.
func (c *EmbeddingsCache) LastError(ref ProviderRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.entries[ref.Raw]; e != nil {
		return e.lastErr
	}
	return nil
}

// warmEmbeddings forces a model load by embedding a single short input.
func warmEmbeddings(ctx context.Context, p EmbeddingProvider, dim int) error {
	vecs, _, err := p.Embed(ctx, EmbedRequest{Operation: "warmup", Inputs: []string{"warmup"}, Dimension: dim})
	if err != nil {
		return err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("warmup returned no vector")
	}
	return nil
}
