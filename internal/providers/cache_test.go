package providers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmbeddingsCacheBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	release := make(chan struct{})
	cache := NewEmbeddingsCache(time.Minute, func(ctx context.Context, ref ProviderRef) (EmbeddingProvider, error) {
		builds.Add(1)
		<-release
		return NewMockProvider(8), nil
	})
	ref := ProviderRef{Raw: "mock", Name: "mock"}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := cache.Get(context.Background(), ref)
			require.NoError(t, err)
			require.NotNil(t, p)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	_, err := cache.Get(context.Background(), ref)
	require.NoError(t, err)
	require.EqualValues(t, 1, builds.Load())
}

func TestEmbeddingsCacheBackoff(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var builds int
	cache := NewEmbeddingsCache(300*time.Second, func(ctx context.Context, ref ProviderRef) (EmbeddingProvider, error) {
		builds++
		if builds == 1 {
			return nil, errors.New("model download failed")
		}
		return NewMockProvider(8), nil
	})
	cache.now = func() time.Time { return now }
	ref := ProviderRef{Raw: "ollama", Name: "ollama"}

	_, err := cache.Get(context.Background(), ref)
	require.ErrorContains(t, err, "model download failed")
	require.Error(t, cache.LastError(ref))

	now = now.Add(100 * time.Second)
	_, err = cache.Get(context.Background(), ref)
	require.ErrorContains(t, err, "init backoff")
	require.Equal(t, 1, builds)

	now = now.Add(201 * time.Second)
	p, err := cache.Get(context.Background(), ref)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, 2, builds)
	require.NoError(t, cache.LastError(ref))
}
