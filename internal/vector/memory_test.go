package vector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"qaforge/internal/providers"
)

// keywordEmbedder places each text on axes for a fixed vocabulary so that
// similarity follows shared keywords.
type keywordEmbedder struct {
	calls int
	fail  bool
}

var vocab = []string{"cats", "fish", "dogs", "bark"}

func (k *keywordEmbedder) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	k.calls++
	if k.fail {
		return nil, providers.ProviderInfo{}, errors.New("embedding backend down")
	}
	out := make([][]float32, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		v := make([]float32, len(vocab))
		for i, w := range vocab {
			if strings.Contains(in, w) {
				v[i] = 1
			}
		}
		out = append(out, v)
	}
	return out, providers.ProviderInfo{Name: "keyword"}, nil
}

func TestMemoryIndexSearch(t *testing.T) {
	emb := &keywordEmbedder{}
	idx := NewMemoryIndex(emb, 0)
	docs := []Document{{Text: "dogs bark loud", Index: 0}, {Text: "cats eat fish", Index: 1}}
	store, err := idx.Open(context.Background(), "file_a_1234", docs)
	require.NoError(t, err)

	got, err := store.Search(context.Background(), "cats", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "cats eat fish", got[0].Text)

	again, err := idx.Open(context.Background(), "file_a_1234", docs)
	require.NoError(t, err)
	require.Same(t, store, again)
}

func TestMemoryIndexEmbedFailure(t *testing.T) {
	idx := NewMemoryIndex(&keywordEmbedder{fail: true}, 0)
	_, err := idx.Open(context.Background(), "c", []Document{{Text: "x"}})
	require.ErrorContains(t, err, "embedding backend down")
}

func TestMemoryIndexChecksBeforeEachBatch(t *testing.T) {
	emb := &keywordEmbedder{}
	idx := NewMemoryIndex(emb, 0)
	docs := make([]Document, 3*embedBatchSize)
	for i := range docs {
		docs[i] = Document{Text: "cats", Index: i}
	}
	checks := 0
	ctx := WithBatchCheck(context.Background(), func() bool {
		checks++
		return checks > 1
	})

	_, err := idx.Open(ctx, "big", docs)
	require.ErrorIs(t, err, ErrStopped)
	require.Equal(t, 2, checks)
	require.Equal(t, 1, emb.calls)

	store, err := idx.Open(context.Background(), "big", docs)
	require.NoError(t, err, "a stopped build must not leave a partial collection behind")
	require.NotNil(t, store)
	require.Equal(t, 4, emb.calls)
}

func TestToLiteral(t *testing.T) {
	require.Equal(t, "[0.500000,-1.000000]", ToLiteral([]float32{0.5, -1}))
}
