package util

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestChunkWordsOverlap(t *testing.T) {
	chunks := ChunkWords(words(1000), 450, 60)
	require.Len(t, chunks, 3)
	require.True(t, strings.HasPrefix(chunks[0], "w0 "))
	require.True(t, strings.HasSuffix(chunks[0], " w449"))
	require.True(t, strings.HasPrefix(chunks[1], "w390 "))
	require.True(t, strings.HasPrefix(chunks[2], "w780 "))
	require.True(t, strings.HasSuffix(chunks[2], " w999"))
}

func TestChunkWordsEdges(t *testing.T) {
	require.Empty(t, ChunkWords("  \n\t ", 450, 60))
	require.Equal(t, []string{"один два три"}, ChunkWords("один\nдва   три", 450, 60))
	// overlap not smaller than the window is ignored instead of looping forever
	require.Len(t, ChunkWords(words(10), 5, 5), 2)
}
