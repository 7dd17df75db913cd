package util

import "strings"

// ChunkWords splits text into windows of at most maxWords words, each
// starting overlap words before the end of the previous one.
func ChunkWords(text string, maxWords, overlap int) []string {
	if maxWords <= 0 {
		maxWords = 450
	}
	if overlap < 0 || overlap >= maxWords {
		overlap = 0
	}
	words := strings.Fields(text)
	out := make([]string, 0, len(words)/maxWords+1)
	for start := 0; start < len(words); {
		end := min(start+maxWords, len(words))
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
		start = end - overlap
	}
	return out
}
