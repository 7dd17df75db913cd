// Package dedupe detects near-duplicate questions with a simhash prefilter
// confirmed by token and character trigram overlap.
package dedupe

import (
	"crypto/md5"
	"encoding/binary"
	"math/bits"
	"regexp"
	"strings"

	"qaforge/internal/filter"
)

const (
	DefaultMaxDistance = 3

	tokenThreshold = 0.85
	gramThreshold  = 0.90
	gramSize       = 3
)

var nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// Normalize lowercases text, collapses whitespace and strips everything but
// letters and digits.
func Normalize(text string) string {
	s := nonAlnum.ReplaceAllString(strings.ToLower(text), "")
	return strings.Join(strings.Fields(s), " ")
}

// Simhash is a 64-bit locality sensitive hash over the tokens of text.
func Simhash(text string) uint64 {
	tokens := strings.Fields(Normalize(text))
	if len(tokens) == 0 {
		return 0
	}
	var votes [64]int
	for _, tok := range tokens {
		sum := md5.Sum([]byte(tok))
		h := binary.BigEndian.Uint64(sum[8:])
		for i := 0; i < 64; i++ {
			if h&(1<<i) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}
	var out uint64
	for i, v := range votes {
		if v > 0 {
			out |= 1 << i
		}
	}
	return out
}

func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

type fingerprint struct {
	hash   uint64
	norm   string
	tokens map[string]struct{}
	grams  map[string]struct{}
}

func newFingerprint(norm string) fingerprint {
	return fingerprint{
		hash:   Simhash(norm),
		norm:   norm,
		tokens: tokenSet(norm),
		grams:  charGrams(norm, gramSize),
	}
}

func (f fingerprint) duplicates(o fingerprint, maxDistance int) bool {
	if HammingDistance(f.hash, o.hash) > maxDistance {
		return false
	}
	return f.norm == o.norm ||
		jaccard(f.tokens, o.tokens) >= tokenThreshold ||
		jaccard(f.grams, o.grams) >= gramThreshold
}

// Questions keeps the first occurrence of every group of near-duplicate
// texts, preserving input order. Items whose text normalizes to nothing are
// dropped. Cost is quadratic in the number of kept items.
func Questions[T any](items []T, text func(T) string, maxDistance int) []T {
	seen := make([]fingerprint, 0, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		norm := Normalize(text(item))
		if norm == "" {
			continue
		}
		fp := newFingerprint(norm)
		dup := false
		for _, prev := range seen {
			if fp.duplicates(prev, maxDistance) {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, fp)
			out = append(out, item)
		}
	}
	return out
}

// Cheap removes exact duplicates after filter.NormalizeText, and items with
// empty text.
func Cheap[T any](items []T, text func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		key := filter.NormalizeText(text(item))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func tokenSet(norm string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range strings.Fields(norm) {
		out[t] = struct{}{}
	}
	return out
}

func charGrams(norm string, n int) map[string]struct{} {
	compact := []rune(strings.ReplaceAll(norm, " ", ""))
	out := map[string]struct{}{}
	if len(compact) < n {
		if len(compact) > 0 {
			out[string(compact)] = struct{}{}
		}
		return out
	}
	for i := 0; i+n <= len(compact); i++ {
		out[string(compact[i:i+n])] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
