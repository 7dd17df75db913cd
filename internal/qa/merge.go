package qa

import "qaforge/internal/dedupe"

// MergePerFileOutputs concatenates independent runs and finalizes the union
// to requestedTotal items.
func MergePerFileOutputs(outputs [][]Question, requestedTotal int) []Question {
	var merged []Question
	for _, items := range outputs {
		merged = append(merged, items...)
	}
	return topUp(merged, requestedTotal)
}

// Finalize dedupes a generated deck once more, truncates it to
// requestedTotal and strips answers when they are not wanted.
func Finalize(items []Question, requestedTotal int, includeAnswers bool) []Question {
	out := topUp(items, requestedTotal)
	if !includeAnswers {
		out = StripAnswers(out)
	}
	return out
}

// topUp keeps the first of every near-duplicate group. When that leaves
// fewer than requestedTotal items, the dropped ones are appended back in
// their original order, so a short deck is never made shorter by dedupe.
func topUp(items []Question, requestedTotal int) []Question {
	idx := make([]int, len(items))
	for i := range items {
		idx[i] = i
	}
	keptIdx := dedupe.Questions(idx, func(i int) string { return items[i].Question }, dedupe.DefaultMaxDistance)

	out := make([]Question, 0, max(0, requestedTotal))
	kept := make(map[int]bool, len(keptIdx))
	for _, i := range keptIdx {
		kept[i] = true
		out = append(out, items[i])
	}
	if len(out) < requestedTotal {
		for i, q := range items {
			if !kept[i] {
				out = append(out, q)
			}
		}
	}
	if len(out) > requestedTotal {
		out = out[:max(0, requestedTotal)]
	}
	return out
}
