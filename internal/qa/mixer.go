package qa

import (
	"context"

	"qaforge/internal/dedupe"
	"qaforge/internal/filter"
)

// Verifier tags items that cite no source as "unverified". It never drops
// anything.
func (p *Pipeline) Verifier(ctx context.Context, st State) (State, error) {
	questions := make(map[string][]Question, len(st.Questions))
	for fileID, items := range st.Questions {
		cleaned := make([]Question, 0, len(items))
		for _, it := range items {
			q := it
			q.Tags = append([]string{}, it.Tags...)
			if len(q.Sources) == 0 {
				q.Tags = append(q.Tags, "unverified")
			}
			cleaned = append(cleaned, q)
		}
		questions[fileID] = cleaned
	}
	out := st.clone()
	out.Questions = questions
	return out, nil
}

// Mixer pools candidates across files, normalizes and dedupes them, backfills
// from unused candidates when short, and rewrites the survivors into open
// question and answer pairs.
func (p *Pipeline) Mixer(ctx context.Context, st State) (State, error) {
	if st.cancelled(ctx) {
		return st.stopped("mixer"), nil
	}
	total := st.RequestedTotal
	quota := max(1, total/st.fileCount())

	var pool []Question
	for _, f := range st.Files {
		items := st.Questions[f.FileID]
		pool = append(pool, items[:min(len(items), quota*2)]...)
	}
	if len(pool) < total*2 {
		for _, f := range st.Files {
			items := st.Questions[f.FileID]
			if len(items) > quota*2 {
				pool = append(pool, items[quota*2:]...)
			}
		}
	}

	pool = normalizeItems(pool, st.Difficulty, p.deps.Generic)
	considered := make(map[string]struct{}, len(pool))
	for _, q := range pool {
		considered[filter.NormalizeText(q.Question)] = struct{}{}
	}
	before := len(pool)
	kept := dedupeAll(pool)

	out := st.clone()
	out.Metrics["dedupe_drop_rate"] = float64(before-len(kept)) / float64(max(1, before))

	if len(kept) < total {
		// Only candidates that never entered the pool can fill the gap; items
		// rejected above stay rejected.
		var extra []Question
		for _, f := range st.Files {
			for _, q := range normalizeItems(st.Questions[f.FileID], st.Difficulty, p.deps.Generic) {
				key := filter.NormalizeText(q.Question)
				if _, ok := considered[key]; ok {
					continue
				}
				considered[key] = struct{}{}
				extra = append(extra, q)
			}
		}
		if len(extra) > 0 {
			kept = dedupeAll(append(kept, extra...))
		}
	}

	result := make([]Question, 0, min(total, len(kept)))
	for _, q := range kept[:min(total, len(kept))] {
		result = append(result, toDisplay(q))
	}
	perFile := make(map[string]int, len(st.Files))
	for _, f := range st.Files {
		perFile[f.FileID] = len(st.Questions[f.FileID])
	}
	out.Metrics["final_count"] = len(result)
	out.Metrics["per_file_counts"] = perFile
	out.Metrics[resultKey] = result
	out.Result = result
	return out, nil
}

func dedupeAll(items []Question) []Question {
	return dedupe.Questions(dedupe.Cheap(items, questionText), questionText, dedupe.DefaultMaxDistance)
}
