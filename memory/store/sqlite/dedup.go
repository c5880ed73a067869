package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cyzus/suzent-sub001/memory"
)

// DedupInsert inserts f unless a fact in the same scope is at least
// threshold-similar, in which case it merges into the existing fact instead:
// importance becomes the max of the two, tags are unioned, content stays the
// existing fact's content. The check-then-write runs under a per-scope lock
// so concurrent inserts of the same information can't both land.
func (s *Store) DedupInsert(ctx context.Context, f *memory.Fact, threshold float64, topK int) (*memory.InsertResult, error) {
	if len(f.Embedding) != s.dims {
		return nil, fmt.Errorf("%w: fact has %d, index wants %d",
			memory.ErrDimensionMismatch, len(f.Embedding), s.dims)
	}
	if topK <= 0 {
		topK = 5
	}

	mu := s.scopeLock(f.Scope.Key())
	mu.Lock()
	defer mu.Unlock()

	best, sim, err := s.mostSimilar(ctx, f.Embedding, f.Scope, topK)
	if err != nil {
		return nil, err
	}

	if best != nil && sim >= threshold {
		if err := s.mergeInto(ctx, best, f); err != nil {
			return nil, err
		}
		return &memory.InsertResult{
			ID:         best.ID,
			Created:    false,
			MergedWith: best.ID,
			Similarity: sim,
		}, nil
	}

	if err := s.AddMemory(ctx, f); err != nil {
		return nil, err
	}
	return &memory.InsertResult{ID: f.ID, Created: true, Similarity: sim}, nil
}

// mostSimilar scans the fact's exact scope (same user_id and chat_id, not the
// search visibility union) and returns the nearest neighbor by cosine.
func (s *Store) mostSimilar(ctx context.Context, emb []float32, scope memory.Scope, topK int) (*memory.Fact, float64, error) {
	rows, err := s.db.QueryContext(ctx,
		factColumns+` FROM facts WHERE user_id = ? AND chat_id = ?`,
		scope.UserID, scope.ChatID)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: dedup scan: %w", err)
	}
	defer rows.Close()

	facts, err := scanFacts(rows)
	if err != nil {
		return nil, 0, err
	}

	type scored struct {
		fact *memory.Fact
		sim  float64
	}
	cands := make([]scored, 0, len(facts))
	for _, c := range facts {
		cands = append(cands, scored{fact: c, sim: cosineSimilarity(emb, c.Embedding)})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].sim > cands[j].sim })
	if len(cands) > topK {
		cands = cands[:topK]
	}
	if len(cands) == 0 {
		return nil, 0, nil
	}
	return cands[0].fact, cands[0].sim, nil
}

func (s *Store) mergeInto(ctx context.Context, existing, incoming *memory.Fact) error {
	importance := existing.Importance
	if incoming.Importance > importance {
		importance = incoming.Importance
	}

	tags := unionTags(existing.Tags, incoming.Tags)
	var tagsJSON *string
	if len(tags) > 0 {
		b, _ := json.Marshal(tags)
		t := string(b)
		tagsJSON = &t
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE facts SET importance = ?, tags = ? WHERE id = ?`,
		importance, tagsJSON, existing.ID)
	if err != nil {
		return fmt.Errorf("sqlite: merge fact %s: %w", existing.ID, err)
	}
	return nil
}

// unionTags keeps existing tag order and appends new tags in their order.
func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range a {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range b {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

var _ memory.SearchStore = (*Store)(nil)
