package sqlite

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cyzus/suzent-sub001/memory"
)

// defaultRecencyHalfLife is used when the query doesn't set one.
const defaultRecencyHalfLife = 7 * 24 * time.Hour

// HybridSearch ranks facts visible to the query scope by
//
//	score = semantic*cos + lexical*bm25norm + importanceBoost*importance + recencyBoost*decay(age)
//
// Semantic scoring is a linear scan over the scope's embeddings (fine at
// personal-agent volumes); lexical scores come from the FTS5 bm25 rank.
// Ties break by most-recent created_at.
func (s *Store) HybridSearch(ctx context.Context, q memory.SearchQuery) ([]*memory.Fact, error) {
	if len(q.Embedding) != s.dims {
		return nil, fmt.Errorf("%w: query has %d, index wants %d",
			memory.ErrDimensionMismatch, len(q.Embedding), s.dims)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	halfLife := q.RecencyHalfLife
	if halfLife <= 0 {
		halfLife = defaultRecencyHalfLife
	}

	lexical, err := s.lexicalScores(ctx, q.Text, q.Scope)
	if err != nil {
		// Lexical ranking is an enrichment; a bad FTS query shouldn't
		// sink the whole search.
		log.Printf("[SEARCH] FTS query failed, ranking without lexical scores: %v", err)
		lexical = nil
	}

	rows, err := s.db.QueryContext(ctx,
		factColumns+` FROM facts WHERE user_id = ? AND (? = '' OR chat_id = '' OR chat_id = ?)`,
		q.Scope.UserID, q.Scope.ChatID, q.Scope.ChatID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: hybrid search: %w", err)
	}
	defer rows.Close()

	facts, err := scanFacts(rows)
	if err != nil {
		return nil, err
	}

	type scored struct {
		fact  *memory.Fact
		score float64
	}
	now := time.Now().UTC()

	results := make([]scored, 0, len(facts))
	for _, f := range facts {
		cos := cosineSimilarity(q.Embedding, f.Embedding)
		score := q.Weights.Semantic*cos +
			q.Weights.Lexical*lexical[f.ID] +
			q.Weights.ImportanceBoost*f.Importance +
			q.Weights.RecencyBoost*recencyDecay(now.Sub(f.CreatedAt), halfLife)
		results = append(results, scored{fact: f, score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].fact.CreatedAt.After(results[j].fact.CreatedAt)
	})

	if len(results) > limit {
		results = results[:limit]
	}

	out := make([]*memory.Fact, len(results))
	for i, r := range results {
		out[i] = r.fact
	}
	return out, nil
}

// lexicalScores runs the FTS5 match and returns normalized bm25 scores in
// [0,1) per fact id. FTS5's bm25() rank is more negative for better matches,
// so raw = -rank and norm = raw/(raw+1).
func (s *Store) lexicalScores(ctx context.Context, text string, scope memory.Scope) (map[string]float64, error) {
	match := ftsQuery(text)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, bm25(facts_fts)
		 FROM facts_fts
		 JOIN facts f ON f.rowid = facts_fts.rowid
		 WHERE facts_fts MATCH ? AND f.user_id = ? AND (? = '' OR f.chat_id = '' OR f.chat_id = ?)`,
		match, scope.UserID, scope.ChatID, scope.ChatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, err
		}
		raw := -rank
		if raw < 0 {
			raw = 0
		}
		scores[id] = raw / (raw + 1)
	}
	return scores, rows.Err()
}

// ftsQuery turns free text into an OR-of-quoted-terms FTS5 match expression,
// so punctuation in the query can't break the MATCH syntax.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}

// recencyDecay maps age to (0,1] with an exponential half-life. It is
// monotonically non-increasing in age.
func recencyDecay(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * age.Hours() / halfLife.Hours())
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
