package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested fact, block or file is absent.
var ErrNotFound = errors.New("memory: not found")

// ErrDimensionMismatch is returned when a populated search index was built
// with a different embedding dimension than the configured model. This is a
// fatal configuration error; the index must be rebuilt from source.
var ErrDimensionMismatch = errors.New("memory: embedding dimension mismatch, reindex required")

// Block labels for core memory slots. The set is extensible; these are the
// conventional ones.
const (
	BlockPersona = "persona"
	BlockUser    = "user"
	BlockFacts   = "facts"
	BlockContext = "context"
)

// SearchWeights are the independently tunable gains of the hybrid ranking:
//
//	score = Semantic*cos + Lexical*bm25norm + ImportanceBoost*importance + RecencyBoost*decay(age)
//
// They need not sum to 1.
type SearchWeights struct {
	Semantic        float64
	Lexical         float64
	ImportanceBoost float64
	RecencyBoost    float64
}

// DefaultWeights returns the default hybrid ranking gains.
func DefaultWeights() SearchWeights {
	return SearchWeights{
		Semantic:        0.7,
		Lexical:         0.3,
		ImportanceBoost: 0.2,
		RecencyBoost:    0.1,
	}
}

// SearchQuery describes one hybrid search.
type SearchQuery struct {
	Embedding []float32
	Text      string
	Scope     Scope
	Limit     int
	Weights   SearchWeights

	// RecencyHalfLife controls the exponential recency decay. Zero means
	// the store's default (one week).
	RecencyHalfLife time.Duration
}

// InsertResult reports the outcome of a dedup-insert.
type InsertResult struct {
	ID string

	// Created is false when the candidate was merged into an existing
	// near-duplicate instead of inserted.
	Created    bool
	MergedWith string
	Similarity float64
}

// StoreStats summarizes search-index contents for the admin surface.
type StoreStats struct {
	Facts         int
	Blocks        int
	FactsPerScope map[string]int
	EmbeddingDim  int
}

// SearchStore is the disposable, derived search index: vector + full-text
// over facts, plus core memory blocks. It can be deleted and rebuilt from
// the SourceStore without permanent data loss.
//
// Implementations: memory/store/sqlite (FTS5 + embedding BLOBs).
type SearchStore interface {
	// AddMemory inserts a fact without a dedup check. Used by callers that
	// have already deduplicated, or for bulk restores.
	AddMemory(ctx context.Context, f *Fact) error

	// DedupInsert checks the candidate against the topK nearest facts in
	// the same scope and, at or above threshold similarity, merges into
	// the existing row (importance max, tag union) instead of inserting.
	// The check-then-write pair runs as one critical section per scope.
	DedupInsert(ctx context.Context, f *Fact, threshold float64, topK int) (*InsertResult, error)

	// HybridSearch ranks facts visible to the query scope by the blended
	// score. Ties break by most-recent creation time.
	HybridSearch(ctx context.Context, q SearchQuery) ([]*Fact, error)

	// TopByImportance returns the user's highest-importance facts,
	// newest first within equal importance.
	TopByImportance(ctx context.Context, userID string, n int) ([]*Fact, error)

	// GetAllBlocks resolves every block label visible to the scope,
	// most-specific scope winning (chat > user > global), never merging.
	GetAllBlocks(ctx context.Context, scope Scope) (map[string]string, error)

	// GetBlock resolves a single label the same way, returning def when
	// no row exists at any scope.
	GetBlock(ctx context.Context, label string, scope Scope, def string) (string, error)

	// SetBlock replaces the block content at exactly the given scope.
	// Returns true when a new block row was created.
	SetBlock(ctx context.Context, label, content string, scope Scope) (bool, error)

	DeleteMemory(ctx context.Context, id string) error

	// DeleteAll removes every fact in the scope (chat-level scope removes
	// only that chat's rows; user-level removes all of the user's rows).
	// Returns the number of rows removed.
	DeleteAll(ctx context.Context, scope Scope) (int, error)

	Stats(ctx context.Context) (*StoreStats, error)

	Close() error
}

// SourceStore is the append-only, human-readable ground truth: daily
// markdown logs plus one curated summary document. It exclusively owns
// on-disk text truth; the SearchStore is derived from it.
//
// Implementations: memory/source (markdown files).
type SourceStore interface {
	// AppendDailyLog appends facts to the log for date (YYYY-MM-DD UTC;
	// empty means today). Appends to the same date file never interleave.
	AppendDailyLog(ctx context.Context, chatID string, facts []*Fact, date string) error

	// ReadDailyLog returns the raw content of one dated log, or
	// ErrNotFound.
	ReadDailyLog(ctx context.Context, date string) (string, error)

	// ReadRecentLogs returns the last N days of logs joined together,
	// newest first. Missing days are skipped.
	ReadRecentLogs(ctx context.Context, days int) (string, error)

	// ListLogDates returns available log dates, newest first.
	ListLogDates(ctx context.Context) ([]string, error)

	// WriteSummary fully replaces the curated summary document.
	WriteSummary(ctx context.Context, content string) error

	// ReadSummary returns the curated summary, or ErrNotFound.
	ReadSummary(ctx context.Context) (string, error)
}

// Embedder converts text to vector embeddings.
// Implementations: embedder/mock (testing), embedder/openai, embedder/ollama.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Extractor produces candidate facts from a conversation turn's text.
// Zero candidates is a valid result (no-op turn).
type Extractor interface {
	Extract(ctx context.Context, turnText string) ([]Candidate, error)
}

// Summarizer condenses high-importance facts into a bounded curated summary
// (design target under 200 words).
type Summarizer interface {
	Summarize(ctx context.Context, facts []*Fact) (string, error)
}
