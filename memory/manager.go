package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dgraph-io/ristretto"

	"github.com/cyzus/suzent-sub001/core"
)

// ManagerConfig holds the tunable thresholds of the memory pipeline.
type ManagerConfig struct {
	// DedupThreshold is the cosine similarity at or above which a candidate
	// merges into an existing fact instead of inserting.
	DedupThreshold float64

	// DedupTopK bounds the nearest-neighbor check during dedup.
	DedupTopK int

	// ImportantThreshold is the importance at or above which an accepted
	// fact triggers a curated-summary refresh.
	ImportantThreshold float64

	// SummaryTopN is how many top-importance facts feed the summary.
	SummaryTopN int

	// RetrieveLimit caps results injected into the agent prompt.
	RetrieveLimit int

	Weights         SearchWeights
	RecencyHalfLife time.Duration

	// MaxRetries bounds retry attempts for embedding and LLM calls.
	MaxRetries int

	// ExtractionTimeout bounds one extraction or summarization call.
	ExtractionTimeout time.Duration
}

// DefaultManagerConfig returns the pipeline defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DedupThreshold:     0.85,
		DedupTopK:          5,
		ImportantThreshold: 0.7,
		SummaryTopN:        20,
		RetrieveLimit:      5,
		Weights:            DefaultWeights(),
		RecencyHalfLife:    7 * 24 * time.Hour,
		MaxRetries:         3,
		ExtractionTimeout:  30 * time.Second,
	}
}

// Manager orchestrates the memory pipeline: extraction, dedup, the dual
// write to search index and source log, retrieval formatting, and the
// curated-summary refresh.
type Manager struct {
	search     SearchStore
	source     SourceStore
	embedder   Embedder
	extractor  Extractor
	summarizer Summarizer
	config     ManagerConfig

	// embedCache memoizes text -> vector so repeated queries and dedup
	// re-checks don't re-hit the embedding provider.
	embedCache *ristretto.Cache
}

// NewManager wires the pipeline together. summarizer may be nil, in which
// case the curated-summary refresh is skipped.
func NewManager(search SearchStore, source SourceStore, embedder Embedder,
	extractor Extractor, summarizer Summarizer, config ManagerConfig) (*Manager, error) {

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     32 << 20, // 32 MiB of vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Manager{
		search:     search,
		source:     source,
		embedder:   embedder,
		extractor:  extractor,
		summarizer: summarizer,
		config:     config,
		embedCache: cache,
	}, nil
}

// ProcessTurn runs the full write path for one conversation exchange:
// extract candidates, embed, dedup-insert into the search index, then append
// newly created facts to the daily source log. The two writes are ordered
// index-first; a failed source append is reported as a partial failure in
// the result rather than unwinding the index write.
func (m *Manager) ProcessTurn(ctx context.Context, ex core.Exchange, scope Scope, sessionID string) (*ExtractionResult, error) {
	result := &ExtractionResult{}
	if ex.Empty() {
		return result, nil
	}

	candidates, err := m.extract(ctx, ex.FormatForExtraction())
	if err != nil {
		return result, fmt.Errorf("extract facts: %w", err)
	}
	result.ExtractedFacts = candidates
	if len(candidates) == 0 {
		return result, nil
	}

	important := false
	for _, c := range candidates {
		fact := NewFact(c.Content, ParseCategory(c.Category), c.Importance, c.Tags, scope)
		fact.SourceSessionID = sessionID

		emb, err := m.embed(ctx, fact.Content)
		if err != nil {
			log.Printf("[MEMORY] Failed to embed candidate %q: %v", truncateLog(fact.Content, 50), err)
			continue
		}
		fact.Embedding = emb

		res, err := m.search.DedupInsert(ctx, fact, m.config.DedupThreshold, m.config.DedupTopK)
		if err != nil {
			log.Printf("[MEMORY] Failed to store candidate %q: %v", truncateLog(fact.Content, 50), err)
			continue
		}

		if res.Created {
			result.Created = append(result.Created, fact)
		} else {
			log.Printf("[MEMORY] Merged duplicate into %s (similarity %.3f)", res.MergedWith, res.Similarity)
			fact.ID = res.MergedWith
			result.Updated = append(result.Updated, fact)
		}
		if fact.Importance >= m.config.ImportantThreshold {
			important = true
		}
	}

	// Merged facts are already in the source log from their first write;
	// only newly created facts get appended.
	if len(result.Created) > 0 {
		if err := m.source.AppendDailyLog(ctx, scope.ChatID, result.Created, ""); err != nil {
			result.SourceWriteFailed = true
			for _, f := range result.Created {
				log.Printf("[MEMORY] PARTIAL WRITE: fact %s in index but not in source log: %v", f.ID, err)
			}
		}
	}

	if important {
		if err := m.RefreshCoreMemoryFacts(ctx, scope.UserID); err != nil {
			log.Printf("[MEMORY] Core memory refresh failed: %v", err)
		}
	}

	log.Printf("[MEMORY] Processed turn: %d extracted, %d created, %d merged",
		len(result.ExtractedFacts), len(result.Created), len(result.Updated))
	return result, nil
}

// Remember stores one explicitly stated fact, bypassing extraction. It runs
// the same dual-write path as ProcessTurn: dedup-insert into the index, then
// append to the daily log when a new fact was created.
func (m *Manager) Remember(ctx context.Context, c Candidate, scope Scope, sessionID string) (*InsertResult, error) {
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return nil, fmt.Errorf("remember: empty content")
	}
	importance := c.Importance
	if importance <= 0 {
		importance = DefaultImportance
	}

	fact := NewFact(content, ParseCategory(c.Category), importance, c.Tags, scope)
	fact.SourceSessionID = sessionID

	emb, err := m.embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed fact: %w", err)
	}
	fact.Embedding = emb

	res, err := m.search.DedupInsert(ctx, fact, m.config.DedupThreshold, m.config.DedupTopK)
	if err != nil {
		return nil, fmt.Errorf("store fact: %w", err)
	}

	if res.Created {
		if err := m.source.AppendDailyLog(ctx, scope.ChatID, []*Fact{fact}, ""); err != nil {
			log.Printf("[MEMORY] PARTIAL WRITE: fact %s in index but not in source log: %v", fact.ID, err)
		}
		if fact.Importance >= m.config.ImportantThreshold {
			if err := m.RefreshCoreMemoryFacts(ctx, scope.UserID); err != nil {
				log.Printf("[MEMORY] Core memory refresh failed: %v", err)
			}
		}
	}
	return res, nil
}

// RetrieveRelevantMemories finds memories for the query and returns them
// formatted for prompt injection. It never fails the caller's turn: any
// error degrades to an empty context string.
func (m *Manager) RetrieveRelevantMemories(ctx context.Context, query string, scope Scope) string {
	facts, err := m.SearchMemories(ctx, query, scope, m.config.RetrieveLimit)
	if err != nil {
		log.Printf("[MEMORY] Retrieval failed for query %q: %v", truncateLog(query, 50), err)
		return ""
	}
	log.Printf("[MEMORY] Retrieved %d memories for query: %q", len(facts), truncateLog(query, 50))
	return FormatRetrievedMemories(facts)
}

// SearchMemories runs a hybrid search over the scope's facts.
func (m *Manager) SearchMemories(ctx context.Context, query string, scope Scope, limit int) ([]*Fact, error) {
	if limit <= 0 {
		limit = m.config.RetrieveLimit
	}
	emb, err := m.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return m.search.HybridSearch(ctx, SearchQuery{
		Embedding:       emb,
		Text:            query,
		Scope:           scope,
		Limit:           limit,
		Weights:         m.config.Weights,
		RecencyHalfLife: m.config.RecencyHalfLife,
	})
}

// GetCoreMemory returns the scope's resolved core memory blocks formatted
// for prompt injection.
func (m *Manager) GetCoreMemory(ctx context.Context, scope Scope) (string, error) {
	blocks, err := m.search.GetAllBlocks(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("get core memory blocks: %w", err)
	}
	return FormatCoreMemorySection(blocks), nil
}

// UpdateBlock writes one core memory block at the given scope.
func (m *Manager) UpdateBlock(ctx context.Context, label, content string, scope Scope) error {
	created, err := m.search.SetBlock(ctx, label, content, scope)
	if err != nil {
		return fmt.Errorf("update block %q: %w", label, err)
	}
	verb := "updated"
	if created {
		verb = "created"
	}
	log.Printf("[MEMORY] Block %q %s at scope %s", label, verb, scope.Key())
	return nil
}

// RefreshCoreMemoryFacts regenerates the curated summary from the user's
// top-importance facts, writing it to both the "facts" core memory block and
// the source store's summary document.
func (m *Manager) RefreshCoreMemoryFacts(ctx context.Context, userID string) error {
	if m.summarizer == nil {
		return nil
	}

	facts, err := m.search.TopByImportance(ctx, userID, m.config.SummaryTopN)
	if err != nil {
		return fmt.Errorf("load top facts: %w", err)
	}
	if len(facts) == 0 {
		return nil
	}

	summary, err := m.summarize(ctx, facts)
	if err != nil {
		return fmt.Errorf("summarize facts: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}

	if _, err := m.search.SetBlock(ctx, BlockFacts, summary, UserScope(userID)); err != nil {
		return fmt.Errorf("write facts block: %w", err)
	}
	if err := m.source.WriteSummary(ctx, summary); err != nil {
		return fmt.Errorf("write summary document: %w", err)
	}

	log.Printf("[MEMORY] Refreshed curated summary from %d facts", len(facts))
	return nil
}

// embed resolves text to a vector through the cache, retrying transient
// provider failures with exponential backoff.
func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := m.embedCache.Get(text); ok {
		return v.([]float32), nil
	}

	vec, err := backoff.Retry(ctx, func() ([]float32, error) {
		return m.embedder.Embed(ctx, text)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(uint(m.config.MaxRetries)))
	if err != nil {
		return nil, err
	}

	m.embedCache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

func (m *Manager) extract(ctx context.Context, text string) ([]Candidate, error) {
	if m.config.ExtractionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ExtractionTimeout)
		defer cancel()
	}
	return backoff.Retry(ctx, func() ([]Candidate, error) {
		return m.extractor.Extract(ctx, text)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(uint(m.config.MaxRetries)))
}

func (m *Manager) summarize(ctx context.Context, facts []*Fact) (string, error) {
	if m.config.ExtractionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ExtractionTimeout)
		defer cancel()
	}
	return backoff.Retry(ctx, func() (string, error) {
		return m.summarizer.Summarize(ctx, facts)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(uint(m.config.MaxRetries)))
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
