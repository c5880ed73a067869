// Package indexer rebuilds the search index from the plain-text source tier.
//
// The search index is derived data: if it is lost or found inconsistent, a
// reindex replays every daily log (and optionally session transcripts) into
// a fresh index. Embeddings are regenerated during replay since the source
// tier never persists vectors.
package indexer

import (
	"context"
	"fmt"
	"log"

	"github.com/cyzus/suzent-sub001/memory"
	"github.com/cyzus/suzent-sub001/memory/source"
)

// ReindexStats reports one reindex run.
type ReindexStats struct {
	TotalFiles int
	TotalFacts int

	// Indexed counts facts inserted as new rows.
	Indexed int

	// Skipped counts facts that deduplicated into existing rows. On a
	// rerun over an unchanged index every fact lands here.
	Skipped int

	// Errors counts malformed log lines and failed inserts. Processing
	// continues past every error.
	Errors int
}

// Indexer replays source-tier files into a search store.
type Indexer struct {
	// DedupThreshold makes replay idempotent: a fact already present in
	// the index merges instead of duplicating.
	DedupThreshold float64
	DedupTopK      int
}

// New creates an indexer with the standard dedup settings.
func New() *Indexer {
	return &Indexer{DedupThreshold: 0.85, DedupTopK: 5}
}

// ReindexFromSource parses every daily log and writes its facts into dst,
// scoped to userID at the user level. With clearExisting the user's rows are
// deleted first for a clean rebuild; without it, replay merges into live
// rows and is safe to run alongside traffic.
func (ix *Indexer) ReindexFromSource(ctx context.Context, src memory.SourceStore, dst memory.SearchStore,
	emb memory.Embedder, userID string, clearExisting bool) (*ReindexStats, error) {

	stats := &ReindexStats{}
	scope := memory.UserScope(userID)

	if clearExisting {
		n, err := dst.DeleteAll(ctx, scope)
		if err != nil {
			return stats, fmt.Errorf("clear existing memories: %w", err)
		}
		log.Printf("[INDEXER] Cleared %d existing memories for user %s", n, userID)
	}

	dates, err := src.ListLogDates(ctx)
	if err != nil {
		return stats, fmt.Errorf("list daily logs: %w", err)
	}
	stats.TotalFiles = len(dates)
	if len(dates) == 0 {
		log.Printf("[INDEXER] No daily log files found")
		return stats, nil
	}

	log.Printf("[INDEXER] Re-indexing %d daily log files", len(dates))
	for _, date := range dates {
		content, err := src.ReadDailyLog(ctx, date)
		if err != nil {
			log.Printf("[INDEXER] Failed to read daily log %s: %v", date, err)
			stats.Errors++
			continue
		}

		facts, badLines := source.ParseDailyLog(content)
		stats.TotalFacts += len(facts)
		stats.Errors += len(badLines)
		for _, ln := range badLines {
			log.Printf("[INDEXER] Malformed line %s:%d skipped", date, ln)
		}

		for _, pf := range facts {
			created, err := ix.indexFact(ctx, dst, emb, scope, date, pf)
			if err != nil {
				log.Printf("[INDEXER] Failed to index fact from %s:%d: %v", date, pf.Line, err)
				stats.Errors++
				continue
			}
			if created {
				stats.Indexed++
			} else {
				stats.Skipped++
			}
		}
	}

	log.Printf("[INDEXER] Re-indexing complete: %d indexed, %d skipped, %d errors from %d facts",
		stats.Indexed, stats.Skipped, stats.Errors, stats.TotalFacts)
	return stats, nil
}

func (ix *Indexer) indexFact(ctx context.Context, dst memory.SearchStore, emb memory.Embedder,
	scope memory.Scope, date string, pf source.ParsedFact) (bool, error) {

	vec, err := emb.Embed(ctx, pf.Content)
	if err != nil {
		return false, fmt.Errorf("embed: %w", err)
	}

	f := memory.NewFact(pf.Content, pf.Category, pf.Importance, pf.Tags, scope)
	f.Embedding = vec
	f.SourceLine = pf.Line
	f.SourceTime = date + " " + pf.Time

	res, err := dst.DedupInsert(ctx, f, ix.DedupThreshold, ix.DedupTopK)
	if err != nil {
		return false, err
	}
	return res.Created, nil
}
