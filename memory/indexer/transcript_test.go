package indexer_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyzus/suzent-sub001/core"
	"github.com/cyzus/suzent-sub001/memory/embedder/mock"
	"github.com/cyzus/suzent-sub001/memory/indexer"
	"github.com/cyzus/suzent-sub001/memory/store/sqlite"
)

// oneTokenPerWord makes chunk boundaries deterministic in tests.
type oneTokenPerWord struct{}

func (oneTokenPerWord) CountTokens(text string) int {
	return len(strings.Fields(text))
}

// testTranscript builds turns whose word sets are disjoint, so chunks only
// resemble each other through their overlap window and never hit the dedup
// threshold within a single run.
func testTranscript(turns int) []core.Turn {
	out := make([]core.Turn, 0, turns)
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	for i := 0; i < turns; i++ {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		words := make([]string, 12)
		for w := range words {
			words[w] = fmt.Sprintf("topic%dword%d", i, w)
		}
		out = append(out, core.Turn{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Role:      role,
			Content:   strings.Join(words, " "),
		})
	}
	return out
}

func newChunkIndexer() *indexer.TranscriptIndexer {
	ti := indexer.NewTranscriptIndexer()
	ti.ChunkSize = 30
	ti.ChunkOverlap = 6
	ti.Counter = oneTokenPerWord{}
	return ti
}

func TestIndexTranscriptChunksWithOverlap(t *testing.T) {
	ctx := context.Background()
	dst, err := sqlite.New(filepath.Join(t.TempDir(), "memory.db"), dims)
	if err != nil {
		t.Fatalf("Failed to open search store: %v", err)
	}
	t.Cleanup(func() { dst.Close() })

	// 12 turns, 13 words each (marker + 12 content words) = 156 words.
	// Window 30, overlap 6 -> stride 24 -> chunks start at 0,24,...,144.
	turns := testTranscript(12)
	stats, err := newChunkIndexer().IndexTranscript(ctx, turns, "abcdef123456", dst, mock.New(dims), "u1")
	if err != nil {
		t.Fatalf("IndexTranscript failed: %v", err)
	}
	if stats.TotalTurns != 12 {
		t.Fatalf("TotalTurns wrong: %+v", stats)
	}
	if stats.TotalChunks != 7 {
		t.Fatalf("Expected 7 chunks, got %+v", stats)
	}
	if stats.Indexed != stats.TotalChunks || stats.Errors != 0 {
		t.Fatalf("Every chunk should index: %+v", stats)
	}

	facts, err := dst.TopByImportance(ctx, "u1", 100)
	if err != nil {
		t.Fatalf("TopByImportance failed: %v", err)
	}
	if len(facts) != stats.Indexed {
		t.Fatalf("Expected %d rows, got %d", stats.Indexed, len(facts))
	}

	sawOverlap := false
	for _, f := range facts {
		if f.Importance != 0.3 {
			t.Errorf("Transcript chunk importance should be 0.3, got %v", f.Importance)
		}
		if f.Scope.ChatID != "" {
			t.Errorf("Chunks must be user-level, got chat %q", f.Scope.ChatID)
		}
		if f.SourceSessionID != "abcdef123456" {
			t.Errorf("Chunk lost its session id: %q", f.SourceSessionID)
		}
		if len(f.Tags) != 2 || f.Tags[0] != "transcript" || f.Tags[1] != "abcdef12" {
			t.Errorf("Unexpected tags: %v", f.Tags)
		}
		if !strings.Contains(f.Content, "[L") {
			t.Errorf("Chunk lost its line markers: %q", f.Content)
		}
		// Overlapping windows share words with at least one other chunk.
		lastWord := f.Content[strings.LastIndex(f.Content, " ")+1:]
		for _, other := range facts {
			if other.ID != f.ID && strings.Contains(other.Content, lastWord) {
				sawOverlap = true
			}
		}
	}
	if !sawOverlap {
		t.Errorf("Expected consecutive chunks to share overlap words")
	}
}

func TestIndexTranscriptRerunDeduplicates(t *testing.T) {
	ctx := context.Background()
	dst, err := sqlite.New(filepath.Join(t.TempDir(), "memory.db"), dims)
	if err != nil {
		t.Fatalf("Failed to open search store: %v", err)
	}
	t.Cleanup(func() { dst.Close() })
	emb := mock.New(dims)

	turns := testTranscript(8)
	if _, err := newChunkIndexer().IndexTranscript(ctx, turns, "sess-1", dst, emb, "u1"); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	st1, err := dst.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if _, err := newChunkIndexer().IndexTranscript(ctx, turns, "sess-1", dst, emb, "u1"); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	st2, err := dst.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if st2.Facts != st1.Facts {
		t.Fatalf("Rerun duplicated chunks: %d -> %d rows", st1.Facts, st2.Facts)
	}
}

func TestIndexTranscriptEmpty(t *testing.T) {
	dst, err := sqlite.New(filepath.Join(t.TempDir(), "memory.db"), dims)
	if err != nil {
		t.Fatalf("Failed to open search store: %v", err)
	}
	t.Cleanup(func() { dst.Close() })

	stats, err := indexer.NewTranscriptIndexer().IndexTranscript(
		context.Background(), nil, "sess-1", dst, mock.New(dims), "u1")
	if err != nil {
		t.Fatalf("IndexTranscript failed: %v", err)
	}
	if stats.TotalChunks != 0 || stats.Indexed != 0 {
		t.Fatalf("Empty transcript should be a no-op: %+v", stats)
	}
}
