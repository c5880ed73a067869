package indexer

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/cyzus/suzent-sub001/core"
	"github.com/cyzus/suzent-sub001/memory"
)

// Default chunk window, in tokens.
const (
	DefaultChunkSize    = 400
	DefaultChunkOverlap = 80
)

// Importance assigned to transcript chunks; below extracted facts so they
// rank as background context, not as stated facts.
const transcriptImportance = 0.3

// TokenCounter measures text length in model tokens.
type TokenCounter interface {
	CountTokens(text string) int
}

// TranscriptStats reports one transcript indexing run.
type TranscriptStats struct {
	TotalTurns  int
	TotalChunks int
	Indexed     int
	Errors      int
}

// TranscriptIndexer chunks session transcripts into overlapping token
// windows and embeds them into the search store for cross-session recall.
// Opt-in via config; chunks are stored at user scope so any chat can find
// them.
type TranscriptIndexer struct {
	ChunkSize    int
	ChunkOverlap int
	Counter      TokenCounter

	DedupThreshold float64
	DedupTopK      int
}

// NewTranscriptIndexer creates a transcript indexer with the default window
// and the best available token counter.
func NewTranscriptIndexer() *TranscriptIndexer {
	return &TranscriptIndexer{
		ChunkSize:      DefaultChunkSize,
		ChunkOverlap:   DefaultChunkOverlap,
		Counter:        NewTokenCounter(),
		DedupThreshold: 0.85,
		DedupTopK:      5,
	}
}

// IndexTranscript chunks the turns and writes each chunk as a user-level
// memory tagged with the source session. Re-running over the same
// transcript deduplicates instead of duplicating chunks.
func (ti *TranscriptIndexer) IndexTranscript(ctx context.Context, turns []core.Turn, sessionID string,
	dst memory.SearchStore, emb memory.Embedder, userID string) (*TranscriptStats, error) {

	stats := &TranscriptStats{TotalTurns: len(turns)}
	if len(turns) == 0 {
		return stats, nil
	}

	// Running text with line markers so chunks can point back into the
	// transcript.
	segments := make([]string, 0, len(turns))
	for i, t := range turns {
		ts := ""
		if !t.Timestamp.IsZero() {
			ts = t.Timestamp.UTC().Format("15:04:05")
		}
		segments = append(segments, fmt.Sprintf("[L%d|%s|%s] %s", i, t.Role, ts, t.Content))
	}

	chunks := ti.chunk(strings.Join(segments, "\n"))
	stats.TotalChunks = len(chunks)

	sess8 := sessionID
	if len(sess8) > 8 {
		sess8 = sess8[:8]
	}
	scope := memory.UserScope(userID)

	for i, ch := range chunks {
		vec, err := emb.Embed(ctx, ch.text)
		if err != nil {
			log.Printf("[INDEXER] Failed to embed transcript chunk %d: %v", i, err)
			stats.Errors++
			continue
		}

		f := memory.NewFact(ch.text, memory.CategoryContext, transcriptImportance,
			[]string{"transcript", sess8}, scope)
		f.Embedding = vec
		f.SourceSessionID = sessionID
		f.SourceLine = ch.startLine

		if _, err := dst.DedupInsert(ctx, f, ti.DedupThreshold, ti.DedupTopK); err != nil {
			log.Printf("[INDEXER] Failed to index transcript chunk %d: %v", i, err)
			stats.Errors++
			continue
		}
		stats.Indexed++
	}

	log.Printf("[INDEXER] Transcript indexing for %s: %d chunks from %d turns",
		sessionID, stats.Indexed, stats.TotalTurns)
	return stats, nil
}

type chunk struct {
	text      string
	startLine int
	endLine   int
}

// chunk splits text into windows of ~ChunkSize tokens with ~ChunkOverlap
// token overlap, never splitting inside a word.
func (ti *TranscriptIndexer) chunk(text string) []chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	size := ti.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := ti.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	counter := ti.Counter
	if counter == nil {
		counter = wordCounter{}
	}

	var chunks []chunk
	start := 0
	for start < len(words) {
		end := start
		tokens := 0
		for end < len(words) && tokens < size {
			tokens += counter.CountTokens(words[end])
			end++
		}

		chunks = append(chunks, chunk{
			text:      strings.Join(words[start:end], " "),
			startLine: extractLineNum(words[start]),
			endLine:   extractLineNum(words[end-1]),
		})
		if end >= len(words) {
			break
		}

		// Walk back until the overlap budget is covered.
		next := end
		back := 0
		for next > start+1 && back < overlap {
			next--
			back += counter.CountTokens(words[next])
		}
		start = next
	}
	return chunks
}

var lineMarker = regexp.MustCompile(`\[L(\d+)\|`)

// extractLineNum reads the nearest [L{n}|...] marker from a word, or 0.
func extractLineNum(word string) int {
	m := lineMarker.FindStringSubmatch(word)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// NewTokenCounter returns a cl100k_base tiktoken counter, or a plain word
// counter when the encoding can't be loaded (tiktoken fetches its BPE table
// on first use, which needs network access).
func NewTokenCounter() TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Printf("[INDEXER] tiktoken unavailable, falling back to word counting: %v", err)
		return wordCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// wordCounter approximates one token per word.
type wordCounter struct{}

func (wordCounter) CountTokens(text string) int {
	n := len(strings.Fields(text))
	if n == 0 && text != "" {
		return 1
	}
	return n
}
