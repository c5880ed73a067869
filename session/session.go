// Package session persists per-session conversation state: append-only JSONL
// transcripts, an overwritten state snapshot, session metadata, and the
// lifecycle policy that decides when a session gets a fresh identity.
//
// Everything here is internal operational data, unlike the source-of-truth
// memory files which the agent itself can read.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyzus/suzent-sub001/core"
)

// maxContentLen caps one turn's content in the transcript.
const maxContentLen = 10_000

// Store manages per-session files under a base directory:
//
//	transcripts/{session_id}.jsonl
//	state/{session_id}.json
//	meta/{session_id}.json
type Store struct {
	baseDir string

	// one logical writer per session id
	locks sync.Map
}

// NewStore creates the session store rooted at baseDir.
func NewStore(baseDir string) (*Store, error) {
	for _, sub := range []string{"transcripts", "state", "meta"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	return &Store{baseDir: baseDir}, nil
}

// NewSessionID allocates a fresh session identity.
func NewSessionID() string {
	return uuid.NewString()
}

func (s *Store) sessionLock(sessionID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) transcriptPath(sessionID string) string {
	return filepath.Join(s.baseDir, "transcripts", sessionID+".jsonl")
}

// AppendTurn appends one turn to the session's transcript. Writes to the
// same session are serialized so lines never interleave; different sessions
// append in parallel. A zero timestamp is stamped with the current time.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn core.Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	if len(turn.Content) > maxContentLen {
		turn.Content = turn.Content[:maxContentLen]
	}

	line, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(s.transcriptPath(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// ReadTranscript returns the session's turns in order. lastN > 0 limits the
// result to the trailing N turns. Unparseable lines are skipped with a log
// line; a missing transcript reads as empty.
func (s *Store) ReadTranscript(ctx context.Context, sessionID string, lastN int) ([]core.Turn, error) {
	f, err := os.Open(s.transcriptPath(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var turns []core.Turn
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var t core.Turn
		if err := json.Unmarshal(raw, &t); err != nil {
			log.Printf("[SESSION] Skipping malformed transcript line %s:%d: %v", sessionID, lineNum, err)
			continue
		}
		turns = append(turns, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	if lastN > 0 && len(turns) > lastN {
		turns = turns[len(turns)-lastN:]
	}
	return turns, nil
}

// TranscriptExists reports whether the session has any transcript on disk.
func (s *Store) TranscriptExists(sessionID string) bool {
	_, err := os.Stat(s.transcriptPath(sessionID))
	return err == nil
}

// Metadata tracks one session's lifecycle counters.
type Metadata struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	TurnCount    int       `json:"turn_count"`
}

func (s *Store) metaPath(sessionID string) string {
	return filepath.Join(s.baseDir, "meta", sessionID+".json")
}

// LoadMetadata reads the session's metadata, or returns fresh metadata when
// none exists yet.
func (s *Store) LoadMetadata(sessionID string) (*Metadata, error) {
	b, err := os.ReadFile(s.metaPath(sessionID))
	if os.IsNotExist(err) {
		now := time.Now().UTC()
		return &Metadata{SessionID: sessionID, CreatedAt: now, LastActiveAt: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session metadata: %w", err)
	}

	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse session metadata: %w", err)
	}
	return &m, nil
}

// SaveMetadata overwrites the session's metadata file.
func (s *Store) SaveMetadata(m *Metadata) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(m.SessionID), b, 0o644); err != nil {
		return fmt.Errorf("write session metadata: %w", err)
	}
	return nil
}

// Touch records one more turn of activity and persists the metadata.
func (s *Store) Touch(sessionID string) (*Metadata, error) {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	m, err := s.LoadMetadata(sessionID)
	if err != nil {
		return nil, err
	}
	m.LastActiveAt = time.Now().UTC()
	m.TurnCount++
	if err := s.SaveMetadata(m); err != nil {
		return nil, err
	}
	return m, nil
}
