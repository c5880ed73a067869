// Package sqlite implements the memory.SearchStore on an embedded SQLite
// database: embeddings stored as float32 BLOBs with cosine scoring in Go,
// an FTS5 index over fact content for lexical (bm25) ranking, and a block
// table with chat > user > global scope resolution.
//
// The whole database is a derived index. Deleting the file and replaying
// the source logs through the indexer restores it.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cyzus/suzent-sub001/memory"
)

// Store is a SQLite-backed search index over facts and blocks.
type Store struct {
	db   *sql.DB
	dims int

	// One mutex per scope so a dedup check and its insert form a single
	// critical section; operations on different scopes stay concurrent.
	scopeLocks sync.Map // scope key -> *sync.Mutex
}

// New opens (or creates) the index database at dbPath. dims is the embedding
// dimension of the configured model; if the index already holds vectors of a
// different dimension, New fails with memory.ErrDimensionMismatch.
func New(dbPath string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("sqlite: embedding dimension must be positive, got %d", dims)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}

	s := &Store{db: db, dims: dims}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	if err := s.checkDimension(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS facts (
		id                TEXT PRIMARY KEY,
		content           TEXT NOT NULL,
		category          TEXT NOT NULL DEFAULT 'other',
		importance        REAL NOT NULL DEFAULT 0.5,
		tags              TEXT,
		embedding         BLOB,
		created_at        TEXT NOT NULL,
		user_id           TEXT NOT NULL,
		chat_id           TEXT NOT NULL DEFAULT '',
		source_session_id TEXT,
		source_line       INTEGER,
		source_time       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_facts_scope ON facts(user_id, chat_id);
	CREATE INDEX IF NOT EXISTS idx_facts_importance ON facts(user_id, importance DESC);

	CREATE TABLE IF NOT EXISTS blocks (
		label      TEXT NOT NULL,
		user_id    TEXT NOT NULL DEFAULT '',
		chat_id    TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (label, user_id, chat_id)
	);

	CREATE TABLE IF NOT EXISTS index_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS facts_fts USING fts5(
		content,
		content=facts,
		content_rowid=rowid
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 sync triggers. A missing trigger silently desyncs the lexical
	// index, so creation failures are fatal.
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS facts_ai AFTER INSERT ON facts BEGIN
			INSERT INTO facts_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS facts_ad AFTER DELETE ON facts BEGIN
			INSERT INTO facts_fts(facts_fts, rowid, content) VALUES('delete', old.rowid, old.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS facts_au AFTER UPDATE OF content ON facts BEGIN
			INSERT INTO facts_fts(facts_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			INSERT INTO facts_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
	}
	for _, stmt := range triggers {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite: create fts trigger: %w", err)
		}
	}

	return nil
}

// checkDimension compares the configured dimension against the one the index
// was built with. A mismatch on a populated index is fatal; the operator must
// reindex from source with the new model.
func (s *Store) checkDimension() error {
	var stored string
	err := s.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'embedding_dim'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err := s.db.Exec(`INSERT INTO index_meta (key, value) VALUES ('embedding_dim', ?)`,
			strconv.Itoa(s.dims))
		return err
	case err != nil:
		return fmt.Errorf("sqlite: read index meta: %w", err)
	}

	d, err := strconv.Atoi(stored)
	if err != nil || d != s.dims {
		return fmt.Errorf("%w: index has dimension %s, model has %d",
			memory.ErrDimensionMismatch, stored, s.dims)
	}
	return nil
}

func (s *Store) scopeLock(key string) *sync.Mutex {
	mu, _ := s.scopeLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// AddMemory inserts a fact without a dedup check.
func (s *Store) AddMemory(ctx context.Context, f *memory.Fact) error {
	if len(f.Embedding) != s.dims {
		return fmt.Errorf("%w: fact has %d, index wants %d",
			memory.ErrDimensionMismatch, len(f.Embedding), s.dims)
	}

	var tagsJSON *string
	if len(f.Tags) > 0 {
		b, _ := json.Marshal(f.Tags)
		t := string(b)
		tagsJSON = &t
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (id, content, category, importance, tags, embedding, created_at,
		                    user_id, chat_id, source_session_id, source_line, source_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Content, string(f.Category), f.Importance, tagsJSON,
		encodeVector(f.Embedding), f.CreatedAt.UTC().Format(time.RFC3339Nano),
		f.Scope.UserID, f.Scope.ChatID,
		nullable(f.SourceSessionID), f.SourceLine, nullable(f.SourceTime))
	if err != nil {
		return fmt.Errorf("sqlite: insert fact: %w", err)
	}
	return nil
}

// DeleteMemory removes one fact by id.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete fact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// DeleteAll removes every fact in the scope. A user-level scope (empty
// ChatID) removes all of the user's rows including chat-scoped ones.
func (s *Store) DeleteAll(ctx context.Context, scope memory.Scope) (int, error) {
	var res sql.Result
	var err error
	if scope.ChatID == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM facts WHERE user_id = ?`, scope.UserID)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM facts WHERE user_id = ? AND chat_id = ?`,
			scope.UserID, scope.ChatID)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete all: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// TopByImportance returns the user's highest-importance facts.
func (s *Store) TopByImportance(ctx context.Context, userID string, n int) ([]*memory.Fact, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx,
		factColumns+` FROM facts WHERE user_id = ?
		 ORDER BY importance DESC, created_at DESC LIMIT ?`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite: top by importance: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// Stats reports index contents for the admin surface.
func (s *Store) Stats(ctx context.Context) (*memory.StoreStats, error) {
	st := &memory.StoreStats{
		FactsPerScope: make(map[string]int),
		EmbeddingDim:  s.dims,
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&st.Facts); err != nil {
		return nil, fmt.Errorf("sqlite: stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&st.Blocks); err != nil {
		return nil, fmt.Errorf("sqlite: stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, chat_id, COUNT(*) FROM facts GROUP BY user_id, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var user, chat string
		var count int
		if err := rows.Scan(&user, &chat, &count); err != nil {
			return nil, err
		}
		st.FactsPerScope[memory.Scope{UserID: user, ChatID: chat}.Key()] = count
	}

	return st, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const factColumns = `SELECT id, content, category, importance, tags, embedding, created_at,
	user_id, chat_id, source_session_id, source_line, source_time`

type scanner interface {
	Scan(dest ...any) error
}

func scanFact(row scanner) (*memory.Fact, error) {
	var f memory.Fact
	var category, createdAt string
	var tags, sessionID, sourceTime sql.NullString
	var sourceLine sql.NullInt64
	var emb []byte

	err := row.Scan(&f.ID, &f.Content, &category, &f.Importance, &tags, &emb,
		&createdAt, &f.Scope.UserID, &f.Scope.ChatID, &sessionID, &sourceLine, &sourceTime)
	if err != nil {
		return nil, err
	}

	f.Category = memory.Category(category)
	f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	f.Embedding = decodeVector(emb)
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &f.Tags)
	}
	if sessionID.Valid {
		f.SourceSessionID = sessionID.String
	}
	if sourceLine.Valid {
		f.SourceLine = int(sourceLine.Int64)
	}
	if sourceTime.Valid {
		f.SourceTime = sourceTime.String
	}

	return &f, nil
}

func scanFacts(rows *sql.Rows) ([]*memory.Fact, error) {
	var facts []*memory.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &v); err != nil {
		return nil
	}
	return v
}
