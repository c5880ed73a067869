package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cyzus/suzent-sub001/memory"
)

// blockRow is one stored block value at a specific scope level.
type blockRow struct {
	label  string
	userID string
	chatID string
	value  string
}

// level ranks a block row's scope for per-label resolution:
// chat beats user beats global.
func (r blockRow) level() int {
	switch {
	case r.userID == "":
		return 1
	case r.chatID == "":
		return 2
	default:
		return 3
	}
}

// GetAllBlocks resolves every block label visible to the scope. Resolution is
// per label: a chat-level value wins over the user-level one, which wins over
// the global one; levels are never merged.
func (s *Store) GetAllBlocks(ctx context.Context, scope memory.Scope) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, user_id, chat_id, content FROM blocks
		 WHERE (user_id = '' AND chat_id = '')
		    OR (user_id = ? AND (chat_id = '' OR chat_id = ?))`,
		scope.UserID, scope.ChatID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get blocks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	levels := make(map[string]int)
	for rows.Next() {
		var r blockRow
		if err := rows.Scan(&r.label, &r.userID, &r.chatID, &r.value); err != nil {
			return nil, fmt.Errorf("sqlite: scan block: %w", err)
		}
		if lvl := r.level(); lvl > levels[r.label] {
			out[r.label] = r.value
			levels[r.label] = lvl
		}
	}
	return out, rows.Err()
}

// GetBlock returns the block value for the label, preferring the chat level,
// falling back to the user level, then to the global level, then to def.
func (s *Store) GetBlock(ctx context.Context, label string, scope memory.Scope, def string) (string, error) {
	levels := []memory.Scope{}
	if scope.ChatID != "" {
		levels = append(levels, scope)
	}
	levels = append(levels, memory.UserScope(scope.UserID))
	if scope.UserID != "" {
		levels = append(levels, memory.Scope{})
	}

	for _, at := range levels {
		var v string
		err := s.db.QueryRowContext(ctx,
			`SELECT content FROM blocks WHERE label = ? AND user_id = ? AND chat_id = ?`,
			label, at.UserID, at.ChatID).Scan(&v)
		if err == nil {
			return v, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("sqlite: get block %q: %w", label, err)
		}
	}
	return def, nil
}

// SetBlock writes the block at exactly the given scope level and reports
// whether the row was created rather than updated.
func (s *Store) SetBlock(ctx context.Context, label, value string, scope memory.Scope) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM blocks WHERE label = ? AND user_id = ? AND chat_id = ?`,
		label, scope.UserID, scope.ChatID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("sqlite: set block %q: %w", label, err)
	}
	created := err == sql.ErrNoRows

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO blocks (label, user_id, chat_id, content, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(label, user_id, chat_id) DO UPDATE SET
		   content = excluded.content, updated_at = excluded.updated_at`,
		label, scope.UserID, scope.ChatID, value,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("sqlite: set block %q: %w", label, err)
	}
	return created, nil
}
