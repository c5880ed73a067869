// Package source implements the human-readable ground truth of the memory
// system: append-only daily markdown logs (YYYY-MM-DD.md) plus one curated
// summary document (MEMORY.md).
//
// Both the agent (via file tools) and the memory pipeline operate on the
// same physical files, so the format stays scannable: one fact per line,
// category tag first, importance and tags encoded so a reindex can restore
// the search index from these files alone.
package source

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cyzus/suzent-sub001/memory"
)

const (
	dateLayout  = "2006-01-02"
	summaryFile = "MEMORY.md"
)

// Store manages markdown memory files under one directory.
type Store struct {
	baseDir string

	// One lock per date file so concurrent appends to the same day never
	// interleave. Different days may write in parallel.
	locks sync.Map // date string -> *sync.Mutex
}

// New creates the store, creating baseDir if needed.
func New(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("source: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("source: init directory %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) lockFor(date string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(date, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) dailyLogPath(date string) string {
	return filepath.Join(s.baseDir, date+".md")
}

// AppendDailyLog appends one timestamped section with the given facts to the
// date's log file. Empty date means today (UTC). Write failures surface to
// the caller; a fact is never silently dropped.
func (s *Store) AppendDailyLog(ctx context.Context, chatID string, facts []*memory.Fact, date string) error {
	if len(facts) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if date == "" {
		date = time.Now().UTC().Format(dateLayout)
	}

	entry := formatEntry(chatID, facts, time.Now().UTC())

	mu := s.lockFor(date)
	mu.Lock()
	defer mu.Unlock()

	path := s.dailyLogPath(date)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		header := fmt.Sprintf("# Daily Log - %s\n", date)
		if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
			return fmt.Errorf("source: create daily log %s: %w", date, err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("source: open daily log %s: %w", date, err)
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("source: append daily log %s: %w", date, err)
	}

	log.Printf("[SOURCE] Appended %d facts to daily log %s", len(facts), date)
	return nil
}

// formatEntry renders one log section. Format mirrors what ParseDailyLog
// reads back:
//
//	## HH:MM - Chat: abcd1234
//
//	- [category] content (importance: 0.80) `tag1 tag2`
func formatEntry(chatID string, facts []*memory.Fact, now time.Time) string {
	var b strings.Builder

	id := chatID
	if len(id) > 8 {
		id = id[:8]
	}
	fmt.Fprintf(&b, "\n## %s - Chat: %s\n\n", now.Format("15:04"), id)

	for _, f := range facts {
		fmt.Fprintf(&b, "- [%s] %s (importance: %.2f)", f.Category, f.Content, f.Importance)
		if len(f.Tags) > 0 {
			fmt.Fprintf(&b, " `%s`", strings.Join(f.Tags, " "))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// ReadDailyLog returns the raw content of one dated log file.
func (s *Store) ReadDailyLog(ctx context.Context, date string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(s.dailyLogPath(date))
	if os.IsNotExist(err) {
		return "", memory.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("source: read daily log %s: %w", date, err)
	}
	return string(b), nil
}

// ReadRecentLogs returns the last N days of logs (today first), joined with
// separators. Days without a log file are skipped.
func (s *Store) ReadRecentLogs(ctx context.Context, days int) (string, error) {
	if days <= 0 {
		days = 2
	}
	today := time.Now().UTC()

	var parts []string
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format(dateLayout)
		content, err := s.ReadDailyLog(ctx, date)
		if err == memory.ErrNotFound {
			continue
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, content)
	}

	return strings.Join(parts, "\n\n---\n\n"), nil
}

// ListLogDates returns available daily-log dates, newest first.
func (s *Store) ListLogDates(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("source: list %s: %w", s.baseDir, err)
	}

	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		if name == e.Name() {
			continue
		}
		if _, err := time.Parse(dateLayout, name); err != nil {
			continue
		}
		dates = append(dates, name)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// WriteSummary fully replaces the curated summary document. The summary is
// derived from facts and regenerable, unlike the daily logs.
func (s *Store) WriteSummary(ctx context.Context, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mu := s.lockFor(summaryFile)
	mu.Lock()
	defer mu.Unlock()

	header := "# Long-term Memory\n\n"
	footer := fmt.Sprintf("\n\n---\n*Last updated: %s*\n",
		time.Now().UTC().Format("2006-01-02 15:04 UTC"))

	path := filepath.Join(s.baseDir, summaryFile)
	if err := os.WriteFile(path, []byte(header+content+footer), 0o644); err != nil {
		return fmt.Errorf("source: write summary: %w", err)
	}

	log.Printf("[SOURCE] Updated %s", summaryFile)
	return nil
}

// ReadSummary returns the curated summary document.
func (s *Store) ReadSummary(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.Join(s.baseDir, summaryFile))
	if os.IsNotExist(err) {
		return "", memory.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("source: read summary: %w", err)
	}
	return string(b), nil
}
