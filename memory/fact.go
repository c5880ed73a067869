package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Category classifies what kind of information a fact encodes.
type Category string

const (
	CategoryPersonal   Category = "personal"
	CategoryPreference Category = "preference"
	CategoryGoal       Category = "goal"
	CategoryContext    Category = "context"
	CategoryTechnical  Category = "technical"
	CategoryOther      Category = "other"
)

// ParseCategory maps a free-form category string to the enum.
// Unknown values become CategoryOther rather than being rejected.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryPersonal:
		return CategoryPersonal
	case CategoryPreference:
		return CategoryPreference
	case CategoryGoal:
		return CategoryGoal
	case CategoryContext:
		return CategoryContext
	case CategoryTechnical:
		return CategoryTechnical
	default:
		return CategoryOther
	}
}

// Scope determines which conversations can see a fact or block.
// An empty ChatID means user-level; an empty UserID means global.
type Scope struct {
	UserID string
	ChatID string
}

// Key returns a stable string form used for per-scope locking.
func (s Scope) Key() string {
	return s.UserID + "|" + s.ChatID
}

// UserScope returns the user-level scope for a user id.
func UserScope(userID string) Scope {
	return Scope{UserID: userID}
}

// DefaultImportance is assigned to facts whose source line doesn't encode
// an importance score (e.g. hand-written daily log entries).
const DefaultImportance = 0.5

// Fact is a single extracted memory: one sentence with category, importance,
// tags and provenance. Facts are immutable once written except for importance
// re-scoring and tag merging during deduplication; content corrections are
// new facts.
type Fact struct {
	ID         string
	Content    string
	Category   Category
	Importance float64
	Tags       []string
	Embedding  []float32
	CreatedAt  time.Time
	Scope      Scope

	// Provenance, populated when the fact came from a transcript or a
	// parsed daily-log line.
	SourceSessionID string
	SourceLine      int
	SourceTime      string // HH:MM, from the daily-log section header
}

// NewFact creates a fact with a fresh ULID and the current timestamp.
// Importance is clamped to [0,1].
func NewFact(content string, category Category, importance float64, tags []string, scope Scope) *Fact {
	return &Fact{
		ID:         ulid.Make().String(),
		Content:    strings.TrimSpace(content),
		Category:   category,
		Importance: clampImportance(importance),
		Tags:       tags,
		CreatedAt:  time.Now().UTC(),
		Scope:      scope,
	}
}

// FormatLine renders the fact as a single prompt-injection line.
func (f *Fact) FormatLine() string {
	marker := ""
	if f.Importance > 0.7 {
		marker = "* "
	}
	return fmt.Sprintf("- %s[%s] %s", marker, f.Category, f.Content)
}

// Candidate is a fact proposal produced by the extraction collaborator,
// before embedding and deduplication.
type Candidate struct {
	Content    string   `json:"content"`
	Category   string   `json:"category"`
	Importance float64  `json:"importance"`
	Tags       []string `json:"tags,omitempty"`
}

// ExtractionResult reports what a ProcessTurn call did.
type ExtractionResult struct {
	ExtractedFacts []Candidate
	Created        []*Fact
	Updated        []*Fact

	// SourceWriteFailed is set when facts landed in the search index but
	// the durable source-of-truth append failed. Such facts survive only
	// in the index until an operator reconciles the daily log.
	SourceWriteFailed bool
}

func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
