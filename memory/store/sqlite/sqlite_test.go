package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyzus/suzent-sub001/memory"
	"github.com/cyzus/suzent-sub001/memory/embedder/mock"
	"github.com/cyzus/suzent-sub001/memory/store/sqlite"
)

const dims = 64

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "memory.db"), dims)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func embed(t *testing.T, emb *mock.Embedder, text string) []float32 {
	t.Helper()
	v, err := emb.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	return v
}

func addFact(t *testing.T, s *sqlite.Store, emb *mock.Embedder, content string, importance float64, scope memory.Scope) *memory.Fact {
	t.Helper()
	f := memory.NewFact(content, memory.CategoryContext, importance, nil, scope)
	f.Embedding = embed(t, emb, content)
	if err := s.AddMemory(context.Background(), f); err != nil {
		t.Fatalf("AddMemory(%q) failed: %v", content, err)
	}
	return f
}

func search(t *testing.T, s *sqlite.Store, emb *mock.Embedder, text string, scope memory.Scope, limit int) []*memory.Fact {
	t.Helper()
	got, err := s.HybridSearch(context.Background(), memory.SearchQuery{
		Embedding: embed(t, emb, text),
		Text:      text,
		Scope:     scope,
		Limit:     limit,
		Weights:   memory.DefaultWeights(),
	})
	if err != nil {
		t.Fatalf("HybridSearch failed: %v", err)
	}
	return got
}

func TestHybridSearchRanksRelevantFirst(t *testing.T) {
	s := newStore(t)
	emb := mock.New(dims)
	scope := memory.UserScope("u1")

	addFact(t, s, emb, "prefers dark mode for coding sessions", 0.5, scope)
	addFact(t, s, emb, "owns a golden retriever named Biscuit", 0.5, scope)
	addFact(t, s, emb, "deploys services with Kubernetes", 0.5, scope)

	got := search(t, s, emb, "prefers dark mode for coding sessions", scope, 3)
	if len(got) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(got))
	}
	if got[0].Content != "prefers dark mode for coding sessions" {
		t.Errorf("Expected the matching fact first, got %q", got[0].Content)
	}
}

func TestHybridSearchImportanceBoost(t *testing.T) {
	s := newStore(t)
	emb := mock.New(dims)
	scope := memory.UserScope("u1")

	// Same content, so semantic and lexical scores are equal; importance
	// must decide the order.
	low := memory.NewFact("drinks oat milk lattes", memory.CategoryPreference, 0.1, nil, scope)
	low.Embedding = embed(t, emb, low.Content)
	high := memory.NewFact("drinks oat milk lattes", memory.CategoryPreference, 0.9, nil, scope)
	high.Embedding = embed(t, emb, high.Content)
	// Make the low-importance fact newer so recency can't mask the boost.
	low.CreatedAt = time.Now().UTC()
	high.CreatedAt = time.Now().UTC().Add(-time.Hour)

	ctx := context.Background()
	if err := s.AddMemory(ctx, low); err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}
	if err := s.AddMemory(ctx, high); err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}

	got := search(t, s, emb, "oat milk", scope, 2)
	if len(got) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(got))
	}
	if got[0].ID != high.ID {
		t.Errorf("Expected high-importance fact first, got importance %v", got[0].Importance)
	}
}

func TestHybridSearchTieBreakNewestFirst(t *testing.T) {
	s := newStore(t)
	emb := mock.New(dims)
	scope := memory.UserScope("u1")
	ctx := context.Background()

	older := memory.NewFact("studies Norwegian on weekends", memory.CategoryContext, 0.5, nil, scope)
	older.Embedding = embed(t, emb, older.Content)
	older.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)

	newer := memory.NewFact("studies Norwegian on weekends", memory.CategoryContext, 0.5, nil, scope)
	newer.Embedding = embed(t, emb, newer.Content)
	newer.CreatedAt = time.Now().UTC().Add(-47 * time.Hour)

	if err := s.AddMemory(ctx, older); err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}
	if err := s.AddMemory(ctx, newer); err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}

	// Zero recency weight makes the blended scores exactly equal.
	got, err := s.HybridSearch(ctx, memory.SearchQuery{
		Embedding: embed(t, emb, "studies Norwegian on weekends"),
		Text:      "studies Norwegian on weekends",
		Scope:     scope,
		Limit:     2,
		Weights:   memory.SearchWeights{Semantic: 0.7, Lexical: 0.3},
	})
	if err != nil {
		t.Fatalf("HybridSearch failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(got))
	}
	if got[0].ID != newer.ID {
		t.Errorf("Tie should break toward the newer fact")
	}
}

func TestHybridSearchScopeVisibility(t *testing.T) {
	s := newStore(t)
	emb := mock.New(dims)

	userLevel := memory.UserScope("u1")
	chatA := memory.Scope{UserID: "u1", ChatID: "chatA"}
	chatB := memory.Scope{UserID: "u1", ChatID: "chatB"}

	addFact(t, s, emb, "shared fact visible everywhere", 0.5, userLevel)
	addFact(t, s, emb, "private fact from chat A", 0.5, chatA)
	addFact(t, s, emb, "private fact from chat B", 0.5, chatB)
	addFact(t, s, emb, "someone else's fact entirely", 0.5, memory.UserScope("u2"))

	// Chat A sees user-level rows plus its own, not chat B's.
	got := search(t, s, emb, "fact", chatA, 10)
	if len(got) != 2 {
		t.Fatalf("Chat scope: expected 2 results, got %d", len(got))
	}
	for _, f := range got {
		if f.Scope.ChatID == "chatB" {
			t.Errorf("Chat A search leaked chat B's fact")
		}
		if f.Scope.UserID != "u1" {
			t.Errorf("Search leaked another user's fact")
		}
	}

	// User-level search sees everything of the user.
	got = search(t, s, emb, "fact", userLevel, 10)
	if len(got) != 3 {
		t.Fatalf("User scope: expected 3 results, got %d", len(got))
	}
}

func TestHybridSearchDimensionMismatch(t *testing.T) {
	s := newStore(t)
	_, err := s.HybridSearch(context.Background(), memory.SearchQuery{
		Embedding: make([]float32, dims+1),
		Scope:     memory.UserScope("u1"),
	})
	if !errors.Is(err, memory.ErrDimensionMismatch) {
		t.Fatalf("Expected ErrDimensionMismatch, got %v", err)
	}
}

func TestDedupInsertMergesNearDuplicates(t *testing.T) {
	s := newStore(t)
	emb := mock.New(dims)
	scope := memory.UserScope("u1")
	ctx := context.Background()

	first := memory.NewFact("prefers dark mode", memory.CategoryPreference, 0.5, []string{"ui"}, scope)
	first.Embedding = embed(t, emb, first.Content)
	res, err := s.DedupInsert(ctx, first, 0.85, 5)
	if err != nil {
		t.Fatalf("DedupInsert failed: %v", err)
	}
	if !res.Created {
		t.Fatalf("First insert should create")
	}

	// Identical content embeds identically: similarity 1.0, must merge.
	dup := memory.NewFact("prefers dark mode", memory.CategoryPreference, 0.8, []string{"theme"}, scope)
	dup.Embedding = embed(t, emb, dup.Content)
	res, err = s.DedupInsert(ctx, dup, 0.85, 5)
	if err != nil {
		t.Fatalf("DedupInsert failed: %v", err)
	}
	if res.Created {
		t.Fatalf("Duplicate insert should merge, similarity was %v", res.Similarity)
	}
	if res.MergedWith != first.ID {
		t.Errorf("Expected merge into %s, got %s", first.ID, res.MergedWith)
	}

	got := search(t, s, emb, "prefers dark mode", scope, 10)
	if len(got) != 1 {
		t.Fatalf("Expected exactly 1 row after merge, got %d", len(got))
	}
	merged := got[0]
	if merged.Importance != 0.8 {
		t.Errorf("Merge should keep max importance, got %v", merged.Importance)
	}
	if len(merged.Tags) != 2 {
		t.Errorf("Merge should union tags, got %v", merged.Tags)
	}
	if merged.Content != "prefers dark mode" {
		t.Errorf("Merge must never rewrite content, got %q", merged.Content)
	}
}

func TestDedupInsertDistinctContentCreates(t *testing.T) {
	s := newStore(t)
	emb := mock.New(dims)
	scope := memory.UserScope("u1")
	ctx := context.Background()

	a := memory.NewFact("enjoys hiking in the mountains", memory.CategoryPersonal, 0.5, nil, scope)
	a.Embedding = embed(t, emb, a.Content)
	if _, err := s.DedupInsert(ctx, a, 0.85, 5); err != nil {
		t.Fatalf("DedupInsert failed: %v", err)
	}

	b := memory.NewFact("allergic to shellfish", memory.CategoryPersonal, 0.9, nil, scope)
	b.Embedding = embed(t, emb, b.Content)
	res, err := s.DedupInsert(ctx, b, 0.85, 5)
	if err != nil {
		t.Fatalf("DedupInsert failed: %v", err)
	}
	if !res.Created {
		t.Fatalf("Distinct fact should insert, similarity was %v", res.Similarity)
	}
}

func TestBlockScopePrecedence(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	userLevel := memory.UserScope("u1")
	chatScope := memory.Scope{UserID: "u1", ChatID: "c1"}

	created, err := s.SetBlock(ctx, memory.BlockPersona, "user-level persona", userLevel)
	if err != nil {
		t.Fatalf("SetBlock failed: %v", err)
	}
	if !created {
		t.Errorf("First SetBlock should report created")
	}
	if _, err := s.SetBlock(ctx, memory.BlockPersona, "chat-level persona", chatScope); err != nil {
		t.Fatalf("SetBlock failed: %v", err)
	}
	if _, err := s.SetBlock(ctx, memory.BlockFacts, "user facts", userLevel); err != nil {
		t.Fatalf("SetBlock failed: %v", err)
	}
	// All three tiers populated for persona, only global for context.
	if _, err := s.SetBlock(ctx, memory.BlockPersona, "global persona", memory.Scope{}); err != nil {
		t.Fatalf("SetBlock failed: %v", err)
	}
	if _, err := s.SetBlock(ctx, memory.BlockContext, "global context", memory.Scope{}); err != nil {
		t.Fatalf("SetBlock failed: %v", err)
	}

	// Chat scope: chat-level persona wins over user and global, user-level
	// facts and global context fall through.
	blocks, err := s.GetAllBlocks(ctx, chatScope)
	if err != nil {
		t.Fatalf("GetAllBlocks failed: %v", err)
	}
	if blocks[memory.BlockPersona] != "chat-level persona" {
		t.Errorf("Chat block should win, got %q", blocks[memory.BlockPersona])
	}
	if blocks[memory.BlockFacts] != "user facts" {
		t.Errorf("User block should be visible in chat scope, got %q", blocks[memory.BlockFacts])
	}
	if blocks[memory.BlockContext] != "global context" {
		t.Errorf("Global block should be visible in chat scope, got %q", blocks[memory.BlockContext])
	}

	// User scope never sees chat-level values.
	blocks, err = s.GetAllBlocks(ctx, userLevel)
	if err != nil {
		t.Fatalf("GetAllBlocks failed: %v", err)
	}
	if blocks[memory.BlockPersona] != "user-level persona" {
		t.Errorf("User scope leaked chat block: %q", blocks[memory.BlockPersona])
	}

	// Single-label resolution with default fallback.
	v, err := s.GetBlock(ctx, memory.BlockPersona, chatScope, "fallback")
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	if v != "chat-level persona" {
		t.Errorf("GetBlock precedence wrong: %q", v)
	}
	v, err = s.GetBlock(ctx, "missing", chatScope, "fallback")
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	if v != "fallback" {
		t.Errorf("Expected fallback for missing block, got %q", v)
	}

	// A label set only globally resolves from any scope before the default.
	v, err = s.GetBlock(ctx, memory.BlockContext, chatScope, "fallback")
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	if v != "global context" {
		t.Errorf("Expected global fallback, got %q", v)
	}
	v, err = s.GetBlock(ctx, memory.BlockContext, memory.Scope{UserID: "u2", ChatID: "c9"}, "fallback")
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	if v != "global context" {
		t.Errorf("Global block should be visible to every user, got %q", v)
	}

	// Updating an existing block reports created=false.
	created, err = s.SetBlock(ctx, memory.BlockPersona, "rewritten", userLevel)
	if err != nil {
		t.Fatalf("SetBlock failed: %v", err)
	}
	if created {
		t.Errorf("Overwrite should not report created")
	}
}

func TestDeleteMemoryAndDeleteAll(t *testing.T) {
	s := newStore(t)
	emb := mock.New(dims)
	ctx := context.Background()

	userLevel := memory.UserScope("u1")
	chatScope := memory.Scope{UserID: "u1", ChatID: "c1"}
	f1 := addFact(t, s, emb, "fact at user level", 0.5, userLevel)
	addFact(t, s, emb, "fact in chat", 0.5, chatScope)
	addFact(t, s, emb, "unrelated user", 0.5, memory.UserScope("u2"))

	if err := s.DeleteMemory(ctx, f1.ID); err != nil {
		t.Fatalf("DeleteMemory failed: %v", err)
	}
	if err := s.DeleteMemory(ctx, f1.ID); err != memory.ErrNotFound {
		t.Fatalf("Expected ErrNotFound on double delete, got %v", err)
	}

	// User-level DeleteAll removes chat-scoped rows too.
	n, err := s.DeleteAll(ctx, userLevel)
	if err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 remaining row deleted, got %d", n)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Facts != 1 {
		t.Errorf("Expected only u2's fact to survive, stats: %+v", st)
	}
}

func TestTopByImportance(t *testing.T) {
	s := newStore(t)
	emb := mock.New(dims)
	scope := memory.UserScope("u1")

	addFact(t, s, emb, "minor detail", 0.2, scope)
	top := addFact(t, s, emb, "critical allergy information", 0.95, scope)
	addFact(t, s, emb, "useful preference", 0.6, scope)

	got, err := s.TopByImportance(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("TopByImportance failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 facts, got %d", len(got))
	}
	if got[0].ID != top.ID {
		t.Errorf("Expected highest importance first, got %v", got[0].Importance)
	}
}

func TestDimensionMismatchOnReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.db")

	s, err := sqlite.New(path, dims)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	s.Close()

	if _, err := sqlite.New(path, dims*2); !errors.Is(err, memory.ErrDimensionMismatch) {
		t.Fatalf("Expected ErrDimensionMismatch on reopen with new dims, got %v", err)
	}
}

func TestMigrateCreatesFTSTriggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	s, err := sqlite.New(path, dims)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	s.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	for _, name := range []string{"facts_ai", "facts_ad", "facts_au"} {
		var n int
		err := db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type = 'trigger' AND name = ?`, name,
		).Scan(&n)
		if err != nil {
			t.Fatalf("Failed to query sqlite_master: %v", err)
		}
		if n != 1 {
			t.Errorf("Trigger %s missing after migration", name)
		}
	}
}

func TestAddMemoryWrongVectorLength(t *testing.T) {
	s := newStore(t)
	f := memory.NewFact("short vector", memory.CategoryOther, 0.5, nil, memory.UserScope("u1"))
	f.Embedding = make([]float32, dims/2)
	if err := s.AddMemory(context.Background(), f); !errors.Is(err, memory.ErrDimensionMismatch) {
		t.Fatalf("Expected ErrDimensionMismatch, got %v", err)
	}
}
