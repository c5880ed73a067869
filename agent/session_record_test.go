package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cyzus/suzent-sub001/core"
	"github.com/cyzus/suzent-sub001/memory"
	"github.com/cyzus/suzent-sub001/memory/embedder/mock"
	"github.com/cyzus/suzent-sub001/memory/source"
	"github.com/cyzus/suzent-sub001/memory/store/sqlite"
	"github.com/cyzus/suzent-sub001/session"
)

const testDims = 64

type cannedExtractor struct {
	candidates []memory.Candidate
}

func (c *cannedExtractor) Extract(ctx context.Context, turnText string) ([]memory.Candidate, error) {
	return c.candidates, nil
}

func newTestManager(t *testing.T, candidates []memory.Candidate) (*memory.Manager, *sqlite.Store) {
	t.Helper()

	search, err := sqlite.New(filepath.Join(t.TempDir(), "memory.db"), testDims)
	if err != nil {
		t.Fatalf("Failed to open search store: %v", err)
	}
	t.Cleanup(func() { search.Close() })

	src, err := source.New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open source store: %v", err)
	}

	cfg := memory.DefaultManagerConfig()
	cfg.MaxRetries = 1
	mgr, err := memory.NewManager(search, src, mock.New(testDims), &cannedExtractor{candidates}, nil, cfg)
	if err != nil {
		t.Fatalf("Failed to build manager: %v", err)
	}
	return mgr, search
}

func TestRecordTurnMirrorsSessionState(t *testing.T) {
	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open session store: %v", err)
	}
	e := &Engine{sessions: store}
	id := session.NewSessionID()
	ctx := context.Background()

	e.recordTurn(ctx, id, core.Turn{Role: core.RoleUser, Content: "what did I say about espresso?"})
	e.recordTurn(ctx, id, core.Turn{Role: core.RoleAssistant, Content: "You prefer a double shot."})

	state, err := store.ReadState(id)
	if err != nil {
		t.Fatalf("Failed to read state snapshot: %v", err)
	}
	if state == nil {
		t.Fatalf("No state snapshot mirrored after recordTurn")
	}
	if state["session_id"] != id {
		t.Errorf("Snapshot session_id = %v, want %s", state["session_id"], id)
	}
	if n, ok := state["turn_count"].(float64); !ok || n != 2 {
		t.Errorf("Snapshot turn_count = %v, want 2", state["turn_count"])
	}
	if state["last_role"] != string(core.RoleAssistant) {
		t.Errorf("Snapshot last_role = %v, want %s", state["last_role"], core.RoleAssistant)
	}
}

func TestAbandonedRunStillWritesMemory(t *testing.T) {
	ctx := context.Background()
	mgr, search := newTestManager(t, []memory.Candidate{
		{Content: "Roadmap review happens every Thursday", Category: "fact", Importance: 0.6},
	})
	e := &Engine{memory: mgr}
	scope := memory.Scope{UserID: "u1"}

	e.flushAbandonedRun(ctx, "schedule the roadmap review", []core.Action{
		{Tool: "calendar_lookup", Args: map[string]any{"day": "thursday"}, Output: "Thursday 10:00 is free"},
	}, scope, "sess-abandoned")

	st, err := search.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Facts != 1 {
		t.Fatalf("Expected 1 fact written from the abandoned run, got %d", st.Facts)
	}
}
