package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/cyzus/suzent-sub001/core"
	"github.com/cyzus/suzent-sub001/memory"
)

// recordingExtractor captures the text it was asked to extract from.
type recordingExtractor struct {
	lastText   string
	candidates []memory.Candidate
}

func (r *recordingExtractor) Extract(ctx context.Context, turnText string) ([]memory.Candidate, error) {
	r.lastText = turnText
	return r.candidates, nil
}

func TestFlushStepsBuildsSyntheticExchange(t *testing.T) {
	ctx := context.Background()
	rec := &recordingExtractor{candidates: []memory.Candidate{
		{Content: "Migrating the billing service to Postgres", Category: "technical", Importance: 0.7},
	}}
	fx := newFixtureWith(t, rec)

	steps := []core.Step{
		{Kind: core.StepTask, Task: "Help me migrate the billing service to Postgres"},
		{Kind: core.StepPlanning, Plan: "First dump the schema, then rewrite the queries"},
		{Kind: core.StepAction, Tool: "run_sql", Args: map[string]any{"file": "schema.sql"}, Output: "42 tables created"},
		{Kind: core.StepAction, Err: "connection refused"},
		{Kind: core.StepFinalAnswer, FinalAnswer: "Migration script is ready."},
	}

	result, err := fx.mgr.FlushSteps(ctx, steps, memory.UserScope("u1"), "sess-1")
	if err != nil {
		t.Fatalf("FlushSteps failed: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("Expected 1 created fact, got %d", len(result.Created))
	}

	// The synthetic exchange carries every step kind.
	for _, want := range []string{
		"Help me migrate the billing service",
		"Migration script is ready.",
		"run_sql",
		"[Error: connection refused]",
		"First dump the schema",
	} {
		if !strings.Contains(rec.lastText, want) {
			t.Errorf("Synthetic exchange missing %q:\n%s", want, rec.lastText)
		}
	}
}

func TestFlushStepsNoMeaningfulContent(t *testing.T) {
	fx := newFixture(t, []memory.Candidate{
		{Content: "should never appear", Category: "other", Importance: 0.5},
	})

	steps := []core.Step{
		{Kind: core.StepTask},
		{Kind: core.StepPlanning},
	}
	result, err := fx.mgr.FlushSteps(context.Background(), steps, memory.UserScope("u1"), "sess-1")
	if err != nil {
		t.Fatalf("FlushSteps failed: %v", err)
	}
	if len(result.ExtractedFacts) != 0 || len(result.Created) != 0 {
		t.Fatalf("Empty steps must not extract, got %+v", result)
	}
}
