package extract_test

import (
	"context"
	"testing"

	"github.com/cyzus/suzent-sub001/memory"
	"github.com/cyzus/suzent-sub001/memory/extract"
)

func TestHeuristicExtractPreference(t *testing.T) {
	h := extract.NewHeuristic()
	got, err := h.Extract(context.Background(), "User: I prefer dark mode when coding at night")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 candidate, got %d: %v", len(got), got)
	}
	c := got[0]
	if c.Category != string(memory.CategoryPreference) {
		t.Errorf("Expected preference category, got %q", c.Category)
	}
	if c.Importance <= 0 {
		t.Errorf("Expected positive importance, got %v", c.Importance)
	}
	if len(c.Tags) == 0 {
		t.Errorf("Expected keyword tags, got none")
	}
}

func TestHeuristicExtractMultipleAndDedup(t *testing.T) {
	h := extract.NewHeuristic()
	text := "My name is Dana.\nI'm working on a compiler.\nI'm working on a compiler.\nNothing else to say."
	got, err := h.Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 candidates (repeat collapsed), got %d: %v", len(got), got)
	}
	if got[0].Category != string(memory.CategoryPersonal) {
		t.Errorf("Expected personal first, got %q", got[0].Category)
	}
	if got[1].Category != string(memory.CategoryGoal) {
		t.Errorf("Expected goal second, got %q", got[1].Category)
	}
}

func TestHeuristicExtractNothing(t *testing.T) {
	h := extract.NewHeuristic()
	got, err := h.Extract(context.Background(), "What's the weather like today?")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Expected no candidates from small talk, got %v", got)
	}
}

func TestParseFactsJSONEnvelope(t *testing.T) {
	got, err := extract.ParseFactsJSON(`{"facts": [
		{"content": "Prefers dark mode", "category": "preference", "importance": 0.6, "tags": ["dark-mode"]},
		{"content": "", "category": "other"},
		{"content": "Uses an unlisted category", "category": "spurious"}
	]}`)
	if err != nil {
		t.Fatalf("ParseFactsJSON failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 candidates (empty dropped), got %d", len(got))
	}
	if got[0].Content != "Prefers dark mode" || got[0].Importance != 0.6 {
		t.Errorf("First candidate mangled: %+v", got[0])
	}
	if got[1].Category != string(memory.CategoryOther) {
		t.Errorf("Unknown category should fall back to other, got %q", got[1].Category)
	}
	if got[1].Importance != memory.DefaultImportance {
		t.Errorf("Missing importance should default, got %v", got[1].Importance)
	}
}

func TestParseFactsJSONBareArrayAndFences(t *testing.T) {
	fenced := "```json\n[{\"content\": \"Lives in Oslo\", \"category\": \"personal\", \"importance\": 0.8}]\n```"
	got, err := extract.ParseFactsJSON(fenced)
	if err != nil {
		t.Fatalf("ParseFactsJSON failed: %v", err)
	}
	if len(got) != 1 || got[0].Content != "Lives in Oslo" {
		t.Fatalf("Fenced bare array not parsed: %v", got)
	}
}

func TestParseFactsJSONGarbage(t *testing.T) {
	if _, err := extract.ParseFactsJSON("sorry, I couldn't find any facts"); err == nil {
		t.Fatalf("Expected an error for non-JSON response")
	}
	got, err := extract.ParseFactsJSON("")
	if err != nil || len(got) != 0 {
		t.Fatalf("Empty response should yield no candidates, got %v (%v)", got, err)
	}
}
