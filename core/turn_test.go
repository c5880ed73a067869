package core_test

import (
	"strings"
	"testing"

	"github.com/cyzus/suzent-sub001/core"
)

func TestFormatForExtraction(t *testing.T) {
	ex := core.Exchange{
		UserMessage:      "what's in the orders table?",
		AssistantMessage: "It has 12 columns, the key ones are id and total.",
		Actions: []core.Action{
			{Tool: "run_sql", Args: map[string]any{"query": "select 1"}, Output: "ok"},
			{Tool: "list_tables"},
		},
		Reasoning: []string{"Need the schema first", ""},
	}

	got := ex.FormatForExtraction()
	for _, want := range []string{
		"User: what's in the orders table?",
		"Assistant: It has 12 columns",
		"Action: run_sql(",
		"-> ok",
		"Action: list_tables(",
		"Reasoning: Need the schema first",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Missing %q in:\n%s", want, got)
		}
	}
	if strings.HasSuffix(got, "\n") {
		t.Errorf("Trailing newline should be trimmed:\n%q", got)
	}
	if strings.Contains(got, "Reasoning: \n") {
		t.Errorf("Empty reasoning entries should be skipped:\n%s", got)
	}
}

func TestFormatForExtractionTruncatesActionOutput(t *testing.T) {
	ex := core.Exchange{
		Actions: []core.Action{
			{Tool: "fetch", Output: strings.Repeat("z", 500)},
		},
	}

	got := ex.FormatForExtraction()
	if strings.Contains(got, strings.Repeat("z", 201)) {
		t.Fatalf("Action output should be truncated:\n%s", got)
	}
	if !strings.Contains(got, "...") {
		t.Fatalf("Truncated output should be marked:\n%s", got)
	}
}

func TestExchangeEmpty(t *testing.T) {
	if !(core.Exchange{}).Empty() {
		t.Errorf("Zero exchange should be empty")
	}
	if !(core.Exchange{UserMessage: "   ", Reasoning: []string{"thinking"}}).Empty() {
		t.Errorf("Whitespace message with only reasoning should be empty")
	}
	if (core.Exchange{UserMessage: "hi"}).Empty() {
		t.Errorf("User message makes the exchange non-empty")
	}
	if (core.Exchange{Actions: []core.Action{{Tool: "run_sql"}}}).Empty() {
		t.Errorf("Actions make the exchange non-empty")
	}
}
