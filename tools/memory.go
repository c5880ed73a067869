package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cyzus/suzent-sub001/memory"
)

// Memory returns the built-in memory tools backed by the manager: explicit
// search, explicit save, and core memory block editing. Retrieval for the
// system prompt happens automatically; these tools let the model reach past
// that window on its own initiative.
func Memory(mgr *memory.Manager) []Definition {
	return []Definition{
		{
			Name: "search_memory",
			Description: "Search long-term memory for facts about the user. " +
				"Use this when the user refers to something from a past conversation " +
				"that is not in your current context.",
			Properties: map[string]any{
				"query": StringProperty("What to search for, in natural language"),
				"limit": IntegerProperty("Maximum results to return (default: 5)"),
			},
			Required: []string{"query"},
			Execute: func(ctx context.Context, scope memory.Scope, _ string, input json.RawMessage) (string, error) {
				var args struct {
					Query string `json:"query"`
					Limit int    `json:"limit"`
				}
				if err := json.Unmarshal(input, &args); err != nil {
					return "", fmt.Errorf("parse search_memory input: %w", err)
				}

				facts, err := mgr.SearchMemories(ctx, args.Query, scope, args.Limit)
				if err != nil {
					return "", err
				}
				if len(facts) == 0 {
					return "No memories found.", nil
				}
				var b strings.Builder
				for _, f := range facts {
					b.WriteString(f.FormatLine())
					b.WriteString("\n")
				}
				return strings.TrimRight(b.String(), "\n"), nil
			},
		},
		{
			Name: "save_memory",
			Description: "Save an explicitly stated fact about the user to long-term memory. " +
				"Use this when the user asks you to remember something, or states something " +
				"clearly worth keeping (name, preference, ongoing project).",
			Properties: map[string]any{
				"content": StringProperty("The fact, as one self-contained sentence"),
				"category": StringEnumProperty("What kind of fact this is",
					"personal", "preference", "goal", "context", "technical", "other"),
				"importance": NumberProperty("How important this is, 0.0 to 1.0 (default: 0.5)"),
				"tags":       ArrayProperty("Short lowercase keywords", StringProperty("tag")),
			},
			Required: []string{"content"},
			Execute: func(ctx context.Context, scope memory.Scope, sessionID string, input json.RawMessage) (string, error) {
				var cand memory.Candidate
				if err := json.Unmarshal(input, &cand); err != nil {
					return "", fmt.Errorf("parse save_memory input: %w", err)
				}

				res, err := mgr.Remember(ctx, cand, scope, sessionID)
				if err != nil {
					return "", err
				}
				if res.Created {
					return fmt.Sprintf("Saved as %s.", res.ID), nil
				}
				return fmt.Sprintf("Already known: merged into %s (similarity %.2f).",
					res.MergedWith, res.Similarity), nil
			},
		},
		{
			Name: "update_core_memory",
			Description: "Rewrite one core memory block. Core memory is always visible " +
				"in your context; use it for durable information you should never lose " +
				"sight of, like who the user is.",
			Properties: map[string]any{
				"label": StringEnumProperty("Which block to rewrite",
					memory.BlockPersona, memory.BlockUser, memory.BlockFacts, memory.BlockContext),
				"content": StringProperty("The full new content of the block"),
			},
			Required: []string{"label", "content"},
			Execute: func(ctx context.Context, scope memory.Scope, _ string, input json.RawMessage) (string, error) {
				var args struct {
					Label   string `json:"label"`
					Content string `json:"content"`
				}
				if err := json.Unmarshal(input, &args); err != nil {
					return "", fmt.Errorf("parse update_core_memory input: %w", err)
				}
				if err := mgr.UpdateBlock(ctx, args.Label, args.Content, scope); err != nil {
					return "", err
				}
				return fmt.Sprintf("Block %q updated.", args.Label), nil
			},
		},
	}
}
