// Package tools defines the tool surface the agent exposes to the model:
// definition structs, JSON Schema helpers, and the built-in memory tools.
package tools

import (
	"context"
	"encoding/json"

	"github.com/cyzus/suzent-sub001/memory"
)

// Definition describes one callable tool: its wire schema and its handler.
type Definition struct {
	Name        string
	Description string

	// Properties and Required form the tool's JSON Schema input object.
	Properties map[string]any
	Required   []string

	// Execute runs the tool for one conversation. The returned string goes
	// back to the model as the tool result.
	Execute func(ctx context.Context, scope memory.Scope, sessionID string, input json.RawMessage) (string, error)
}
