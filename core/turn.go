package core

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Action records a tool invocation made while producing a turn.
type Action struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Output string         `json:"output,omitempty"`
}

// Turn is a single transcript entry: one message from one participant,
// plus any tool calls made while producing it.
type Turn struct {
	Timestamp time.Time         `json:"ts"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Actions   []Action          `json:"actions,omitempty"`
	Metadata  map[string]string `json:"meta,omitempty"`
}

// Exchange pairs a user message with the assistant's response for a single
// conversation round. This is the unit the memory pipeline extracts facts
// from; it may be synthetic (e.g. reconstructed from steps about to be
// discarded by context compression).
type Exchange struct {
	UserMessage      string
	AssistantMessage string
	Actions          []Action
	Reasoning        []string
}

// FormatForExtraction renders the exchange as plain text for the extraction
// collaborator.
func (e Exchange) FormatForExtraction() string {
	var b strings.Builder

	if e.UserMessage != "" {
		fmt.Fprintf(&b, "User: %s\n", e.UserMessage)
	}
	if e.AssistantMessage != "" {
		fmt.Fprintf(&b, "Assistant: %s\n", e.AssistantMessage)
	}
	for _, a := range e.Actions {
		fmt.Fprintf(&b, "Action: %s(%v)", a.Tool, a.Args)
		if a.Output != "" {
			fmt.Fprintf(&b, " -> %s", truncate(a.Output, 200))
		}
		b.WriteString("\n")
	}
	for _, r := range e.Reasoning {
		if r != "" {
			fmt.Fprintf(&b, "Reasoning: %s\n", r)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// Empty reports whether the exchange carries nothing worth extracting.
func (e Exchange) Empty() bool {
	return strings.TrimSpace(e.UserMessage) == "" &&
		strings.TrimSpace(e.AssistantMessage) == "" &&
		len(e.Actions) == 0
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
