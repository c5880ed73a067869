// Package agent runs the conversational loop around the Anthropic Messages
// API: memory-enriched system prompts, tool execution, session transcripts,
// and the post-turn memory write.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/cyzus/suzent-sub001/core"
	"github.com/cyzus/suzent-sub001/memory"
	"github.com/cyzus/suzent-sub001/session"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096

	// defaultMaxTurns bounds one Run's tool-use round trips.
	defaultMaxTurns = 20

	// historyWindow is how many transcript turns are replayed into context.
	historyWindow = 20
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = `You are a helpful assistant with long-term memory.

MEMORY:
- Core memory blocks are always visible below; treat them as ground truth about the user.
- Retrieved memories are snippets recalled from past conversations for this message.
- Use search_memory when the user refers to something you don't see in context.
- Use save_memory when the user tells you something worth keeping.
- Use update_core_memory only for durable identity-level information.

Be conversational. Don't announce memory operations unless asked.`

// Engine executes agent runs against the Anthropic API.
type Engine struct {
	client   *anthropic.Client
	memory   *memory.Manager
	registry *Registry

	sessions  *session.Store
	lifecycle *session.Lifecycle

	model        string
	maxTokens    int64
	maxTurns     int
	systemPrompt string
}

// Option configures the engine.
type Option func(*Engine)

// WithModel overrides the model.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithMaxTokens overrides the per-response token cap.
func WithMaxTokens(n int64) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithMaxTurns overrides the tool-use round-trip limit.
func WithMaxTurns(n int) Option {
	return func(e *Engine) { e.maxTurns = n }
}

// WithSystemPrompt overrides the base system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) { e.systemPrompt = prompt }
}

// WithSessions enables transcript persistence and the reset policy.
// lifecycle may be nil to persist transcripts without a reset policy.
func WithSessions(store *session.Store, lifecycle *session.Lifecycle) Option {
	return func(e *Engine) {
		e.sessions = store
		e.lifecycle = lifecycle
	}
}

// New creates the engine. registry may be nil for a tool-less agent.
func New(client *anthropic.Client, mgr *memory.Manager, registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		client:       client,
		memory:       mgr,
		registry:     registry,
		model:        defaultModel,
		maxTokens:    defaultMaxTokens,
		maxTurns:     defaultMaxTurns,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input is one user message to process.
type Input struct {
	UserID string
	ChatID string

	// SessionID continues an existing session; empty starts a new one.
	SessionID string

	UserMessage string
}

// Output is the result of one run.
type Output struct {
	Text string

	// SessionID is the session the turn was recorded under. It differs from
	// the input's when the reset policy allocated a new session.
	SessionID string

	// ResetReason is the lifecycle reason token when a reset happened.
	ResetReason string

	ToolsUsed []string

	// Memory reports what the post-turn extraction stored.
	Memory *memory.ExtractionResult
}

// Run processes one user message: enrich the system prompt with memory, loop
// through tool calls until the model answers in text, record the exchange in
// the session transcript, and run the memory write path on the result.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.UserMessage) == "" {
		return nil, fmt.Errorf("empty user message")
	}
	scope := memory.Scope{UserID: input.UserID, ChatID: input.ChatID}

	out := &Output{}
	out.SessionID, out.ResetReason = e.resolveSession(input.SessionID)

	systemPrompt := e.buildSystemPrompt(ctx, input.UserMessage, scope)
	msgs := e.loadHistory(ctx, out.SessionID)
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(input.UserMessage)))

	e.recordTurn(ctx, out.SessionID, core.Turn{Role: core.RoleUser, Content: input.UserMessage})

	var apiTools []anthropic.ToolUnionParam
	if e.registry != nil {
		apiTools = e.registry.ToAPITools()
	}

	var text string
	var actions []core.Action
	done := false

	for turn := 0; turn < e.maxTurns && !done; turn++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(e.model),
			MaxTokens: e.maxTokens,
			Messages:  msgs,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
		}
		if len(apiTools) > 0 {
			params.Tools = apiTools
		}

		resp, err := e.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("anthropic api: %w", err)
		}

		text = ""
		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text += block.Text

			case "tool_use":
				result, isErr := e.executeTool(ctx, scope, out.SessionID, block.Name, block.Input)
				toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, result, isErr))
				out.ToolsUsed = append(out.ToolsUsed, block.Name)

				var args map[string]any
				_ = json.Unmarshal(block.Input, &args)
				actions = append(actions, core.Action{Tool: block.Name, Args: args, Output: result})
			}
		}

		if len(toolResults) == 0 {
			done = true
			break
		}
		msgs = append(msgs, resp.ToParam(), anthropic.NewUserMessage(toolResults...))
	}
	if !done {
		// The run is being abandoned, so its tool outputs never reach the
		// normal post-turn write path. Flush them first.
		e.flushAbandonedRun(ctx, input.UserMessage, actions, scope, out.SessionID)
		return nil, fmt.Errorf("exceeded maximum turns (%d)", e.maxTurns)
	}

	out.Text = text
	e.recordTurn(ctx, out.SessionID, core.Turn{
		Role:    core.RoleAssistant,
		Content: text,
		Actions: actions,
	})

	ex := core.Exchange{
		UserMessage:      input.UserMessage,
		AssistantMessage: text,
		Actions:          actions,
	}
	res, err := e.memory.ProcessTurn(ctx, ex, scope, out.SessionID)
	if err != nil {
		log.Printf("[MEMORY] Post-turn processing failed: %v", err)
	} else {
		out.Memory = res
	}

	return out, nil
}

// resolveSession applies the reset policy and returns the session to record
// this run under, plus the reset reason when a new identity replaced the old.
func (e *Engine) resolveSession(sessionID string) (string, string) {
	if sessionID == "" {
		return session.NewSessionID(), ""
	}
	if e.sessions == nil || e.lifecycle == nil {
		return sessionID, ""
	}

	meta, err := e.sessions.LoadMetadata(sessionID)
	if err != nil {
		log.Printf("[SESSION] Failed to load metadata for %s: %v", sessionID, err)
		return sessionID, ""
	}
	if reset, reason := e.lifecycle.ShouldReset(meta.CreatedAt, meta.LastActiveAt, meta.TurnCount); reset {
		fresh := session.NewSessionID()
		log.Printf("[SESSION] Reset %s -> %s: %s", sessionID, fresh, reason)
		return fresh, reason
	}
	return sessionID, ""
}

// buildSystemPrompt layers core memory and retrieved memories onto the base
// prompt. Memory failures degrade to a plain prompt, never a failed turn.
func (e *Engine) buildSystemPrompt(ctx context.Context, userMessage string, scope memory.Scope) string {
	prompt := e.systemPrompt

	coreMem, err := e.memory.GetCoreMemory(ctx, scope)
	if err != nil {
		log.Printf("[MEMORY] Failed to load core memory: %v", err)
	} else if coreMem != "" {
		prompt += "\n\n" + coreMem
	}

	if retrieved := e.memory.RetrieveRelevantMemories(ctx, userMessage, scope); retrieved != "" {
		prompt += "\n" + retrieved
	}
	return prompt
}

// loadHistory replays the trailing transcript window as API messages.
func (e *Engine) loadHistory(ctx context.Context, sessionID string) []anthropic.MessageParam {
	if e.sessions == nil {
		return nil
	}
	turns, err := e.sessions.ReadTranscript(ctx, sessionID, historyWindow)
	if err != nil {
		log.Printf("[SESSION] Failed to read transcript %s: %v", sessionID, err)
		return nil
	}

	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		switch t.Role {
		case core.RoleUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		case core.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return msgs
}

func (e *Engine) recordTurn(ctx context.Context, sessionID string, turn core.Turn) {
	if e.sessions == nil {
		return
	}
	if err := e.sessions.AppendTurn(ctx, sessionID, turn); err != nil {
		log.Printf("[SESSION] Failed to append turn to %s: %v", sessionID, err)
		return
	}
	meta, err := e.sessions.Touch(sessionID)
	if err != nil {
		log.Printf("[SESSION] Failed to touch %s: %v", sessionID, err)
		return
	}

	state, err := json.Marshal(map[string]any{
		"session_id":     meta.SessionID,
		"turn_count":     meta.TurnCount,
		"last_active_at": meta.LastActiveAt,
		"last_role":      turn.Role,
	})
	if err != nil {
		log.Printf("[SESSION] Failed to encode state for %s: %v", sessionID, err)
		return
	}
	if err := e.sessions.MirrorState(sessionID, state); err != nil {
		log.Printf("[SESSION] Failed to mirror state for %s: %v", sessionID, err)
	}
}

// flushAbandonedRun runs the memory write path over work an aborted run would
// otherwise discard.
func (e *Engine) flushAbandonedRun(ctx context.Context, task string, actions []core.Action, scope memory.Scope, sessionID string) {
	steps := []core.Step{{Kind: core.StepTask, Task: task}}
	for _, a := range actions {
		steps = append(steps, core.Step{
			Kind:   core.StepAction,
			Tool:   a.Tool,
			Args:   a.Args,
			Output: a.Output,
		})
	}
	if _, err := e.memory.FlushSteps(ctx, steps, scope, sessionID); err != nil {
		log.Printf("[MEMORY] Flush of abandoned run %s failed: %v", sessionID, err)
	}
}

func (e *Engine) executeTool(ctx context.Context, scope memory.Scope, sessionID, name string, input json.RawMessage) (string, bool) {
	if e.registry == nil {
		return fmt.Sprintf("unknown tool: %s", name), true
	}
	def, ok := e.registry.Get(name)
	if !ok {
		return fmt.Sprintf("unknown tool: %s", name), true
	}

	result, err := def.Execute(ctx, scope, sessionID, input)
	if err != nil {
		log.Printf("[AGENT] Tool %s failed: %v", name, err)
		return err.Error(), true
	}
	return result, false
}
