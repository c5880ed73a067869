package memory

import (
	"context"
	"log"
	"strings"

	"github.com/cyzus/suzent-sub001/core"
)

// Caps on how much step detail goes into one synthetic exchange.
const (
	flushMaxActions   = 10
	flushMaxReasoning = 5
)

// FlushSteps extracts memories from execution steps that a context
// compression pass is about to discard, so no fact is lost purely because of
// context trimming. It reconstructs a synthetic exchange from the steps and
// runs it through the normal write path. This must complete before the steps
// are discarded; callers invoke it synchronously.
func (m *Manager) FlushSteps(ctx context.Context, steps []core.Step, scope Scope, sessionID string) (*ExtractionResult, error) {
	ex, ok := synthesizeExchange(steps)
	if !ok {
		log.Printf("[MEMORY] Compaction flush: no meaningful content in %d steps", len(steps))
		return &ExtractionResult{}, nil
	}

	result, err := m.ProcessTurn(ctx, ex, scope, sessionID)
	if err != nil {
		return result, err
	}
	log.Printf("[MEMORY] Compaction flush: extracted %d facts, created %d memories from %d steps",
		len(result.ExtractedFacts), len(result.Created), len(steps))
	return result, nil
}

// synthesizeExchange folds steps into one exchange: task text becomes the
// user side, tool outputs, errors and final answers become the assistant
// side, plans become reasoning. Returns ok=false when the steps carry no
// text worth extracting.
func synthesizeExchange(steps []core.Step) (core.Exchange, bool) {
	var userParts, assistantParts, reasoning []string
	var actions []core.Action

	for _, step := range steps {
		switch step.Kind {
		case core.StepTask:
			if step.Task != "" {
				userParts = append(userParts, step.Task)
			}

		case core.StepAction:
			if step.Tool != "" {
				actions = append(actions, core.Action{
					Tool:   step.Tool,
					Args:   step.Args,
					Output: truncate(step.Output, 200),
				})
			} else if step.Output != "" {
				assistantParts = append(assistantParts, truncate(step.Output, 300))
			}
			if step.Err != "" {
				assistantParts = append(assistantParts, "[Error: "+step.Err+"]")
			}

		case core.StepPlanning:
			if step.Plan != "" {
				reasoning = append(reasoning, step.Plan)
			}

		case core.StepFinalAnswer:
			if step.FinalAnswer != "" {
				assistantParts = append(assistantParts, step.FinalAnswer)
			}
		}
	}

	userText := strings.TrimSpace(strings.Join(userParts, "\n"))
	assistantText := strings.TrimSpace(strings.Join(assistantParts, "\n"))
	if userText == "" && assistantText == "" {
		return core.Exchange{}, false
	}

	if userText == "" {
		userText = "(context from previous steps)"
	}
	if assistantText == "" {
		assistantText = "(actions taken in previous steps)"
	}
	if len(actions) > flushMaxActions {
		actions = actions[:flushMaxActions]
	}
	if len(reasoning) > flushMaxReasoning {
		reasoning = reasoning[:flushMaxReasoning]
	}

	return core.Exchange{
		UserMessage:      userText,
		AssistantMessage: assistantText,
		Actions:          actions,
		Reasoning:        reasoning,
	}, true
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
