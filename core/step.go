package core

// StepKind classifies an agent execution step.
type StepKind string

const (
	StepTask        StepKind = "task"
	StepAction      StepKind = "action"
	StepPlanning    StepKind = "planning"
	StepFinalAnswer StepKind = "final_answer"
)

// Step is one entry of an agent's execution history. The compaction flush
// reconstructs a synthetic Exchange from the steps a context-compression
// pass is about to discard, so facts in them survive the trim.
type Step struct {
	Kind StepKind

	// Task content (StepTask).
	Task string

	// Tool call details (StepAction).
	Tool   string
	Args   map[string]any
	Output string
	Err    string

	// Plan text (StepPlanning).
	Plan string

	// Final answer text (StepFinalAnswer).
	FinalAnswer string
}
