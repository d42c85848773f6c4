package models

type EvaluationInputType string

const (
	// InputTypeText scores workflow answers against expected answers.
	InputTypeText EvaluationInputType = "text"
	// InputTypePromptOnly marks inputs whose evaluation is skipped entirely.
	InputTypePromptOnly EvaluationInputType = "prompt-only"
)

// EvaluationCase is one question/expected-answer pair a workflow is scored
// against.
type EvaluationCase struct {
	ID       string `json:"id"`                 // Stable case identifier (e.g., benchmark task id)
	Question string `json:"question"`           // The task given to the workflow
	Expected string `json:"expected,omitempty"` // Ground-truth answer, empty when unknown
	Level    int    `json:"level,omitempty"`    // Difficulty level when the source provides one
	FileName string `json:"fileName,omitempty"` // Attached file the task refers to, if any
}

// EvaluationInput bundles the goal and the cases a population is evaluated
// against.
type EvaluationInput struct {
	Type  EvaluationInputType `json:"type"`
	Goal  string              `json:"goal"`
	Cases []EvaluationCase    `json:"cases,omitempty"`
}
