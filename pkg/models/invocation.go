package models

import "time"

type InvocationStatus string

const (
	InvocationStatusRunning   InvocationStatus = "running"
	InvocationStatusCompleted InvocationStatus = "completed"
	InvocationStatusFailed    InvocationStatus = "failed"
)

// WorkflowInvocation is one concrete execution of a workflow version against
// one evaluation input. It is immutable once finalized; aggregated evaluators
// record a single invocation covering all test cases.
type WorkflowInvocation struct {
	ID                string           `json:"id" db:"id"`                                   // UUID
	GenerationID      string           `json:"generation_id" db:"generation_id"`             // Generation the invocation belongs to
	WorkflowVersionID string           `json:"workflow_version_id" db:"workflow_version_id"` // Version that was executed
	Status            InvocationStatus `json:"status" db:"status"`                           // running, completed, failed
	UsdCost           float64          `json:"usd_cost" db:"usd_cost"`                       // Spend for this execution, partial on failure
	Accuracy          float64          `json:"accuracy" db:"accuracy"`                       // Fraction of cases answered correctly
	Fitness           float64          `json:"fitness" db:"fitness"`                         // Fitness score attributed to the execution
	Feedback          string           `json:"feedback,omitempty" db:"feedback"`             // Qualitative feedback from scoring
	ErrorMsg          string           `json:"error,omitempty" db:"error_msg"`               // Failure message when status is failed
	StartTime         time.Time        `json:"start_time" db:"start_time"`                   // Execution start
	EndTime           *time.Time       `json:"end_time,omitempty" db:"end_time"`             // Nullable execution end
}
