package models

import "time"

type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusInterrupted RunStatus = "interrupted"

	// RunStatusStale is a read-side classification for abandoned runs.
	// It is never written to storage.
	RunStatusStale RunStatus = "stale"
)

// StaleRunThreshold is how long a run may stay "running" before read-side
// logic reports it as stale.
const StaleRunThreshold = 5 * time.Hour

// Run is one full evolutionary optimization session.
type Run struct {
	ID           string     `json:"id" db:"id"`                         // UUID
	WorkflowID   string     `json:"workflow_id" db:"workflow_id"`       // Registered workflow being evolved
	Goal         string     `json:"goal" db:"goal"`                     // What the run optimizes toward
	Status       RunStatus  `json:"status" db:"status"`                 // running, completed, failed, interrupted
	ErrorMsg     string     `json:"error,omitempty" db:"error_msg"`     // Failure message when status is failed
	TotalCostUSD float64    `json:"total_cost_usd" db:"total_cost_usd"` // Cumulative spend across all generations
	StartTime    time.Time  `json:"start_time" db:"start_time"`         // Run start
	EndTime      *time.Time `json:"end_time,omitempty" db:"end_time"`   // Nullable run end
}

// EffectiveStatus classifies the run for display. A run still "running" more
// than StaleRunThreshold after its start is reported as stale; the stored
// status is left untouched.
func (r Run) EffectiveStatus(now time.Time) RunStatus {
	if r.Status == RunStatusRunning && now.Sub(r.StartTime) > StaleRunThreshold {
		return RunStatusStale
	}
	return r.Status
}

// Generation is one iteration of the evolve-evaluate-select loop.
type Generation struct {
	ID        string     `json:"id" db:"id"`                       // UUID
	RunID     string     `json:"run_id" db:"run_id"`               // Foreign key to Run
	Number    int        `json:"number" db:"number"`               // 1-based generation counter
	Comment   string     `json:"comment,omitempty" db:"comment"`   // Optional operator note
	BestScore float64    `json:"best_score" db:"best_score"`       // Best fitness score in the generation
	CostUSD   float64    `json:"cost_usd" db:"cost_usd"`           // Spend attributed to the generation
	StartTime time.Time  `json:"start_time" db:"start_time"`       // Generation start
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"` // Null until the generation completes
}

// Completed reports whether the generation finished.
func (g Generation) Completed() bool {
	return g.EndTime != nil
}
