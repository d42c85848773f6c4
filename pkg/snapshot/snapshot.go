package snapshot

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no snapshot exists for a run.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot captures the engine's position after a completed generation.
// Together with the persisted generation records it is enough to rebuild the
// population and resume an interrupted run.
type Snapshot struct {
	RunID            string    `json:"runId"`
	GenerationID     string    `json:"generationId"`
	GenerationNumber int       `json:"generationNumber"`
	BestScore        float64   `json:"bestScore"`
	TotalCostUSD     float64   `json:"totalCostUsd"`
	VersionIDs       []string  `json:"versionIds"` // population members in selection order
	SavedAt          time.Time `json:"savedAt"`
}

// Store persists one snapshot per run, overwritten after every generation.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, runID string) (Snapshot, error)
	Delete(ctx context.Context, runID string) error
	Close() error
}
