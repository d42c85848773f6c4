package operator

import (
	"errors"
	"fmt"

	"github.com/eenlars/evoflow/pkg/llm"
)

// GenerationError is a failed attempt to produce a new or mutated workflow.
// The partial cost of the failed model call is carried so the run budget is
// still charged for it.
type GenerationError struct {
	UsdCost float64
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("workflow generation failed after $%.4f: %v", e.UsdCost, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ValidationError is a mutated workflow the repair step could not bring into
// DAG-valid form. The mutation is discarded; spend already incurred is
// carried.
type ValidationError struct {
	UsdCost float64
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mutated workflow failed validation after $%.4f: %v", e.UsdCost, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// CostOf extracts the partial spend carried by an operator or model-call
// error, or 0.
func CostOf(err error) float64 {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.UsdCost
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.UsdCost
	}
	return llm.CostFromError(err)
}
