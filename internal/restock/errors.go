package restock

import (
	"errors"
	"fmt"

	"github.com/andresuchdata/autorestock/internal/domain"
)

// ErrRunFailure marks failures that abort a whole run. It is the only error
// class returned by Orchestrator.Run.
var ErrRunFailure = errors.New("restock run failure")

// ComputationError is a fault confined to one product. The run records it
// and moves on.
type ComputationError struct {
	Key domain.ProductKey
	Err error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("product %s: %v", e.Key, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

func runFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRunFailure, op, err)
}
