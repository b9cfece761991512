package dedup

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig         = errors.New("invalid dedup config")
	ErrInvalidInput          = errors.New("invalid input")
	ErrComparisonFailure     = errors.New("comparison failure")
	ErrInvalidStrategy       = errors.New("invalid merge strategy")
	ErrInconsistentSelection = errors.New("inconsistent manual selection")
	ErrWorkflowMisuse        = errors.New("workflow misuse")

	// ErrReadOnlyCluster rejects a merge into another creator's question.
	ErrReadOnlyCluster = fmt.Errorf("%w: read-only cluster", ErrInvalidStrategy)
)

// MergeError reports which cluster failed to resolve during finalization.
type MergeError struct {
	Cluster int
	Field   string
	Err     error
}

func (e *MergeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("merge cluster %d field %s: %v", e.Cluster, e.Field, e.Err)
	}
	return fmt.Sprintf("merge cluster %d: %v", e.Cluster, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// fieldError tags a merge failure with the offending field so that
// MergeError can surface it.
type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string { return e.field + ": " + e.err.Error() }

func (e *fieldError) Unwrap() error { return e.err }
