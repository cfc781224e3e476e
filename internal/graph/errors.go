package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by graph mutations and queries. Callers match
// with errors.Is; messages carry the offending identifiers.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrProjectNotFound   = errors.New("project not found")
	ErrMilestoneNotFound = errors.New("milestone not found")
	ErrEdgeNotFound      = errors.New("edge not found")
	ErrDuplicateTask     = errors.New("duplicate task")
	ErrDuplicateEdge     = errors.New("duplicate edge")
	ErrCycleDetected     = errors.New("cycle detected")
	ErrNegativeDuration  = errors.New("negative duration")
	ErrTaskHasDependents = errors.New("task has dependents")
	ErrNoLinkedTasks     = errors.New("milestone has no linked tasks")
	ErrInvalidDepType    = errors.New("invalid dependency type")
)

// CycleError reports a rejected edge insertion that would close a cycle.
// Path holds the full chain of task ids forming the cycle, first and last
// elements equal, e.g. [A B C A].
type CycleError struct {
	Path []string
}

// NewCycleError builds a CycleError from a cycle path.
func NewCycleError(path []string) *CycleError {
	return &CycleError{Path: path}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " → "))
}

// Unwrap lets errors.Is(err, ErrCycleDetected) match.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
