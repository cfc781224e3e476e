package graph

import "fmt"

// Status is a task's lifecycle state.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusBlocked, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Priority is a task's urgency level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ParsePriority converts a string to a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// DepType is the boundary relationship between a predecessor and a
// successor task.
type DepType string

const (
	FinishToStart  DepType = "FS"
	StartToStart   DepType = "SS"
	FinishToFinish DepType = "FF"
	StartToFinish  DepType = "SF"
)

// Valid reports whether d is a known dependency type.
func (d DepType) Valid() bool {
	switch d {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// ParseDepType converts a string to a DepType.
func ParseDepType(s string) (DepType, error) {
	d := DepType(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDepType, s)
	}
	return d, nil
}

// Task is a schedulable unit of work. All date fields are whole-day
// integers relative to the plan epoch; nil means unset. Computed schedule
// fields (earliest/latest start and finish, float) live in the cpm
// package's snapshot, never here.
type Task struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project"`
	Name         string   `json:"name"`
	Status       Status   `json:"status"`
	Priority     Priority `json:"priority"`
	EstimateMins int      `json:"estimate_mins"`
	ActualMins   *int     `json:"actual_mins,omitempty"`
	StartDay     *int     `json:"start_day,omitempty"`
	DueDay       *int     `json:"due_day,omitempty"`
	CompletedDay *int     `json:"completed_day,omitempty"`
	Labels       []string `json:"labels,omitempty"`
}

// Edge is a directed dependency from a predecessor to a successor task.
// LagDays is signed; a negative value is a lead (allowed overlap).
type Edge struct {
	From    string  `json:"from"`
	To      string  `json:"to"`
	Type    DepType `json:"type"`
	LagDays int     `json:"lag_days"`
}

// Key returns the edge's identifier, "from->to". At most one edge exists
// per ordered task pair.
func (e *Edge) Key() string {
	return e.From + "->" + e.To
}

// Project groups tasks and carries an optional deadline. A deadline is
// advisory: scheduling past it raises a warning, never a hard failure.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DeadlineDay *int   `json:"deadline_day,omitempty"`
}

// Milestone marks a target date for a set of linked tasks within one
// project. A critical milestone's due date acts as a hard latest-finish
// cap on its linked tasks during propagation.
type Milestone struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project"`
	Name         string   `json:"name"`
	DueDay       int      `json:"due_day"`
	Critical     bool     `json:"critical"`
	Completed    bool     `json:"completed"`
	CompletedDay *int     `json:"completed_day,omitempty"`
	TaskIDs      []string `json:"tasks"`
}
