package conflict

import (
	"errors"
	"fmt"

	"github.com/slacklinehq/slackline/internal/graph"
)

// Kind names the way a stored date violates the propagated schedule.
type Kind string

const (
	// KindStartBeforeBound: the stored start precedes the earliest start a
	// predecessor constraint allows. StoredDay is the stored start,
	// BoundDay the earliest start.
	KindStartBeforeBound Kind = "start_before_bound"
	// KindStartPastLatest: the stored start is after the latest start that
	// keeps the horizon. StoredDay is the stored start, BoundDay the
	// latest start.
	KindStartPastLatest Kind = "start_past_latest"
	// KindDueBeforeFinish: the stored due date precedes the earliest
	// possible finish. StoredDay is the stored due, BoundDay the earliest
	// finish.
	KindDueBeforeFinish Kind = "due_before_finish"
	// KindNegativeFloat: the window itself is infeasible, typically from a
	// critical-milestone cap. StoredDay is the latest start, BoundDay the
	// earliest start it falls short of.
	KindNegativeFloat Kind = "negative_float"
)

// Severity splits conflicts into advisories and blockers. A violation
// within the configured tolerance is a warning; beyond it, blocking.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityBlocking Severity = "blocking"
)

// Conflict is one violation of the propagated schedule by stored dates
// (or by an infeasible window). Edge, when set, is a copy of the binding
// dependency the violation traces back to; nil means the bound comes
// from the horizon or a milestone cap.
type Conflict struct {
	ID        string      `json:"id"`
	TaskID    string      `json:"task_id"`
	Kind      Kind        `json:"kind"`
	Severity  Severity    `json:"severity"`
	Edge      *graph.Edge `json:"edge,omitempty"`
	StoredDay int         `json:"stored_day"`
	BoundDay  int         `json:"bound_day"`
	DeltaDays int         `json:"delta_days"`
}

// Summary renders a one-line human-readable description.
func (c Conflict) Summary() string {
	via := ""
	if c.Edge != nil {
		via = fmt.Sprintf(" via %s (%s)", c.Edge.Key(), c.Edge.Type)
	}
	switch c.Kind {
	case KindStartBeforeBound:
		return fmt.Sprintf("task %s: stored start day %d precedes required day %d%s", c.TaskID, c.StoredDay, c.BoundDay, via)
	case KindStartPastLatest:
		return fmt.Sprintf("task %s: stored start day %d is past latest viable day %d%s", c.TaskID, c.StoredDay, c.BoundDay, via)
	case KindDueBeforeFinish:
		return fmt.Sprintf("task %s: stored due day %d precedes earliest finish day %d%s", c.TaskID, c.StoredDay, c.BoundDay, via)
	case KindNegativeFloat:
		return fmt.Sprintf("task %s: infeasible window, latest start day %d precedes earliest start day %d", c.TaskID, c.StoredDay, c.BoundDay)
	}
	return fmt.Sprintf("task %s: %s", c.TaskID, c.Kind)
}

// Strategy selects how a resolution reshapes the graph.
type Strategy string

const (
	StrategyShiftDates   Strategy = "shift_dates"
	StrategyInsertBuffer Strategy = "insert_buffer"
	StrategyRetypeEdge   Strategy = "retype_edge"
	StrategyRemoveEdge   Strategy = "remove_edge"
)

// ParseStrategy converts a string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(s)
	switch st {
	case StrategyShiftDates, StrategyInsertBuffer, StrategyRetypeEdge, StrategyRemoveEdge:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
}

// Resolution parameterizes a strategy. Zero values are valid except where
// a strategy requires its knob (InsertBuffer needs BufferDays, RemoveEdge
// needs Confirm).
type Resolution struct {
	Strategy   Strategy      `json:"strategy"`
	Cascade    bool          `json:"cascade,omitempty"`     // shift_dates: move the downstream closure too
	BufferDays int           `json:"buffer_days,omitempty"` // insert_buffer: signed lag delta
	NewType    graph.DepType `json:"new_type,omitempty"`    // retype_edge: explicit target, empty picks automatically
	Confirm    bool          `json:"confirm,omitempty"`     // remove_edge: required acknowledgement
}

// Change records one concrete edit a resolution applies.
type Change struct {
	Op      string `json:"op"` // set_start, set_due, set_lag, set_type, remove_edge
	TaskID  string `json:"task_id,omitempty"`
	EdgeKey string `json:"edge,omitempty"`
	Old     string `json:"old"`
	New     string `json:"new"`
}

// Outcome is the result of applying a strategy: the edits made, whether
// the target conflict cleared, and the full conflict picture afterwards.
// Produced against a clone for previews and against the working graph
// for commits; the math is identical either way.
type Outcome struct {
	ConflictID      string     `json:"conflict_id"`
	Strategy        Strategy   `json:"strategy"`
	Resolved        bool       `json:"resolved"`
	Changes         []Change   `json:"changes"`
	Remaining       []Conflict `json:"remaining"`
	Introduced      []Conflict `json:"introduced,omitempty"`
	TotalDaysBefore int        `json:"total_days_before"`
	TotalDaysAfter  int        `json:"total_days_after"`
}

// DefaultClosureBudget caps how many tasks a cascading shift may visit
// before giving up. Large enough for real plans, small enough that a
// what-if preview cannot stall the caller.
const DefaultClosureBudget = 10000

// Options tune detection severity and resolution evaluation.
type Options struct {
	ToleranceDays int // violations within this many days are warnings, beyond are blocking
	WorkdayMins   int // minutes per working day for re-analysis; 0 means the cpm default
	ClosureBudget int // max tasks a cascade may touch; 0 means DefaultClosureBudget
}

// Errors returned by resolution evaluation. Detection never fails; it
// only reports.
var (
	ErrInvalidStrategy      = errors.New("invalid resolution strategy")
	ErrConfirmationRequired = errors.New("removing a dependency requires confirmation")
	ErrBudgetExhausted      = errors.New("resolution budget exhausted")
	ErrConflictNotFound     = errors.New("conflict not found")
)
