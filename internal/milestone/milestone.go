package milestone

import (
	"fmt"
	"math"

	"github.com/slacklinehq/slackline/internal/cpm"
	"github.com/slacklinehq/slackline/internal/graph"
)

// Risk classifies a milestone against its due date.
type Risk string

const (
	RiskOnTrack Risk = "on_track"
	RiskOfDelay Risk = "at_risk"
	RiskOverdue Risk = "overdue"
)

// DefaultPaceThreshold is the completion-to-expected ratio below which a
// milestone is flagged at risk even when its projection still fits.
const DefaultPaceThreshold = 0.9

// Options tune the risk classification.
type Options struct {
	ToleranceDays int     // projected slip past the due date tolerated before flagging
	PaceThreshold float64 // minimum acceptable pace ratio; 0 means DefaultPaceThreshold
}

// Status is the evaluated state of one milestone.
type Status struct {
	MilestoneID   string  `json:"milestone_id"`
	ProjectID     string  `json:"project_id"`
	Name          string  `json:"name,omitempty"`
	DueDay        int     `json:"due_day"`
	Critical      bool    `json:"critical"`
	Completed     bool    `json:"completed"`
	LinkedTasks   int     `json:"linked_tasks"`
	DoneTasks     int     `json:"done_tasks"`
	CompletionPct float64 `json:"completion_pct"`
	ProjectedDay  int     `json:"projected_day"`
	Risk          Risk    `json:"risk"`
}

// Evaluate computes completion and risk for one milestone as of today,
// a whole-day offset from the plan epoch. Completion is weighted by task
// estimates; cancelled tasks drop out of both sides of the ratio, and
// when every countable estimate is zero the weighting falls back to task
// counts. A milestone whose countable links are empty has no defined
// completion, which surfaces as ErrNoLinkedTasks.
func Evaluate(g *graph.Graph, sched map[string]*cpm.TaskSchedule, milestoneID string, today int, opts Options) (*Status, error) {
	m, ok := g.Milestone(milestoneID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", graph.ErrMilestoneNotFound, milestoneID)
	}
	if opts.PaceThreshold <= 0 {
		opts.PaceThreshold = DefaultPaceThreshold
	}

	var (
		totalMins, doneMins int
		countable, done     int
		projected           = math.MinInt
		windowStart         = math.MaxInt
	)
	for _, id := range m.TaskIDs {
		t, ok := g.Task(id)
		if !ok {
			continue
		}
		if t.Status == graph.StatusCancelled {
			continue
		}
		countable++
		totalMins += t.EstimateMins
		if t.Status == graph.StatusDone {
			done++
			doneMins += t.EstimateMins
		}
		if ts := sched[id]; ts != nil {
			if ts.EF > projected {
				projected = ts.EF
			}
			if ts.ES < windowStart {
				windowStart = ts.ES
			}
		}
	}
	if countable == 0 {
		return nil, fmt.Errorf("%w: milestone %q", graph.ErrNoLinkedTasks, milestoneID)
	}

	pct := 0.0
	if totalMins > 0 {
		pct = 100 * float64(doneMins) / float64(totalMins)
	} else {
		// All-zero estimates: fall back to counting tasks.
		pct = 100 * float64(done) / float64(countable)
	}

	st := &Status{
		MilestoneID:   m.ID,
		ProjectID:     m.ProjectID,
		Name:          m.Name,
		DueDay:        m.DueDay,
		Critical:      m.Critical,
		Completed:     m.Completed,
		LinkedTasks:   countable,
		DoneTasks:     done,
		CompletionPct: pct,
	}
	if projected != math.MinInt {
		st.ProjectedDay = projected
	}
	if m.Completed && m.CompletedDay != nil {
		st.ProjectedDay = *m.CompletedDay
	}
	st.Risk = classify(st, today, windowStart, opts)
	return st, nil
}

// classify orders the checks from settled to speculative: completion
// first, then the calendar, then the projection, then pace.
func classify(st *Status, today, windowStart int, opts Options) Risk {
	if st.Completed || st.CompletionPct >= 100 {
		return RiskOnTrack
	}
	if today > st.DueDay {
		return RiskOverdue
	}
	if st.ProjectedDay > st.DueDay+opts.ToleranceDays {
		return RiskOfDelay
	}
	// Pace: compare completion against the share of the window already
	// spent. Only meaningful once the window has opened.
	if windowStart != math.MaxInt && today > windowStart && st.DueDay > windowStart {
		expected := 100 * float64(today-windowStart) / float64(st.DueDay-windowStart)
		if expected > 100 {
			expected = 100
		}
		if st.CompletionPct < expected*opts.PaceThreshold {
			return RiskOfDelay
		}
	}
	return RiskOnTrack
}
