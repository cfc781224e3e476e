package conflict

import (
	"math"

	"github.com/slacklinehq/slackline/internal/cpm"
	"github.com/slacklinehq/slackline/internal/graph"
)

// Detect compares stored start and due dates against a propagated
// schedule and reports every violation. Completed and cancelled tasks are
// skipped; their dates are history, not constraints. Detection never
// mutates anything and the result is sorted by task id, so two runs over
// the same inputs always agree.
//
// Tasks with no predecessors anchor the forward pass at their stored
// start, so a root can only conflict through its due date or a squeezed
// window.
func Detect(g *graph.Graph, sched map[string]*cpm.TaskSchedule, opts Options) []Conflict {
	var out []Conflict
	for _, id := range g.TaskIDs() {
		ts := sched[id]
		if ts == nil {
			continue
		}
		t, _ := g.Task(id)
		if t.Status == graph.StatusDone || t.Status == graph.StatusCancelled {
			continue
		}
		if ts.Float < 0 {
			out = append(out, newConflict(KindNegativeFloat, id, nil, ts.LS, ts.ES, opts.ToleranceDays))
		}
		if t.StartDay != nil {
			s := *t.StartDay
			if s < ts.ES {
				out = append(out, newConflict(KindStartBeforeBound, id, bindingPred(g, sched, ts), s, ts.ES, opts.ToleranceDays))
			}
			// A start past the latest bound only counts when the window
			// itself is feasible; otherwise the negative float already
			// covers it.
			if ts.Float >= 0 && s > ts.LS {
				out = append(out, newConflict(KindStartPastLatest, id, bindingSucc(g, sched, ts), s, ts.LS, opts.ToleranceDays))
			}
		}
		if t.DueDay != nil && *t.DueDay < ts.EF {
			out = append(out, newConflict(KindDueBeforeFinish, id, bindingPred(g, sched, ts), *t.DueDay, ts.EF, opts.ToleranceDays))
		}
	}
	return out
}

func newConflict(kind Kind, taskID string, edge *graph.Edge, stored, bound, tolerance int) Conflict {
	delta := bound - stored
	if delta < 0 {
		delta = -delta
	}
	sev := SeverityBlocking
	if delta <= tolerance {
		sev = SeverityWarning
	}
	return Conflict{
		ID:        string(kind) + "/" + taskID,
		TaskID:    taskID,
		Kind:      kind,
		Severity:  sev,
		Edge:      edge,
		StoredDay: stored,
		BoundDay:  bound,
		DeltaDays: delta,
	}
}

// bindingPred returns a copy of the incoming edge that set the task's
// earliest start, or nil when the task is an anchored root.
func bindingPred(g *graph.Graph, sched map[string]*cpm.TaskSchedule, ts *cpm.TaskSchedule) *graph.Edge {
	var best *graph.Edge
	bestBound := math.MinInt
	for _, e := range g.Predecessors(ts.TaskID) {
		ps := sched[e.From]
		if ps == nil {
			continue
		}
		if b := cpm.ForwardBound(e, ps, ts.DurationDays); b > bestBound {
			bestBound, best = b, e
		}
	}
	if best == nil || bestBound != ts.ES {
		return nil
	}
	cp := *best
	return &cp
}

// bindingSucc returns a copy of the outgoing edge that set the task's
// latest finish, or nil when the horizon or a milestone cap did.
func bindingSucc(g *graph.Graph, sched map[string]*cpm.TaskSchedule, ts *cpm.TaskSchedule) *graph.Edge {
	var best *graph.Edge
	bestBound := math.MaxInt
	for _, e := range g.Successors(ts.TaskID) {
		ss := sched[e.To]
		if ss == nil {
			continue
		}
		if b := cpm.BackwardBound(e, ss, ts.DurationDays); b < bestBound {
			bestBound, best = b, e
		}
	}
	if best == nil || bestBound != ts.LF {
		return nil
	}
	cp := *best
	return &cp
}
