package cpm

import (
	"fmt"
	"math"

	"github.com/slacklinehq/slackline/internal/graph"
)

// Analyze runs the critical path method over the task graph: a forward
// pass in topological order computing earliest start/finish, then a
// backward pass computing latest start/finish against each connected
// component's horizon. Float is latest start minus earliest start and is
// never clamped; a critical milestone cap can drive it negative, which
// the conflict detector surfaces.
func Analyze(g *graph.Graph, opts Options) (*ScheduleSnapshot, error) {
	wd := opts.WorkdayMins
	if wd <= 0 {
		wd = DefaultWorkdayMins
	}

	order, err := topoSort(g)
	if err != nil {
		return nil, err
	}

	snap := &ScheduleSnapshot{
		Schedules: make(map[string]*TaskSchedule, len(order)),
		TopoOrder: order,
	}
	for _, id := range order {
		t, _ := g.Task(id)
		snap.Schedules[id] = &TaskSchedule{
			TaskID:       id,
			ProjectID:    t.ProjectID,
			DurationDays: daySpan(t.EstimateMins, wd),
		}
	}

	// Forward pass. Tasks with no predecessors anchor at their explicit
	// start date, or day 0 of the horizon. Constrained tasks take the
	// tightest lower bound over their incoming edges; their stored dates
	// are the conflict detector's concern, not the propagator's.
	for _, id := range order {
		ts := snap.Schedules[id]
		preds := g.Predecessors(id)
		if len(preds) == 0 {
			t, _ := g.Task(id)
			if t.StartDay != nil {
				ts.ES = *t.StartDay
			}
		} else {
			es := math.MinInt
			for _, e := range preds {
				if b := ForwardBound(e, snap.Schedules[e.From], ts.DurationDays); b > es {
					es = b
				}
			}
			ts.ES = es
		}
		ts.EF = ts.ES + ts.DurationDays
	}

	// Horizon per component: the max earliest finish among its members.
	// Classic CPM, so every component has at least one zero-float chain;
	// project deadlines never tighten this, they only raise advisories.
	horizonOf := make(map[string]int, len(order))
	for _, comp := range g.Components() {
		h := math.MinInt
		for _, id := range comp {
			if ef := snap.Schedules[id].EF; ef > h {
				h = ef
			}
		}
		for _, id := range comp {
			horizonOf[id] = h
		}
	}

	// Critical milestone due dates are hard latest-finish caps on their
	// linked tasks and propagate upstream through the backward pass.
	caps := make(map[string]int)
	for _, m := range g.Milestones() {
		if !m.Critical {
			continue
		}
		for _, id := range m.TaskIDs {
			if c, ok := caps[id]; !ok || m.DueDay < c {
				caps[id] = m.DueDay
			}
		}
	}

	// Backward pass in reverse topological order.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		ts := snap.Schedules[id]
		lf := horizonOf[id]
		if c, ok := caps[id]; ok && c < lf {
			lf = c
		}
		for _, e := range g.Successors(id) {
			if b := BackwardBound(e, snap.Schedules[e.To], ts.DurationDays); b < lf {
				lf = b
			}
		}
		ts.LF = lf
		ts.LS = lf - ts.DurationDays
		ts.Float = ts.LS - ts.ES
		ts.Critical = ts.Float == 0
	}

	if len(order) > 0 {
		horizon, minES := math.MinInt, math.MaxInt
		for _, ts := range snap.Schedules {
			if ts.EF > horizon {
				horizon = ts.EF
			}
			if ts.ES < minES {
				minES = ts.ES
			}
		}
		snap.Horizon = horizon
		snap.TotalDays = horizon - minES
	}

	snap.CriticalPaths = ExtractPaths(g, snap.Schedules)
	snap.Summaries, snap.Advisories = Summarize(g, snap.Schedules)

	return snap, nil
}

// ForwardBound is the earliest-start lower bound an edge imposes on its
// successor. Finish-side constraints subtract the successor's duration so
// every type reduces to a bound on the start.
func ForwardBound(e *graph.Edge, pred *TaskSchedule, succDur int) int {
	switch e.Type {
	case graph.StartToStart:
		return pred.ES + e.LagDays
	case graph.FinishToFinish:
		return pred.EF + e.LagDays - succDur
	case graph.StartToFinish:
		return pred.ES + e.LagDays - succDur
	default: // FinishToStart
		return pred.EF + e.LagDays
	}
}

// BackwardBound is the latest-finish upper bound an edge imposes on its
// predecessor, mirroring ForwardBound.
func BackwardBound(e *graph.Edge, succ *TaskSchedule, predDur int) int {
	switch e.Type {
	case graph.StartToStart:
		return succ.LS - e.LagDays + predDur
	case graph.FinishToFinish:
		return succ.LF - e.LagDays
	case graph.StartToFinish:
		return succ.LF - e.LagDays + predDur
	default: // FinishToStart
		return succ.LS - e.LagDays
	}
}

// daySpan converts a minute estimate to whole working days, rounding up.
// Zero stays zero: a zero-duration task models an instantaneous,
// milestone-like step.
func daySpan(mins, workdayMins int) int {
	if mins <= 0 {
		return 0
	}
	return (mins + workdayMins - 1) / workdayMins
}

// topoSort performs Kahn's algorithm for topological sorting.
// Ties are broken by task id for determinism.
func topoSort(g *graph.Graph) ([]string, error) {
	ids := g.TaskIDs()
	inDegree := make(map[string]int, len(ids))
	var queue []string
	for _, id := range ids {
		inDegree[id] = len(g.Predecessors(id))
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var order []string
	for len(queue) > 0 {
		// Pop front
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		// Reduce in-degree of successors; edges are already sorted by
		// successor id, so newly ready tasks arrive in order.
		for _, e := range g.Successors(node) {
			inDegree[e.To]--
			if inDegree[e.To] == 0 {
				queue = append(queue, e.To)
			}
		}
	}

	if len(order) != len(ids) {
		return nil, fmt.Errorf("topological sort failed: graph has a cycle (%d of %d tasks sorted)", len(order), len(ids))
	}

	return order, nil
}
