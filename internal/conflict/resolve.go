package conflict

import (
	"context"
	"fmt"
	"strconv"

	"github.com/slacklinehq/slackline/internal/cpm"
	"github.com/slacklinehq/slackline/internal/graph"
)

// Resolve applies one resolution strategy to the graph and reports what
// happened: the edits made, whether the target conflict cleared, and any
// conflicts the edit introduced elsewhere. The graph is mutated in place
// and may hold partial edits when an error comes back, so callers hand in
// a clone and commit it only on success.
//
// The target is re-detected against the graph as given, so a stale
// conflict from an older snapshot yields ErrConflictNotFound rather than
// a misdirected edit.
func Resolve(ctx context.Context, g *graph.Graph, c Conflict, r Resolution, opts Options) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.ClosureBudget <= 0 {
		opts.ClosureBudget = DefaultClosureBudget
	}
	cpmOpts := cpm.Options{WorkdayMins: opts.WorkdayMins}

	before, err := cpm.Analyze(g, cpmOpts)
	if err != nil {
		return nil, err
	}
	beforeConfs := Detect(g, before.Schedules, opts)
	beforeIDs := make(map[string]bool, len(beforeConfs))
	found := false
	for _, bc := range beforeConfs {
		beforeIDs[bc.ID] = true
		if bc.ID == c.ID {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrConflictNotFound, c.ID)
	}

	var (
		changes    []Change
		after      *cpm.ScheduleSnapshot
		afterConfs []Conflict
	)
	switch r.Strategy {
	case StrategyShiftDates:
		changes, err = shiftDates(ctx, g, c, r, opts)
	case StrategyInsertBuffer:
		changes, err = insertBuffer(g, c, r)
	case StrategyRetypeEdge:
		changes, after, afterConfs, err = retypeEdge(ctx, g, c, r, opts, beforeIDs, cpmOpts)
	case StrategyRemoveEdge:
		changes, err = removeEdge(g, c, r)
	default:
		err = fmt.Errorf("%w: %q", ErrInvalidStrategy, r.Strategy)
	}
	if err != nil {
		return nil, err
	}

	if after == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		after, err = cpm.Analyze(g, cpmOpts)
		if err != nil {
			return nil, err
		}
		afterConfs = Detect(g, after.Schedules, opts)
	}

	out := &Outcome{
		ConflictID:      c.ID,
		Strategy:        r.Strategy,
		Resolved:        true,
		Changes:         changes,
		Remaining:       afterConfs,
		TotalDaysBefore: before.TotalDays,
		TotalDaysAfter:  after.TotalDays,
	}
	for _, ac := range afterConfs {
		if ac.ID == c.ID {
			out.Resolved = false
		}
		if !beforeIDs[ac.ID] {
			out.Introduced = append(out.Introduced, ac)
		}
	}
	return out, nil
}

// shiftDates moves the task's stored dates to the computed bound: start
// forward to the earliest start, start back to the latest start, or due
// out to the earliest finish, depending on the conflict kind. With
// Cascade the same delta is applied to every stored date downstream of
// the task, bounded by the closure budget.
func shiftDates(ctx context.Context, g *graph.Graph, c Conflict, r Resolution, opts Options) ([]Change, error) {
	t, ok := g.Task(c.TaskID)
	if !ok {
		return nil, graph.ErrTaskNotFound
	}

	var delta int
	includeStart := false
	switch c.Kind {
	case KindNegativeFloat:
		return nil, fmt.Errorf("%w: %s is structural and cannot be cleared by moving stored dates", ErrInvalidStrategy, c.Kind)
	case KindDueBeforeFinish:
		if t.DueDay == nil {
			return nil, fmt.Errorf("task %s has no stored due date to shift", c.TaskID)
		}
		delta = c.BoundDay - *t.DueDay
	case KindStartBeforeBound, KindStartPastLatest:
		if t.StartDay == nil {
			return nil, fmt.Errorf("task %s has no stored start date to shift", c.TaskID)
		}
		delta = c.BoundDay - *t.StartDay
		includeStart = true
	default:
		return nil, fmt.Errorf("%w: cannot shift dates for %s", ErrInvalidStrategy, c.Kind)
	}

	changes, err := shiftStored(g, c.TaskID, delta, includeStart)
	if err != nil {
		return nil, err
	}
	if !r.Cascade || delta == 0 {
		return changes, nil
	}
	closure, err := downstreamClosure(ctx, g, c.TaskID, opts.ClosureBudget)
	if err != nil {
		return nil, err
	}
	for _, id := range closure {
		ch, err := shiftStored(g, id, delta, true)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch...)
	}
	return changes, nil
}

// shiftStored applies delta to one task's stored due date and, when
// includeStart is set, its stored start. Both fields move in a single
// update so the record stays consistent.
func shiftStored(g *graph.Graph, id string, delta int, includeStart bool) ([]Change, error) {
	t, ok := g.Task(id)
	if !ok {
		return nil, graph.ErrTaskNotFound
	}
	cp := *t
	var changes []Change
	if includeStart && t.StartDay != nil {
		ns := *t.StartDay + delta
		cp.StartDay = &ns
		changes = append(changes, Change{Op: "set_start", TaskID: id, Old: dayString(t.StartDay), New: strconv.Itoa(ns)})
	}
	if t.DueDay != nil {
		nd := *t.DueDay + delta
		cp.DueDay = &nd
		changes = append(changes, Change{Op: "set_due", TaskID: id, Old: dayString(t.DueDay), New: strconv.Itoa(nd)})
	}
	if len(changes) == 0 {
		return nil, nil
	}
	// UpdateTask clones on store, so the shallow copy is safe to hand over.
	if err := g.UpdateTask(&cp); err != nil {
		return nil, err
	}
	return changes, nil
}

// insertBuffer widens (or with a negative count narrows) the lag on the
// binding edge. Only meaningful when the conflict traces to an edge.
func insertBuffer(g *graph.Graph, c Conflict, r Resolution) ([]Change, error) {
	if c.Edge == nil {
		return nil, fmt.Errorf("%w: %s is not bound by a dependency edge", ErrInvalidStrategy, c.ID)
	}
	if r.BufferDays == 0 {
		return nil, fmt.Errorf("%w: a zero-day buffer changes nothing", ErrInvalidStrategy)
	}
	e, ok := g.Edge(c.Edge.From, c.Edge.To)
	if !ok {
		return nil, graph.ErrEdgeNotFound
	}
	// Capture before UpdateEdge: e is the stored edge, not a copy.
	oldLag := e.LagDays
	newLag := oldLag + r.BufferDays
	if err := g.UpdateEdge(e.From, e.To, e.Type, newLag); err != nil {
		return nil, err
	}
	return []Change{{
		Op:      "set_lag",
		EdgeKey: e.Key(),
		Old:     strconv.Itoa(oldLag),
		New:     strconv.Itoa(newLag),
	}}, nil
}

// retypeCandidates is the order automatic retyping tries: overlap the
// tasks first, then align their finishes, before the exotic types.
var retypeCandidates = []graph.DepType{
	graph.StartToStart,
	graph.FinishToFinish,
	graph.FinishToStart,
	graph.StartToFinish,
}

// retypeEdge changes the binding edge's dependency type. An explicit
// NewType is applied as asked. With no NewType each candidate type is
// trialed against a fresh analysis and the first one that clears the
// conflict without introducing new ones wins; if none does, the edge is
// restored and the strategy rejected.
func retypeEdge(ctx context.Context, g *graph.Graph, c Conflict, r Resolution, opts Options, beforeIDs map[string]bool, cpmOpts cpm.Options) ([]Change, *cpm.ScheduleSnapshot, []Conflict, error) {
	if c.Edge == nil {
		return nil, nil, nil, fmt.Errorf("%w: %s is not bound by a dependency edge", ErrInvalidStrategy, c.ID)
	}
	cur, ok := g.Edge(c.Edge.From, c.Edge.To)
	if !ok {
		return nil, nil, nil, graph.ErrEdgeNotFound
	}
	orig := *cur

	if r.NewType != "" {
		if !r.NewType.Valid() {
			return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidStrategy, graph.ErrInvalidDepType)
		}
		if r.NewType == orig.Type {
			return nil, nil, nil, fmt.Errorf("%w: edge %s already has type %s", ErrInvalidStrategy, orig.Key(), orig.Type)
		}
		if err := g.UpdateEdge(orig.From, orig.To, r.NewType, orig.LagDays); err != nil {
			return nil, nil, nil, err
		}
		return []Change{setType(&orig, r.NewType)}, nil, nil, nil
	}

	for _, cand := range retypeCandidates {
		if cand == orig.Type {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}
		if err := g.UpdateEdge(orig.From, orig.To, cand, orig.LagDays); err != nil {
			return nil, nil, nil, err
		}
		snap, err := cpm.Analyze(g, cpmOpts)
		if err != nil {
			return nil, nil, nil, err
		}
		confs := Detect(g, snap.Schedules, opts)
		if accepts(confs, c.ID, beforeIDs) {
			return []Change{setType(&orig, cand)}, snap, confs, nil
		}
	}
	if err := g.UpdateEdge(orig.From, orig.To, orig.Type, orig.LagDays); err != nil {
		return nil, nil, nil, err
	}
	return nil, nil, nil, fmt.Errorf("%w: no dependency type on %s clears %s", ErrInvalidStrategy, orig.Key(), c.ID)
}

// accepts reports whether a trial retype cleared the target without
// introducing fresh conflicts.
func accepts(confs []Conflict, targetID string, beforeIDs map[string]bool) bool {
	for _, cf := range confs {
		if cf.ID == targetID {
			return false
		}
		if !beforeIDs[cf.ID] {
			return false
		}
	}
	return true
}

// removeEdge drops the binding dependency outright. Destructive, so the
// caller must set Confirm.
func removeEdge(g *graph.Graph, c Conflict, r Resolution) ([]Change, error) {
	if c.Edge == nil {
		return nil, fmt.Errorf("%w: %s is not bound by a dependency edge", ErrInvalidStrategy, c.ID)
	}
	if !r.Confirm {
		return nil, fmt.Errorf("%w: %s", ErrConfirmationRequired, c.Edge.Key())
	}
	e, ok := g.Edge(c.Edge.From, c.Edge.To)
	if !ok {
		return nil, graph.ErrEdgeNotFound
	}
	old := fmt.Sprintf("%s lag %d", e.Type, e.LagDays)
	if err := g.RemoveEdge(e.From, e.To); err != nil {
		return nil, err
	}
	return []Change{{
		Op:      "remove_edge",
		EdgeKey: c.Edge.Key(),
		Old:     old,
		New:     "",
	}}, nil
}

// downstreamClosure walks successor edges breadth-first from start and
// returns every reachable task except start itself, in visit order. The
// budget counts visited tasks including start.
func downstreamClosure(ctx context.Context, g *graph.Graph, start string, budget int) ([]string, error) {
	seen := map[string]bool{start: true}
	queue := []string{start}
	var order []string
	visited := 0
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visited++
		if visited > budget {
			return nil, fmt.Errorf("%w: downstream closure of %s exceeds %d tasks", ErrBudgetExhausted, start, budget)
		}
		node := queue[0]
		queue = queue[1:]
		if node != start {
			order = append(order, node)
		}
		for _, e := range g.Successors(node) {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return order, nil
}

func setType(e *graph.Edge, typ graph.DepType) Change {
	return Change{Op: "set_type", EdgeKey: e.Key(), Old: string(e.Type), New: string(typ)}
}

func dayString(d *int) string {
	if d == nil {
		return ""
	}
	return strconv.Itoa(*d)
}
