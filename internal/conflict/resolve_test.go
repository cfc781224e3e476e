package conflict

import (
	"context"
	"errors"
	"testing"

	"github.com/slacklinehq/slackline/internal/graph"
)

func resolveOn(t *testing.T, g *graph.Graph, kind Kind, taskID string, r Resolution, opts Options) *Outcome {
	t.Helper()
	c := findConflict(t, detect(t, g, opts.ToleranceDays), kind, taskID)
	out, err := Resolve(context.Background(), g, c, r, opts)
	if err != nil {
		t.Fatalf("resolve %s: %v", c.ID, err)
	}
	return out
}

func TestResolve_ShiftStartForward(t *testing.T) {
	// A(5d) -> B(3d), B stored for day 3 with due day 6. Shifting moves
	// start to the bound and drags the due date along, clearing the due
	// violation as a side effect.
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTaskDated(t, g, "b", 3*480, day(3), day(6))
	addEdge(t, g, "a", "b", graph.FinishToStart, 0)

	out := resolveOn(t, g, KindStartBeforeBound, "b", Resolution{Strategy: StrategyShiftDates}, Options{ToleranceDays: 1})

	if !out.Resolved {
		t.Error("expected conflict resolved")
	}
	if len(out.Remaining) != 0 || len(out.Introduced) != 0 {
		t.Errorf("expected clean plan, remaining=%+v introduced=%+v", out.Remaining, out.Introduced)
	}
	if len(out.Changes) != 2 {
		t.Fatalf("expected start and due change, got %+v", out.Changes)
	}
	if out.Changes[0].Op != "set_start" || out.Changes[0].New != "5" {
		t.Errorf("unexpected start change %+v", out.Changes[0])
	}
	if out.Changes[1].Op != "set_due" || out.Changes[1].New != "8" {
		t.Errorf("unexpected due change %+v", out.Changes[1])
	}
	b, _ := g.Task("b")
	if b.StartDay == nil || *b.StartDay != 5 || b.DueDay == nil || *b.DueDay != 8 {
		t.Errorf("stored dates not updated: %+v", b)
	}
}

func TestResolve_ShiftStartBack(t *testing.T) {
	// C(2d) -> A(10d)
	// C(2d) -> B(3d)   B stored past its latest start; shifting pulls it back.
	g := testGraph(t)
	addTask(t, g, "a", 10*480)
	addTaskDated(t, g, "b", 3*480, day(10), nil)
	addTask(t, g, "c", 2*480)
	addEdge(t, g, "c", "a", graph.FinishToStart, 0)
	addEdge(t, g, "c", "b", graph.FinishToStart, 0)

	out := resolveOn(t, g, KindStartPastLatest, "b", Resolution{Strategy: StrategyShiftDates}, Options{ToleranceDays: 0})

	if !out.Resolved || len(out.Remaining) != 0 {
		t.Errorf("expected resolution, got %+v", out)
	}
	b, _ := g.Task("b")
	if *b.StartDay != 9 {
		t.Errorf("expected start pulled back to 9, got %d", *b.StartDay)
	}
}

func TestResolve_ShiftDueOut(t *testing.T) {
	// A(5d) due day 3: the due date moves out to the earliest finish, the
	// start is left alone.
	g := testGraph(t)
	addTaskDated(t, g, "a", 5*480, nil, day(3))

	out := resolveOn(t, g, KindDueBeforeFinish, "a", Resolution{Strategy: StrategyShiftDates}, Options{ToleranceDays: 1})

	if !out.Resolved {
		t.Error("expected conflict resolved")
	}
	if len(out.Changes) != 1 || out.Changes[0].Op != "set_due" || out.Changes[0].New != "5" {
		t.Errorf("unexpected changes %+v", out.Changes)
	}
	a, _ := g.Task("a")
	if a.StartDay != nil {
		t.Error("shift of a due date must not invent a start date")
	}
}

func TestResolve_ShiftCascade(t *testing.T) {
	// A(5d) -> B(3d) -> C(2d), stored dates laid out as if B started day
	// 3. Cascading the 2-day correction moves C's stored plan with it.
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTaskDated(t, g, "b", 3*480, day(3), nil)
	addTaskDated(t, g, "c", 2*480, day(6), day(8))
	addEdge(t, g, "a", "b", graph.FinishToStart, 0)
	addEdge(t, g, "b", "c", graph.FinishToStart, 0)

	out := resolveOn(t, g, KindStartBeforeBound, "b", Resolution{Strategy: StrategyShiftDates, Cascade: true}, Options{ToleranceDays: 1})

	if !out.Resolved || len(out.Remaining) != 0 || len(out.Introduced) != 0 {
		t.Errorf("expected cascade to clear the plan, got %+v", out)
	}
	c, _ := g.Task("c")
	if *c.StartDay != 8 || *c.DueDay != 10 {
		t.Errorf("expected c shifted to 8..10, got start=%d due=%d", *c.StartDay, *c.DueDay)
	}
}

func TestResolve_ShiftRefusesNegativeFloat(t *testing.T) {
	// An infeasible window cannot be fixed by moving stored dates around.
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTask(t, g, "b", 5*480)
	addEdge(t, g, "a", "b", graph.FinishToStart, 0)
	if err := g.AddMilestone(&graph.Milestone{ID: "m1", ProjectID: "proj", DueDay: 8, Critical: true, TaskIDs: []string{"b"}}); err != nil {
		t.Fatalf("add milestone: %v", err)
	}

	c := findConflict(t, detect(t, g, 1), KindNegativeFloat, "b")
	_, err := Resolve(context.Background(), g, c, Resolution{Strategy: StrategyShiftDates}, Options{ToleranceDays: 1})
	if !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("expected ErrInvalidStrategy, got %v", err)
	}
}

func TestResolve_InsertBuffer(t *testing.T) {
	// A(5d) -FS lag 2-> B(3d), B stored for day 5. A negative buffer eats
	// the lag so the stored plan fits.
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTaskDated(t, g, "b", 3*480, day(5), nil)
	addEdge(t, g, "a", "b", graph.FinishToStart, 2)

	out := resolveOn(t, g, KindStartBeforeBound, "b", Resolution{Strategy: StrategyInsertBuffer, BufferDays: -2}, Options{ToleranceDays: 1})

	if !out.Resolved || len(out.Introduced) != 0 {
		t.Errorf("expected resolution, got %+v", out)
	}
	if len(out.Changes) != 1 || out.Changes[0].Op != "set_lag" || out.Changes[0].Old != "2" || out.Changes[0].New != "0" {
		t.Errorf("unexpected changes %+v", out.Changes)
	}
	e, _ := g.Edge("a", "b")
	if e.LagDays != 0 {
		t.Errorf("expected lag 0, got %d", e.LagDays)
	}
}

func TestResolve_InsertBufferNeedsEdgeAndDays(t *testing.T) {
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTaskDated(t, g, "b", 3*480, day(3), nil)
	addEdge(t, g, "a", "b", graph.FinishToStart, 0)

	c := findConflict(t, detect(t, g, 1), KindStartBeforeBound, "b")
	if _, err := Resolve(context.Background(), g, c, Resolution{Strategy: StrategyInsertBuffer}, Options{ToleranceDays: 1}); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("zero-day buffer: expected ErrInvalidStrategy, got %v", err)
	}

	// Horizon-bound conflicts have no edge to buffer.
	g2 := testGraph(t)
	addTask(t, g2, "a", 5*480)
	addTask(t, g2, "b", 5*480)
	addEdge(t, g2, "a", "b", graph.FinishToStart, 0)
	if err := g2.AddMilestone(&graph.Milestone{ID: "m1", ProjectID: "proj", DueDay: 8, Critical: true, TaskIDs: []string{"b"}}); err != nil {
		t.Fatalf("add milestone: %v", err)
	}
	c2 := findConflict(t, detect(t, g2, 1), KindNegativeFloat, "b")
	if _, err := Resolve(context.Background(), g2, c2, Resolution{Strategy: StrategyInsertBuffer, BufferDays: 2}, Options{ToleranceDays: 1}); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("edgeless conflict: expected ErrInvalidStrategy, got %v", err)
	}
}

func TestResolve_RetypeAuto(t *testing.T) {
	// A(5d) -FS-> B(3d), B stored for day 2. Overlapping via SS drops B's
	// bound to day 0 and the stored plan fits without new conflicts.
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTaskDated(t, g, "b", 3*480, day(2), nil)
	addEdge(t, g, "a", "b", graph.FinishToStart, 0)

	out := resolveOn(t, g, KindStartBeforeBound, "b", Resolution{Strategy: StrategyRetypeEdge}, Options{ToleranceDays: 1})

	if !out.Resolved || len(out.Introduced) != 0 {
		t.Errorf("expected resolution, got %+v", out)
	}
	if len(out.Changes) != 1 || out.Changes[0].Op != "set_type" || out.Changes[0].New != "SS" {
		t.Errorf("expected FS->SS retype, got %+v", out.Changes)
	}
	e, _ := g.Edge("a", "b")
	if e.Type != graph.StartToStart {
		t.Errorf("expected edge retyped to SS, got %s", e.Type)
	}
}

func TestResolve_RetypeExplicit(t *testing.T) {
	// Same shape, but the caller asks for FF: B must finish after A, so
	// its bound becomes day 2 and the stored start fits exactly.
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTaskDated(t, g, "b", 3*480, day(2), nil)
	addEdge(t, g, "a", "b", graph.FinishToStart, 0)

	out := resolveOn(t, g, KindStartBeforeBound, "b", Resolution{Strategy: StrategyRetypeEdge, NewType: graph.FinishToFinish}, Options{ToleranceDays: 1})

	if !out.Resolved {
		t.Errorf("expected resolution, got %+v", out)
	}
	e, _ := g.Edge("a", "b")
	if e.Type != graph.FinishToFinish {
		t.Errorf("expected edge retyped to FF, got %s", e.Type)
	}
}

func TestResolve_RetypeExhaustedRestores(t *testing.T) {
	// B stored at day -5, earlier than any dependency type can allow. The
	// trial loop must put the original edge back.
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTaskDated(t, g, "b", 3*480, day(-5), nil)
	addEdge(t, g, "a", "b", graph.FinishToStart, 0)

	c := findConflict(t, detect(t, g, 1), KindStartBeforeBound, "b")
	_, err := Resolve(context.Background(), g, c, Resolution{Strategy: StrategyRetypeEdge}, Options{ToleranceDays: 1})
	if !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("expected ErrInvalidStrategy, got %v", err)
	}
	e, _ := g.Edge("a", "b")
	if e.Type != graph.FinishToStart || e.LagDays != 0 {
		t.Errorf("edge not restored: %+v", e)
	}
}

func TestResolve_RemoveEdgeNeedsConfirm(t *testing.T) {
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTaskDated(t, g, "b", 3*480, day(3), nil)
	addEdge(t, g, "a", "b", graph.FinishToStart, 0)

	c := findConflict(t, detect(t, g, 1), KindStartBeforeBound, "b")
	_, err := Resolve(context.Background(), g, c, Resolution{Strategy: StrategyRemoveEdge}, Options{ToleranceDays: 1})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
	if _, ok := g.Edge("a", "b"); !ok {
		t.Error("edge must survive a refused removal")
	}
}

func TestResolve_RemoveEdge(t *testing.T) {
	// Dropping the dependency makes B a root anchored at its stored
	// start, so the conflict disappears and the plan shortens.
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTaskDated(t, g, "b", 3*480, day(3), nil)
	addEdge(t, g, "a", "b", graph.FinishToStart, 0)

	out := resolveOn(t, g, KindStartBeforeBound, "b", Resolution{Strategy: StrategyRemoveEdge, Confirm: true}, Options{ToleranceDays: 1})

	if !out.Resolved || len(out.Remaining) != 0 {
		t.Errorf("expected resolution, got %+v", out)
	}
	if len(out.Changes) != 1 || out.Changes[0].Op != "remove_edge" || out.Changes[0].Old != "FS lag 0" {
		t.Errorf("unexpected changes %+v", out.Changes)
	}
	if _, ok := g.Edge("a", "b"); ok {
		t.Error("edge still present after removal")
	}
	if out.TotalDaysBefore != 8 || out.TotalDaysAfter != 6 {
		t.Errorf("expected span 8 -> 6, got %d -> %d", out.TotalDaysBefore, out.TotalDaysAfter)
	}
}

func TestResolve_StaleConflict(t *testing.T) {
	g := testGraph(t)
	addTask(t, g, "a", 5*480)

	stale := Conflict{ID: "start_before_bound/zzz", TaskID: "zzz", Kind: KindStartBeforeBound}
	_, err := Resolve(context.Background(), g, stale, Resolution{Strategy: StrategyShiftDates}, Options{})
	if !errors.Is(err, ErrConflictNotFound) {
		t.Fatalf("expected ErrConflictNotFound, got %v", err)
	}
}

func TestResolve_CascadeBudget(t *testing.T) {
	// r(5d) -> t1(1d) -> t2 -> t3 -> t4: a budget of 3 runs out before
	// the closure is walked.
	g := testGraph(t)
	addTask(t, g, "r", 5*480)
	addTaskDated(t, g, "t1", 1*480, day(3), nil)
	addTask(t, g, "t2", 1*480)
	addTask(t, g, "t3", 1*480)
	addTask(t, g, "t4", 1*480)
	addEdge(t, g, "r", "t1", graph.FinishToStart, 0)
	addEdge(t, g, "t1", "t2", graph.FinishToStart, 0)
	addEdge(t, g, "t2", "t3", graph.FinishToStart, 0)
	addEdge(t, g, "t3", "t4", graph.FinishToStart, 0)

	c := findConflict(t, detect(t, g, 1), KindStartBeforeBound, "t1")
	_, err := Resolve(context.Background(), g, c, Resolution{Strategy: StrategyShiftDates, Cascade: true}, Options{ToleranceDays: 1, ClosureBudget: 3})
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
}

func TestResolve_ContextCancelled(t *testing.T) {
	g := testGraph(t)
	addTask(t, g, "a", 5*480)
	addTaskDated(t, g, "b", 3*480, day(3), nil)
	addEdge(t, g, "a", "b", graph.FinishToStart, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := findConflict(t, detect(t, g, 1), KindStartBeforeBound, "b")
	if _, err := Resolve(ctx, g, c, Resolution{Strategy: StrategyShiftDates}, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"shift_dates", "insert_buffer", "retype_edge", "remove_edge"} {
		if _, err := ParseStrategy(s); err != nil {
			t.Errorf("ParseStrategy(%q): %v", s, err)
		}
	}
	if _, err := ParseStrategy("explode"); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("expected ErrInvalidStrategy, got %v", err)
	}
}
