package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/slacklinehq/slackline/internal/conflict"
	"github.com/slacklinehq/slackline/internal/graph"
	"github.com/slacklinehq/slackline/internal/milestone"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Config{
		Epoch:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Now:    func() time.Time { return time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC) },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := e.AddProject(&graph.Project{ID: "proj", Name: "Test"}); err != nil {
		t.Fatalf("add project: %v", err)
	}
	return e
}

func mustAddTask(t *testing.T, e *Engine, id string, estMins int) {
	t.Helper()
	if err := e.AddTask(&graph.Task{ID: id, ProjectID: "proj", EstimateMins: estMins}); err != nil {
		t.Fatalf("add task %s: %v", id, err)
	}
}

func mustAddEdge(t *testing.T, e *Engine, from, to string) {
	t.Helper()
	if err := e.AddEdge(&graph.Edge{From: from, To: to, Type: graph.FinishToStart}); err != nil {
		t.Fatalf("add edge %s->%s: %v", from, to, err)
	}
}

func TestNew_Defaults(t *testing.T) {
	fixed := time.Date(2026, 3, 8, 15, 30, 0, 0, time.UTC)
	e := New(Config{Now: func() time.Time { return fixed }})

	wantEpoch := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	if !e.Epoch().Equal(wantEpoch) {
		t.Errorf("expected epoch %v, got %v", wantEpoch, e.Epoch())
	}
	if e.Today() != 0 {
		t.Errorf("expected day 0 on the epoch day, got %d", e.Today())
	}
	v := e.Snapshot()
	if v == nil || v.Generation != 0 {
		t.Errorf("expected empty generation-0 view, got %+v", v)
	}
}

func TestLoad_PublishesView(t *testing.T) {
	e := testEngine(t)
	g := graph.New()
	if err := g.AddProject(&graph.Project{ID: "proj"}); err != nil {
		t.Fatalf("add project: %v", err)
	}
	for id, mins := range map[string]int{"a": 5 * 480, "b": 3 * 480} {
		if err := g.AddTask(&graph.Task{ID: id, ProjectID: "proj", EstimateMins: mins}); err != nil {
			t.Fatalf("add task: %v", err)
		}
	}
	if err := g.AddEdge(&graph.Edge{From: "a", To: "b", Type: graph.FinishToStart}); err != nil {
		t.Fatalf("add edge: %v", err)
	}

	before := e.Snapshot().Generation
	v, err := e.Load(g)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if v.Generation != before+1 {
		t.Errorf("expected generation bump, got %d -> %d", before, v.Generation)
	}
	if ts := v.Schedule("b"); ts == nil || ts.ES != 5 || ts.EF != 8 {
		t.Errorf("unexpected schedule for b: %+v", ts)
	}
	if len(v.CriticalPaths) != 1 || len(v.CriticalPaths[0].TaskIDs) != 2 {
		t.Errorf("unexpected critical paths %+v", v.CriticalPaths)
	}

	// The engine keeps its own copy of the loaded graph.
	if err := g.AddTask(&graph.Task{ID: "later", ProjectID: "proj", EstimateMins: 480}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	if e.Snapshot().Graph.TaskCount() != 2 {
		t.Error("mutating the input graph leaked into the engine")
	}
}

func TestLoad_RejectsCycle(t *testing.T) {
	e := testEngine(t)
	g := graph.New()
	if err := g.AddProject(&graph.Project{ID: "proj"}); err != nil {
		t.Fatalf("add project: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if err := g.AddTask(&graph.Task{ID: id, ProjectID: "proj", EstimateMins: 480}); err != nil {
			t.Fatalf("add task: %v", err)
		}
	}
	for _, ed := range []graph.Edge{{From: "a", To: "b"}, {From: "b", To: "a"}} {
		if err := g.StageEdge(&ed); err != nil {
			t.Fatalf("stage edge: %v", err)
		}
	}

	before := e.Snapshot().Generation
	if _, err := e.Load(g); !errors.Is(err, graph.ErrCycleDetected) {
		t.Fatalf("expected cycle rejection, got %v", err)
	}
	if e.Snapshot().Generation != before {
		t.Error("failed load must not publish a view")
	}
}

func TestAddEdge_CycleLeavesViewUntouched(t *testing.T) {
	e := testEngine(t)
	mustAddTask(t, e, "a", 5*480)
	mustAddTask(t, e, "b", 3*480)
	mustAddEdge(t, e, "a", "b")

	before := e.Snapshot()
	err := e.AddEdge(&graph.Edge{From: "b", To: "a", Type: graph.FinishToStart})
	if !errors.Is(err, graph.ErrCycleDetected) {
		t.Fatalf("expected cycle rejection, got %v", err)
	}
	var cyc *graph.CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	after := e.Snapshot()
	if after.Generation != before.Generation {
		t.Error("rejected edge must not publish a view")
	}
	if _, ok := after.Graph.Edge("b", "a"); ok {
		t.Error("rejected edge present in committed graph")
	}
}

func TestScopedRecompute_LeavesOtherComponentAlone(t *testing.T) {
	// Two islands: a->b and x->y. Editing a's island must carry x and y
	// forward untouched, not rebuild them.
	e := testEngine(t)
	mustAddTask(t, e, "a", 5*480)
	mustAddTask(t, e, "b", 3*480)
	mustAddTask(t, e, "x", 2*480)
	mustAddTask(t, e, "y", 4*480)
	mustAddEdge(t, e, "a", "b")
	mustAddEdge(t, e, "x", "y")

	oldX := e.Snapshot().Schedule("x")
	if err := e.UpdateTask(&graph.Task{ID: "a", ProjectID: "proj", EstimateMins: 7 * 480}); err != nil {
		t.Fatalf("update task: %v", err)
	}

	v := e.Snapshot()
	if ts := v.Schedule("b"); ts.ES != 7 || ts.EF != 10 {
		t.Errorf("expected b rescheduled to 7..10, got %+v", ts)
	}
	if v.Schedule("x") != oldX {
		t.Error("expected x's schedule carried forward from the previous view")
	}
}

func TestRemoveEdge_SplitsComponent(t *testing.T) {
	e := testEngine(t)
	mustAddTask(t, e, "a", 5*480)
	mustAddTask(t, e, "b", 3*480)
	mustAddEdge(t, e, "a", "b")

	if err := e.RemoveEdge("a", "b"); err != nil {
		t.Fatalf("remove edge: %v", err)
	}

	v := e.Snapshot()
	if ts := v.Schedule("b"); ts.ES != 0 || ts.EF != 3 {
		t.Errorf("expected b anchored at day 0 after split, got %+v", ts)
	}
	if len(v.CriticalPaths) != 2 {
		t.Errorf("expected a critical chain per island, got %+v", v.CriticalPaths)
	}
}

func TestRemoveTask_DropsSchedule(t *testing.T) {
	e := testEngine(t)
	mustAddTask(t, e, "a", 5*480)
	mustAddTask(t, e, "b", 3*480)

	if err := e.RemoveTask("b", false); err != nil {
		t.Fatalf("remove task: %v", err)
	}
	if _, err := e.TaskSchedule("b"); !errors.Is(err, graph.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestAddMilestone_CapSurfacesConflicts(t *testing.T) {
	e := testEngine(t)
	mustAddTask(t, e, "a", 5*480)
	mustAddTask(t, e, "b", 5*480)
	mustAddEdge(t, e, "a", "b")

	if err := e.AddMilestone(&graph.Milestone{ID: "m1", ProjectID: "proj", DueDay: 8, Critical: true, TaskIDs: []string{"b"}}); err != nil {
		t.Fatalf("add milestone: %v", err)
	}

	v := e.Snapshot()
	if len(v.Conflicts) != 2 {
		t.Fatalf("expected 2 negative-float conflicts, got %+v", v.Conflicts)
	}
	for _, c := range v.Conflicts {
		if c.Kind != conflict.KindNegativeFloat {
			t.Errorf("unexpected conflict kind %s", c.Kind)
		}
	}
}

func TestBatch_AllOrNothing(t *testing.T) {
	e := testEngine(t)
	mustAddTask(t, e, "a", 480)
	mustAddTask(t, e, "b", 480)
	mustAddEdge(t, e, "a", "b")
	before := e.Snapshot().Generation

	b := e.Batch()
	b.AddTask(&graph.Task{ID: "c", ProjectID: "proj", EstimateMins: 480})
	b.AddEdge(&graph.Edge{From: "b", To: "c"})
	b.AddEdge(&graph.Edge{From: "c", To: "a"})
	if _, err := b.Commit(); !errors.Is(err, graph.ErrCycleDetected) {
		t.Fatalf("expected cycle rejection, got %v", err)
	}

	v := e.Snapshot()
	if v.Generation != before {
		t.Error("failed batch must not publish a view")
	}
	if _, ok := v.Graph.Task("c"); ok {
		t.Error("task from failed batch leaked into the graph")
	}
}

func TestBatch_SingleRecompute(t *testing.T) {
	e := testEngine(t)
	before := e.Snapshot().Generation

	b := e.Batch()
	b.AddTask(&graph.Task{ID: "a", ProjectID: "proj", EstimateMins: 5 * 480})
	b.AddTask(&graph.Task{ID: "b", ProjectID: "proj", EstimateMins: 3 * 480})
	b.AddTask(&graph.Task{ID: "c", ProjectID: "proj", EstimateMins: 2 * 480})
	b.AddEdge(&graph.Edge{From: "a", To: "b"})
	b.AddEdge(&graph.Edge{From: "b", To: "c"})
	if b.Len() != 5 {
		t.Fatalf("expected 5 staged ops, got %d", b.Len())
	}
	v, err := b.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if v.Generation != before+1 {
		t.Errorf("expected one recompute for the whole batch, got %d -> %d", before, v.Generation)
	}
	if ts := v.Schedule("c"); ts == nil || ts.ES != 8 {
		t.Errorf("unexpected schedule for c: %+v", ts)
	}
}

func conflictFixture(t *testing.T) *Engine {
	t.Helper()
	e := testEngine(t)
	mustAddTask(t, e, "a", 5*480)
	start := 3
	if err := e.AddTask(&graph.Task{ID: "b", ProjectID: "proj", EstimateMins: 3 * 480, StartDay: &start}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	mustAddEdge(t, e, "a", "b")
	if n := len(e.Snapshot().Conflicts); n != 1 {
		t.Fatalf("fixture expected 1 conflict, got %d", n)
	}
	return e
}

func TestPreviewResolution_DoesNotMutate(t *testing.T) {
	e := conflictFixture(t)
	before := e.Snapshot()
	id := before.Conflicts[0].ID

	out, err := e.PreviewResolution(context.Background(), id, conflict.Resolution{Strategy: conflict.StrategyShiftDates})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !out.Resolved {
		t.Errorf("expected preview to resolve, got %+v", out)
	}

	after := e.Snapshot()
	if after.Generation != before.Generation {
		t.Error("preview must not publish a view")
	}
	if len(after.Conflicts) != 1 {
		t.Error("preview must not clear the committed conflict")
	}
	b, _ := after.Graph.Task("b")
	if *b.StartDay != 3 {
		t.Errorf("preview leaked into the committed graph: start=%d", *b.StartDay)
	}
}

func TestCommitResolution(t *testing.T) {
	e := conflictFixture(t)
	id := e.Snapshot().Conflicts[0].ID

	out, v, err := e.CommitResolution(context.Background(), id, conflict.Resolution{Strategy: conflict.StrategyShiftDates})
	if err != nil {
		t.Fatalf("commit resolution: %v", err)
	}
	if !out.Resolved {
		t.Errorf("expected resolution, got %+v", out)
	}
	if len(v.Conflicts) != 0 {
		t.Errorf("expected no conflicts after commit, got %+v", v.Conflicts)
	}
	b, _ := v.Graph.Task("b")
	if *b.StartDay != 5 {
		t.Errorf("expected stored start moved to 5, got %d", *b.StartDay)
	}
}

func TestCommitResolution_UnknownConflict(t *testing.T) {
	e := testEngine(t)
	_, _, err := e.CommitResolution(context.Background(), "nope", conflict.Resolution{Strategy: conflict.StrategyShiftDates})
	if !errors.Is(err, conflict.ErrConflictNotFound) {
		t.Fatalf("expected ErrConflictNotFound, got %v", err)
	}
}

func TestMilestoneStatus_UsesEngineClock(t *testing.T) {
	// Epoch Mar 2, clock Mar 8 noon: day 6 of the plan. 40% done against
	// 60% of the window spent reads as at risk.
	e := testEngine(t)
	if err := e.AddTask(&graph.Task{ID: "a", ProjectID: "proj", EstimateMins: 4 * 480, Status: graph.StatusDone}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	mustAddTask(t, e, "b", 6*480)
	mustAddEdge(t, e, "a", "b")
	if err := e.AddMilestone(&graph.Milestone{ID: "release", ProjectID: "proj", DueDay: 10, TaskIDs: []string{"a", "b"}}); err != nil {
		t.Fatalf("add milestone: %v", err)
	}

	if e.Today() != 6 {
		t.Fatalf("expected day 6, got %d", e.Today())
	}
	st, err := e.MilestoneStatus("release")
	if err != nil {
		t.Fatalf("milestone status: %v", err)
	}
	if st.CompletionPct != 40 || st.Risk != milestone.RiskOfDelay {
		t.Errorf("expected 40%% at_risk, got %v%% %s", st.CompletionPct, st.Risk)
	}

	all, err := e.MilestoneStatuses("proj")
	if err != nil {
		t.Fatalf("milestone statuses: %v", err)
	}
	if len(all) != 1 || all[0].MilestoneID != "release" {
		t.Errorf("unexpected statuses %+v", all)
	}
}

func TestConflicts_ProjectFilter(t *testing.T) {
	e := testEngine(t)
	if err := e.AddProject(&graph.Project{ID: "other"}); err != nil {
		t.Fatalf("add project: %v", err)
	}
	mustAddTask(t, e, "a", 5*480)
	start := 3
	if err := e.AddTask(&graph.Task{ID: "b", ProjectID: "proj", EstimateMins: 3 * 480, StartDay: &start}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	mustAddEdge(t, e, "a", "b")
	if err := e.AddTask(&graph.Task{ID: "z", ProjectID: "other", EstimateMins: 480}); err != nil {
		t.Fatalf("add task: %v", err)
	}

	if cs, err := e.Conflicts("proj"); err != nil || len(cs) != 1 {
		t.Errorf("expected 1 conflict in proj, got %v (%v)", cs, err)
	}
	if cs, err := e.Conflicts("other"); err != nil || len(cs) != 0 {
		t.Errorf("expected no conflicts in other, got %v (%v)", cs, err)
	}
	if _, err := e.Conflicts("nope"); !errors.Is(err, graph.ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestRecompute_ProjectScope(t *testing.T) {
	e := testEngine(t)
	mustAddTask(t, e, "a", 5*480)

	if _, err := e.Recompute("proj"); err != nil {
		t.Errorf("recompute proj: %v", err)
	}
	if _, err := e.Recompute(); err != nil {
		t.Errorf("recompute all: %v", err)
	}
	if _, err := e.Recompute("nope"); !errors.Is(err, graph.ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	e := testEngine(t)
	mustAddTask(t, e, "seed", 480)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v := e.Snapshot()
				_ = v.Schedule("seed")
				_, _ = e.CriticalPaths("")
			}
		}()
	}
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		mustAddTask(t, e, id, 480)
	}
	close(stop)
	wg.Wait()

	if got := e.Snapshot().Graph.TaskCount(); got != 21 {
		t.Errorf("expected 21 tasks committed, got %d", got)
	}
}
