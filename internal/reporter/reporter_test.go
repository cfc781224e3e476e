package reporter

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/slacklinehq/slackline/internal/engine"
	"github.com/slacklinehq/slackline/internal/graph"
)

func day(n int) *int { return &n }

// makeReporter builds a small two-task schedule with one warning and one
// blocking conflict, one milestone, and an infeasible project deadline.
//
//	a(2d, done) --FS--> b(3d, start pinned early, due too tight)
func makeReporter(t *testing.T) *Reporter {
	t.Helper()

	g := graph.New()
	if err := g.AddProject(&graph.Project{ID: "api", Name: "API", DeadlineDay: day(4)}); err != nil {
		t.Fatal(err)
	}
	tasks := []*graph.Task{
		{ID: "a", ProjectID: "api", Name: "Design API", EstimateMins: 960, Status: graph.StatusDone, StartDay: day(0)},
		{ID: "b", ProjectID: "api", Name: "Build API", EstimateMins: 1440, StartDay: day(1), DueDay: day(3)},
	}
	for _, task := range tasks {
		if err := g.AddTask(task); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.AddEdge(&graph.Edge{From: "a", To: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddMilestone(&graph.Milestone{
		ID: "ship", ProjectID: "api", Name: "Ship API", DueDay: 6, TaskIDs: []string{"a", "b"},
	}); err != nil {
		t.Fatal(err)
	}

	epoch := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	eng := engine.New(engine.Config{
		Epoch:  epoch,
		Now:    func() time.Time { return epoch.Add(36 * time.Hour) },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	v, err := eng.Load(g)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ms, err := eng.MilestoneStatuses("")
	if err != nil {
		t.Fatalf("MilestoneStatuses: %v", err)
	}
	return New(v, ms, epoch, eng.Today())
}

func TestPrintSchedule(t *testing.T) {
	rpt := makeReporter(t)

	var buf bytes.Buffer
	rpt.PrintSchedule(&buf)

	output := buf.String()
	if !strings.Contains(output, "Slackline Schedule") {
		t.Error("expected output to contain 'Slackline Schedule'")
	}
	if !strings.Contains(output, "PROJECT") || !strings.Contains(output, "api") {
		t.Error("expected output to contain the project header")
	}
	if !strings.Contains(output, "Build API") {
		t.Error("expected output to contain 'Build API'")
	}
	if !strings.Contains(output, "⚡") {
		t.Error("expected output to contain the critical marker")
	}
	if !strings.Contains(output, "Mar 02") {
		t.Error("expected calendar dates resolved against the epoch")
	}
	if !strings.Contains(output, "1 blocking") {
		t.Error("expected the blocking conflict count")
	}
}

func TestPrintScheduleWithoutEpoch(t *testing.T) {
	rpt := makeReporter(t)
	rpt.Epoch = time.Time{}

	var buf bytes.Buffer
	rpt.PrintSchedule(&buf)

	if !strings.Contains(buf.String(), "d0") {
		t.Error("expected raw day offsets without an epoch")
	}
}

func TestPrintCritical(t *testing.T) {
	rpt := makeReporter(t)

	var buf bytes.Buffer
	rpt.PrintCritical(&buf)

	output := buf.String()
	if !strings.Contains(output, "Critical Paths") {
		t.Error("expected output to contain 'Critical Paths'")
	}
	if !strings.Contains(output, "a → b") {
		t.Error("expected the chain a → b")
	}
	if !strings.Contains(output, "5d") {
		t.Error("expected the chain length")
	}
}

func TestPrintConflicts(t *testing.T) {
	rpt := makeReporter(t)

	var buf bytes.Buffer
	rpt.PrintConflicts(&buf)

	output := buf.String()
	if !strings.Contains(output, "start_before_bound") {
		t.Error("expected the start conflict kind")
	}
	if !strings.Contains(output, "due_before_finish") {
		t.Error("expected the due conflict kind")
	}
	if !strings.Contains(output, "blocking") || !strings.Contains(output, "warning") {
		t.Error("expected severity badges")
	}
	if !strings.Contains(output, "Totals") {
		t.Error("expected the totals footer")
	}
}

func TestPrintConflictsEmpty(t *testing.T) {
	rpt := makeReporter(t)
	rpt.View.Conflicts = nil

	var buf bytes.Buffer
	rpt.PrintConflicts(&buf)

	if !strings.Contains(buf.String(), "No conflicts") {
		t.Error("expected the empty-state line")
	}
}

func TestPrintMilestones(t *testing.T) {
	rpt := makeReporter(t)

	var buf bytes.Buffer
	rpt.PrintMilestones(&buf)

	output := buf.String()
	if !strings.Contains(output, "Ship API") {
		t.Error("expected the milestone name")
	}
	if !strings.Contains(output, "40%") {
		t.Error("expected the completion percentage")
	}
	if !strings.Contains(output, "on track") {
		t.Error("expected the risk badge")
	}
	if !strings.Contains(output, "1/2 tasks") {
		t.Error("expected the done count")
	}
}

func TestPrintSummary(t *testing.T) {
	rpt := makeReporter(t)

	var buf bytes.Buffer
	rpt.PrintSummary(&buf)

	output := buf.String()
	if !strings.Contains(output, "Slackline Summary") {
		t.Error("expected output to contain 'Slackline Summary'")
	}
	if !strings.Contains(output, "critical") || !strings.Contains(output, "buffer") {
		t.Error("expected project rollups")
	}
	if !strings.Contains(output, "infeasible") {
		t.Error("expected the infeasible deadline marker")
	}
	if !strings.Contains(output, "overruns its deadline by 1d") {
		t.Error("expected the deadline advisory")
	}
}

func TestJSON(t *testing.T) {
	rpt := makeReporter(t)

	data, err := rpt.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	output := string(data)
	if !strings.Contains(output, `"generation": 1`) {
		t.Error("JSON should contain the view generation")
	}
	if !strings.Contains(output, `"today": 1`) {
		t.Error("JSON should contain today's offset")
	}
	if !strings.Contains(output, `"epoch": "2026-03-02"`) {
		t.Error("JSON should contain the epoch")
	}
	if !strings.Contains(output, "critical_paths") {
		t.Error("JSON should contain critical paths")
	}
	if !strings.Contains(output, "due_before_finish") {
		t.Error("JSON should contain conflicts")
	}
}
