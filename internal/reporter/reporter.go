package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/slacklinehq/slackline/internal/conflict"
	"github.com/slacklinehq/slackline/internal/cpm"
	"github.com/slacklinehq/slackline/internal/engine"
	"github.com/slacklinehq/slackline/internal/milestone"
	"github.com/slacklinehq/slackline/internal/ui"
)

// Reporter renders a committed schedule view for terminal display.
type Reporter struct {
	View       *engine.View
	Milestones []*milestone.Status
	Epoch      time.Time // zero renders raw day offsets
	Today      int
}

// New creates a new Reporter.
func New(v *engine.View, ms []*milestone.Status, epoch time.Time, today int) *Reporter {
	return &Reporter{View: v, Milestones: ms, Epoch: epoch, Today: today}
}

// PrintSchedule writes the per-project schedule table.
func (r *Reporter) PrintSchedule(w io.Writer) {
	v := r.View

	fmt.Fprintf(w, "\n%s %s\n", "🪢", ui.BoldCyan("Slackline Schedule"))
	fmt.Fprintf(w, "%s\n", ui.Cyan("══════════════════════════"))
	fmt.Fprintf(w, "Tasks:    %d across %d projects\n", len(v.Schedules), len(v.Summaries))
	fmt.Fprintf(w, "Today:    %s\n", ui.Bold(r.fmtDay(r.Today)))
	blocking, warning := r.conflictCounts()
	if blocking+warning > 0 {
		fmt.Fprintf(w, "Conflicts: %s, %s\n",
			ui.BoldRed(fmt.Sprintf("%d blocking", blocking)),
			ui.Yellow(fmt.Sprintf("%d warning", warning)))
	}
	fmt.Fprintln(w)

	for _, pid := range r.projectIDs() {
		sum := v.Summaries[pid]
		fmt.Fprintf(w, "  📁 %s %s  (%d tasks, %dd span)\n",
			ui.BoldWhite("PROJECT"), pid, sum.TaskCount, sum.TotalDays)
		for _, ts := range r.projectRows(pid) {
			r.printTaskRow(w, ts)
		}
		fmt.Fprintln(w)
	}
}

func (r *Reporter) printTaskRow(w io.Writer, ts *cpm.TaskSchedule) {
	name, status := "", ""
	if t, ok := r.View.Graph.Task(ts.TaskID); ok {
		name = t.Name
		status = string(t.Status)
	}
	if len(name) > 32 {
		name = name[:29] + "..."
	}

	icon := ui.StatusIcon(status)
	critical := " "
	if ts.Critical {
		critical = ui.BoldYellow("⚡")
	}
	window := ui.Dim(fmt.Sprintf("[%s → %s]", r.fmtDay(ts.ES), r.fmtDay(ts.EF)))
	slack := ui.Dim(fmt.Sprintf("float %d", ts.Float))
	if ts.Float < 0 {
		slack = ui.BoldRed(fmt.Sprintf("float %d", ts.Float))
	}

	fmt.Fprintf(w, "    %s %-14s %-32s %s %2dd  %s  %s\n",
		icon, ui.BoldMagenta(ts.TaskID), name, critical, ts.DurationDays, window, slack)
}

// PrintCritical writes the critical path chains.
func (r *Reporter) PrintCritical(w io.Writer) {
	v := r.View

	fmt.Fprintf(w, "\n%s %s\n", "⚡", ui.BoldCyan("Critical Paths"))
	fmt.Fprintf(w, "%s\n", ui.Cyan("══════════════════════════"))
	if len(v.CriticalPaths) == 0 {
		fmt.Fprintf(w, "%s\n", ui.Dim("No critical chains."))
		return
	}
	for i, p := range v.CriticalPaths {
		fmt.Fprintf(w, "  #%d %s  %s\n",
			i+1, ui.Bold(fmt.Sprintf("%dd", p.Days)),
			ui.BoldYellow(strings.Join(p.TaskIDs, " → ")))
	}
}

// PrintConflicts writes the detected conflict list.
func (r *Reporter) PrintConflicts(w io.Writer) {
	v := r.View

	fmt.Fprintf(w, "\n%s %s\n", "⚠️", ui.BoldCyan("Schedule Conflicts"))
	fmt.Fprintf(w, "%s\n", ui.Cyan("══════════════════════════"))
	if len(v.Conflicts) == 0 {
		fmt.Fprintf(w, "%s\n", ui.Green("✓ No conflicts."))
		return
	}

	for _, c := range v.Conflicts {
		fmt.Fprintf(w, "  %s %-20s %s\n", ui.SeverityBadge(string(c.Severity)), c.Kind, ui.BoldMagenta(c.TaskID))
		fmt.Fprintf(w, "      %s\n", ui.Dim(c.Summary()))
	}

	blocking, warning := r.conflictCounts()
	fmt.Fprintf(w, "%s\n", ui.Cyan("──────────────────────────"))
	fmt.Fprintf(w, "Totals:  %s  %s\n",
		ui.BoldRed(fmt.Sprintf("%d blocking", blocking)),
		ui.Yellow(fmt.Sprintf("%d warning", warning)))
}

// PrintMilestones writes milestone completion and risk rows.
func (r *Reporter) PrintMilestones(w io.Writer) {
	fmt.Fprintf(w, "\n%s %s\n", "🎯", ui.BoldCyan("Milestones"))
	fmt.Fprintf(w, "%s\n", ui.Cyan("══════════════════════════"))
	if len(r.Milestones) == 0 {
		fmt.Fprintf(w, "%s\n", ui.Dim("No milestones."))
		return
	}

	for _, ms := range r.Milestones {
		name := ms.Name
		if name == "" {
			name = ms.MilestoneID
		}
		if len(name) > 28 {
			name = name[:25] + "..."
		}
		critical := " "
		if ms.Critical {
			critical = ui.BoldYellow("⚡")
		}
		fmt.Fprintf(w, "  %s %s %-28s %s %s  due %s, projected %s\n",
			ui.RiskBadge(string(ms.Risk)), critical, name,
			ui.Bold(fmt.Sprintf("%3.0f%%", ms.CompletionPct)),
			ui.Dim(fmt.Sprintf("(%d/%d tasks)", ms.DoneTasks, ms.LinkedTasks)),
			r.fmtDay(ms.DueDay), r.fmtDay(ms.ProjectedDay))
	}
}

// PrintSummary writes per-project rollups and deadline advisories.
func (r *Reporter) PrintSummary(w io.Writer) {
	v := r.View

	fmt.Fprintf(w, "\n%s %s\n", "🪢", ui.BoldCyan("Slackline Summary"))
	fmt.Fprintf(w, "%s\n", ui.Cyan("══════════════════════════"))
	fmt.Fprintf(w, "Projects:  %d\n", len(v.Summaries))
	fmt.Fprintf(w, "Tasks:     %d\n", len(v.Schedules))
	fmt.Fprintf(w, "Today:     %s\n\n", ui.Bold(r.fmtDay(r.Today)))

	for _, pid := range r.projectIDs() {
		s := v.Summaries[pid]
		deadline := ""
		if s.DeadlineDay != nil {
			deadline = "  deadline " + r.fmtDay(*s.DeadlineDay)
			if s.Infeasible {
				deadline += " " + ui.BoldRed("(infeasible)")
			}
		}
		fmt.Fprintf(w, "  📁 %-16s %2d tasks  %s  %s%s\n",
			pid, s.TaskCount,
			ui.BoldYellow(fmt.Sprintf("%dd critical", s.CriticalDays)),
			ui.Green(fmt.Sprintf("%dd buffer", s.BufferDays)),
			deadline)
	}

	blocking, warning := r.conflictCounts()
	fmt.Fprintf(w, "%s\n", ui.Cyan("──────────────────────────"))
	fmt.Fprintf(w, "Conflicts: %s  %s\n",
		ui.BoldRed(fmt.Sprintf("%d blocking", blocking)),
		ui.Yellow(fmt.Sprintf("%d warning", warning)))

	for _, a := range v.Advisories {
		fmt.Fprintf(w, "  %s project %s overruns its deadline by %dd %s\n",
			ui.Yellow("⚠"), ui.BoldMagenta(a.ProjectID), a.ShortfallDays,
			ui.Dim(fmt.Sprintf("(horizon %s, deadline %s)", r.fmtDay(a.HorizonDay), r.fmtDay(a.DeadlineDay))))
	}
}

// JSON returns machine-readable schedule status.
func (r *Reporter) JSON() ([]byte, error) {
	type taskRow struct {
		TaskID   string `json:"task_id"`
		Project  string `json:"project"`
		ES       int    `json:"es"`
		EF       int    `json:"ef"`
		LS       int    `json:"ls"`
		LF       int    `json:"lf"`
		Float    int    `json:"float"`
		Critical bool   `json:"critical"`
	}

	type output struct {
		Generation int64                  `json:"generation"`
		Today      int                    `json:"today"`
		Epoch      string                 `json:"epoch,omitempty"`
		Tasks      []taskRow              `json:"tasks"`
		Paths      []cpm.CriticalPath     `json:"critical_paths"`
		Conflicts  []conflict.Conflict    `json:"conflicts"`
		Milestones []*milestone.Status    `json:"milestones,omitempty"`
		Advisories []cpm.DeadlineAdvisory `json:"advisories,omitempty"`
	}

	o := output{
		Generation: r.View.Generation,
		Today:      r.Today,
		Paths:      r.View.CriticalPaths,
		Conflicts:  r.View.Conflicts,
		Milestones: r.Milestones,
		Advisories: r.View.Advisories,
	}
	if !r.Epoch.IsZero() {
		o.Epoch = r.Epoch.Format("2006-01-02")
	}

	for _, ts := range r.View.Schedules {
		o.Tasks = append(o.Tasks, taskRow{
			TaskID:   ts.TaskID,
			Project:  ts.ProjectID,
			ES:       ts.ES,
			EF:       ts.EF,
			LS:       ts.LS,
			LF:       ts.LF,
			Float:    ts.Float,
			Critical: ts.Critical,
		})
	}
	sort.Slice(o.Tasks, func(i, j int) bool {
		if o.Tasks[i].ES != o.Tasks[j].ES {
			return o.Tasks[i].ES < o.Tasks[j].ES
		}
		return o.Tasks[i].TaskID < o.Tasks[j].TaskID
	})

	return json.MarshalIndent(o, "", "  ")
}

// fmtDay renders a schedule day, as a calendar date when an epoch is set.
func (r *Reporter) fmtDay(day int) string {
	if r.Epoch.IsZero() {
		return fmt.Sprintf("d%d", day)
	}
	return r.Epoch.AddDate(0, 0, day).Format("Jan 02")
}

func (r *Reporter) conflictCounts() (blocking, warning int) {
	for _, c := range r.View.Conflicts {
		if c.Severity == conflict.SeverityBlocking {
			blocking++
		} else {
			warning++
		}
	}
	return blocking, warning
}

func (r *Reporter) projectIDs() []string {
	ids := make([]string, 0, len(r.View.Summaries))
	for pid := range r.View.Summaries {
		ids = append(ids, pid)
	}
	sort.Strings(ids)
	return ids
}

func (r *Reporter) projectRows(projectID string) []*cpm.TaskSchedule {
	rows := make([]*cpm.TaskSchedule, 0, len(r.View.Schedules))
	for _, ts := range r.View.Schedules {
		if ts.ProjectID == projectID {
			rows = append(rows, ts)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ES != rows[j].ES {
			return rows[i].ES < rows[j].ES
		}
		return rows[i].TaskID < rows[j].TaskID
	})
	return rows
}
