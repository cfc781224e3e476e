package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/slacklinehq/slackline/internal/conflict"
	"github.com/slacklinehq/slackline/internal/cpm"
	"github.com/slacklinehq/slackline/internal/engine"
	"github.com/slacklinehq/slackline/internal/graph"
	"github.com/slacklinehq/slackline/internal/planfile"
	"github.com/slacklinehq/slackline/internal/reporter"
	"github.com/slacklinehq/slackline/internal/ui"
)

var (
	flagPlan          string
	flagWorkday       int
	flagEpoch         string
	flagTolerance     int
	flagRiskTolerance int
	flagPace          float64
	flagJSON          bool
	flagVerbose       bool
	flagProject       string
	flagOutput        string
	flagFormat        string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "slackline",
		Short: "Critical-path scheduling for task dependency graphs",
		Long: `Slackline reads a plan of projects, tasks, and typed dependencies,
computes earliest/latest schedules with critical-path analysis, then
surfaces scheduling conflicts, resolution previews, and milestone risk.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagPlan, "plan", "slackline.hcl", "Plan file (.hcl or .json)")
	rootCmd.PersistentFlags().IntVar(&flagWorkday, "workday", 0, "Minutes per working day (default: plan setting or 480)")
	rootCmd.PersistentFlags().StringVar(&flagEpoch, "epoch", "", "Day zero as YYYY-MM-DD (default: plan setting)")
	rootCmd.PersistentFlags().IntVar(&flagTolerance, "tolerance", 0, "Overrun days reported as warning instead of blocking (default 1, -1 for none)")
	rootCmd.PersistentFlags().IntVar(&flagRiskTolerance, "risk-tolerance", 0, "Projected milestone slip tolerated before at_risk")
	rootCmd.PersistentFlags().Float64Var(&flagPace, "pace", 0, "Milestone pace ratio floor (default 0.9)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Debug logging on stderr")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(criticalCmd())
	rootCmd.AddCommand(conflictsCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(milestonesCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(vizCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveEpoch picks the schedule's day zero: the --epoch flag wins over
// the plan's own epoch setting. Zero means no calendar anchoring.
func resolveEpoch(doc *planfile.Document) (time.Time, error) {
	if flagEpoch != "" {
		t, err := time.Parse("2006-01-02", flagEpoch)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse --epoch: %w", err)
		}
		return t, nil
	}
	t, _, err := doc.EpochTime()
	return t, err
}

// loadEngine is shared logic for every schedule-reading command: parse
// the plan, build the graph, and run a full propagation.
func loadEngine() (*engine.Engine, *engine.View, error) {
	doc, err := planfile.Load(flagPlan)
	if err != nil {
		return nil, nil, err
	}

	epoch, err := resolveEpoch(doc)
	if err != nil {
		return nil, nil, err
	}

	g, err := doc.Build(planfile.BuildOptions{WorkdayMins: flagWorkday, Epoch: epoch})
	if err != nil {
		return nil, nil, fmt.Errorf("build plan graph: %w", err)
	}

	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	wd := flagWorkday
	if wd <= 0 {
		wd = doc.Workday
	}

	eng := engine.New(engine.Config{
		WorkdayMins:           wd,
		ConflictToleranceDays: flagTolerance,
		RiskToleranceDays:     flagRiskTolerance,
		PaceThreshold:         flagPace,
		Epoch:                 epoch,
		Logger:                slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	})
	v, err := eng.Load(g)
	if err != nil {
		return nil, nil, err
	}
	return eng, v, nil
}

func newReporter(eng *engine.Engine, v *engine.View, projectID string) (*reporter.Reporter, error) {
	ms, err := eng.MilestoneStatuses(projectID)
	if err != nil {
		return nil, err
	}
	return reporter.New(v, ms, eng.Epoch(), eng.Today()), nil
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute the schedule and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, v, err := loadEngine()
			if err != nil {
				return err
			}
			rpt, err := newReporter(eng, v, "")
			if err != nil {
				return err
			}

			if flagJSON {
				data, err := rpt.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			if flagOutput != "" {
				return planfile.BuildSnapshot(v, rpt.Milestones, eng.Epoch()).Save(flagOutput)
			}

			ui.PrintLogo()
			rpt.PrintSchedule(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagOutput, "output", "", "Save snapshot to file instead of printing")

	return cmd
}

func criticalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "critical",
		Short: "Show critical path chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, v, err := loadEngine()
			if err != nil {
				return err
			}

			paths := v.CriticalPaths
			if flagProject != "" {
				paths, err = eng.CriticalPaths(flagProject)
				if err != nil {
					return err
				}
				vv := *v
				vv.CriticalPaths = paths
				v = &vv
			}

			if flagJSON {
				return outputJSON(paths)
			}

			rpt, err := newReporter(eng, v, flagProject)
			if err != nil {
				return err
			}
			rpt.PrintCritical(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagProject, "project", "", "Limit to one project")

	return cmd
}

func conflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List scheduling conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, v, err := loadEngine()
			if err != nil {
				return err
			}

			confs := v.Conflicts
			if flagProject != "" {
				confs, err = eng.Conflicts(flagProject)
				if err != nil {
					return err
				}
				vv := *v
				vv.Conflicts = confs
				v = &vv
			}

			if flagJSON {
				return outputJSON(confs)
			}

			rpt, err := newReporter(eng, v, flagProject)
			if err != nil {
				return err
			}
			rpt.PrintConflicts(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagProject, "project", "", "Limit to one project")

	return cmd
}

func resolveCmd() *cobra.Command {
	var (
		flagStrategy string
		flagCascade  bool
		flagBuffer   int
		flagNewType  string
		flagConfirm  bool
		flagCommit   bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Preview or apply a conflict resolution",
		Long: `Applies a resolution strategy to one detected conflict. Without
--commit the resolution runs against a scratch copy and only reports
what would change; with --commit the schedule is recomputed and the
updated snapshot can be saved with --output.

Conflict ids come from the conflicts command, e.g.
start_before_bound/task-42.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strat, err := conflict.ParseStrategy(flagStrategy)
			if err != nil {
				return err
			}
			res := conflict.Resolution{
				Strategy:   strat,
				Cascade:    flagCascade,
				BufferDays: flagBuffer,
				Confirm:    flagConfirm,
			}
			if flagNewType != "" {
				dt, err := graph.ParseDepType(flagNewType)
				if err != nil {
					return err
				}
				res.NewType = dt
			}

			eng, v, err := loadEngine()
			if err != nil {
				return err
			}

			var out *conflict.Outcome
			if flagCommit {
				out, v, err = eng.CommitResolution(cmd.Context(), args[0], res)
			} else {
				out, err = eng.PreviewResolution(cmd.Context(), args[0], res)
			}
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(out)
			}

			printOutcome(out, flagCommit)

			if flagCommit && flagOutput != "" {
				rpt, err := newReporter(eng, v, "")
				if err != nil {
					return err
				}
				if err := planfile.BuildSnapshot(v, rpt.Milestones, eng.Epoch()).Save(flagOutput); err != nil {
					return err
				}
				fmt.Printf("\n📦 Snapshot saved to %s\n", ui.Bold(flagOutput))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagStrategy, "strategy", "", "Resolution strategy (shift_dates, insert_buffer, retype_edge, remove_edge)")
	cmd.Flags().BoolVar(&flagCascade, "cascade", false, "Shift downstream stored dates by the same delta")
	cmd.Flags().IntVar(&flagBuffer, "buffer", 0, "Signed lag delta for insert_buffer")
	cmd.Flags().StringVar(&flagNewType, "new-type", "", "Target dependency type for retype_edge (omit to auto-pick)")
	cmd.Flags().BoolVar(&flagConfirm, "confirm", false, "Confirm structural edits (required for remove_edge)")
	cmd.Flags().BoolVar(&flagCommit, "commit", false, "Apply instead of preview")
	cmd.Flags().StringVar(&flagOutput, "output", "", "Save the post-commit snapshot to file")
	cmd.MarkFlagRequired("strategy")

	return cmd
}

func milestonesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "milestones",
		Short: "Show milestone completion and risk",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, v, err := loadEngine()
			if err != nil {
				return err
			}
			rpt, err := newReporter(eng, v, flagProject)
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(rpt.Milestones)
			}

			rpt.PrintMilestones(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagProject, "project", "", "Limit to one project")

	return cmd
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Per-project rollups and deadline advisories",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, v, err := loadEngine()
			if err != nil {
				return err
			}
			rpt, err := newReporter(eng, v, "")
			if err != nil {
				return err
			}

			if flagJSON {
				data, err := rpt.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			rpt.PrintSummary(os.Stdout)
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse the plan and check the dependency graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := planfile.Load(flagPlan)
			if err != nil {
				return err
			}
			epoch, err := resolveEpoch(doc)
			if err != nil {
				return err
			}
			g, err := doc.Build(planfile.BuildOptions{WorkdayMins: flagWorkday, Epoch: epoch})
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(map[string]interface{}{
					"valid":      true,
					"tasks":      len(g.TaskIDs()),
					"edges":      len(g.Edges()),
					"projects":   len(g.Projects()),
					"milestones": len(g.Milestones()),
				})
			}

			fmt.Printf("✅ %s %s\n", ui.BoldGreen("Valid:"), ui.Dim(flagPlan))
			fmt.Printf("   %s tasks, %s dependencies, %s projects, %s milestones\n",
				ui.Bold(len(g.TaskIDs())), ui.Bold(len(g.Edges())),
				ui.Bold(len(g.Projects())), ui.Bold(len(g.Milestones())))
			return nil
		},
	}
}

func vizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "viz",
		Short: "Print the dependency graph as ASCII or DOT",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, v, err := loadEngine()
			if err != nil {
				return err
			}

			if flagFormat == "dot" {
				return printDOT(v)
			}

			printASCIIDAG(v)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagFormat, "format", "ascii", "Output format (ascii, dot)")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the computed schedule snapshot to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, v, err := loadEngine()
			if err != nil {
				return err
			}
			rpt, err := newReporter(eng, v, "")
			if err != nil {
				return err
			}

			if err := planfile.BuildSnapshot(v, rpt.Milestones, eng.Epoch()).Save(flagOutput); err != nil {
				return err
			}
			fmt.Printf("📦 Exported %s tasks to %s\n", ui.Bold(len(v.Schedules)), ui.Bold(flagOutput))
			return nil
		},
	}

	cmd.Flags().StringVar(&flagOutput, "output", "slackline-snapshot.json", "Snapshot file path")

	return cmd
}

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printOutcome(out *conflict.Outcome, committed bool) {
	head := "🔍 " + ui.BoldCyan("Resolution Preview")
	if committed {
		head = "✅ " + ui.BoldCyan("Resolution Committed")
	}
	fmt.Printf("\n%s\n", head)
	fmt.Println(ui.Cyan("══════════════════════════"))

	status := ui.BoldGreen("cleared")
	if !out.Resolved {
		status = ui.BoldRed("not cleared")
	}
	fmt.Printf("Conflict:  %s\n", ui.BoldMagenta(out.ConflictID))
	fmt.Printf("Strategy:  %s\n", ui.Bold(string(out.Strategy)))
	fmt.Printf("Target:    %s\n", status)
	fmt.Printf("Span:      %dd → %dd\n", out.TotalDaysBefore, out.TotalDaysAfter)

	if len(out.Changes) > 0 {
		fmt.Printf("\n%s\n", ui.Bold("Changes:"))
		for _, ch := range out.Changes {
			target := ch.TaskID
			if target == "" {
				target = ch.EdgeKey
			}
			fmt.Printf("  %s %-10s %-14s %s → %s\n",
				ui.Cyan("→"), ch.Op, ui.BoldMagenta(target), ui.Dim(ch.Old), ui.Bold(ch.New))
		}
	}

	if len(out.Introduced) > 0 {
		fmt.Printf("\n%s\n", ui.BoldRed("Introduced:"))
		for _, c := range out.Introduced {
			fmt.Printf("  %s %s\n", ui.SeverityBadge(string(c.Severity)), ui.Dim(c.Summary()))
		}
	}

	blocking, warning := 0, 0
	for _, c := range out.Remaining {
		if c.Severity == conflict.SeverityBlocking {
			blocking++
		} else {
			warning++
		}
	}
	fmt.Printf("\nRemaining: %s, %s\n",
		ui.BoldRed(fmt.Sprintf("%d blocking", blocking)),
		ui.Yellow(fmt.Sprintf("%d warning", warning)))
}

func printASCIIDAG(v *engine.View) {
	fmt.Printf("🔗 %s\n", ui.BoldCyan("Task Dependency Graph"))
	fmt.Println(ui.Cyan("═══════════════════════"))
	fmt.Println()

	projects := make([]string, 0, len(v.Summaries))
	for pid := range v.Summaries {
		projects = append(projects, pid)
	}
	sort.Strings(projects)

	for _, pid := range projects {
		fmt.Printf("%s 📁 %s %s\n", ui.Cyan("──"), pid, ui.Cyan("──────────────────────────────"))

		rows := make([]*cpm.TaskSchedule, 0)
		for _, ts := range v.Schedules {
			if ts.ProjectID == pid {
				rows = append(rows, ts)
			}
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].ES != rows[j].ES {
				return rows[i].ES < rows[j].ES
			}
			return rows[i].TaskID < rows[j].TaskID
		})

		for _, ts := range rows {
			crit := " "
			if ts.Critical {
				crit = ui.BoldYellow("⚡")
			}
			name := ""
			if t, ok := v.Graph.Task(ts.TaskID); ok {
				name = t.Name
			}
			fmt.Printf("  %s %s %s\n", crit, ui.TaskPrefix(ts.TaskID), name)

			for _, e := range v.Graph.Successors(ts.TaskID) {
				fmt.Printf("      %s %s %s\n", ui.Dim("└──→"), ui.Magenta(e.To), ui.Dim("("+edgeLabel(e)+")"))
			}
		}
		fmt.Println()
	}
}

func printDOT(v *engine.View) error {
	fmt.Println("digraph slackline {")
	fmt.Println("  rankdir=LR;")
	fmt.Println("  node [shape=box, style=rounded];")
	fmt.Println()

	for _, t := range v.Graph.Tasks() {
		label := t.ID
		if t.Name != "" {
			label = fmt.Sprintf("%s\\n%s", t.ID, t.Name)
		}
		attrs := fmt.Sprintf(`label="%s"`, label)
		if ts := v.Schedules[t.ID]; ts != nil && ts.Critical {
			attrs += `, style="rounded,bold", color=red`
		}
		fmt.Printf("  %q [%s];\n", t.ID, attrs)
	}

	fmt.Println()

	for _, e := range v.Graph.Edges() {
		attrs := fmt.Sprintf(` [label="%s"`, edgeLabel(e))
		from, to := v.Schedules[e.From], v.Schedules[e.To]
		if from != nil && from.Critical && to != nil && to.Critical {
			attrs += `, color=red, penwidth=2`
		}
		attrs += `]`
		fmt.Printf("  %q -> %q%s;\n", e.From, e.To, attrs)
	}

	fmt.Println("}")
	return nil
}

func edgeLabel(e *graph.Edge) string {
	if e.LagDays != 0 {
		return fmt.Sprintf("%s%+d", e.Type, e.LagDays)
	}
	return string(e.Type)
}
