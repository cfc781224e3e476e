package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/slacklinehq/slackline/internal/conflict"
	"github.com/slacklinehq/slackline/internal/cpm"
	"github.com/slacklinehq/slackline/internal/graph"
	"github.com/slacklinehq/slackline/internal/milestone"
)

// Config holds engine settings. Zero values get sensible defaults.
type Config struct {
	WorkdayMins           int     // minutes per working day (default 480)
	ConflictToleranceDays int     // violation days tolerated as warning (default 1, negative for none)
	RiskToleranceDays     int     // projected milestone slip tolerated (default 0)
	PaceThreshold         float64 // milestone pace ratio floor (default 0.9)
	ClosureBudget         int     // cascade walk cap for resolutions (default 10000)

	Epoch  time.Time        // day zero of the plan (default: today at midnight UTC)
	Now    func() time.Time // clock, swappable in tests (default time.Now)
	Logger *slog.Logger     // structured logger (default slog.Default())
}

// Engine owns the live task graph and everything derived from it. One
// writer at a time mutates the graph and commits a fresh View; readers
// consume the last committed View without blocking the writer. Every
// mutation reschedules synchronously, scoped to the connected components
// it touched, so a committed View is never stale.
type Engine struct {
	cfg Config
	log *slog.Logger

	mu sync.Mutex   // serializes mutations and recomputes
	g  *graph.Graph // working graph, guarded by mu

	viewMu sync.RWMutex
	view   *View
}

// New creates an empty engine.
func New(cfg Config) *Engine {
	if cfg.WorkdayMins <= 0 {
		cfg.WorkdayMins = cpm.DefaultWorkdayMins
	}
	if cfg.ConflictToleranceDays == 0 {
		cfg.ConflictToleranceDays = 1
	}
	if cfg.PaceThreshold <= 0 {
		cfg.PaceThreshold = milestone.DefaultPaceThreshold
	}
	if cfg.ClosureBudget <= 0 {
		cfg.ClosureBudget = conflict.DefaultClosureBudget
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Epoch.IsZero() {
		now := cfg.Now().UTC()
		cfg.Epoch = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Engine{
		cfg: cfg,
		log: cfg.Logger,
		g:   graph.New(),
	}
	e.view = &View{
		ComputedAt: cfg.Now(),
		Graph:      e.g.Clone(),
		Schedules:  map[string]*cpm.TaskSchedule{},
		Summaries:  map[string]*cpm.ProjectSummary{},
	}
	return e
}

// Epoch returns the plan's day-zero anchor.
func (e *Engine) Epoch() time.Time { return e.cfg.Epoch }

// Today returns the current whole-day offset from the epoch.
func (e *Engine) Today() int {
	return int(math.Floor(e.cfg.Now().Sub(e.cfg.Epoch).Hours() / 24))
}

// Load replaces the engine's graph wholesale after validating it, then
// reschedules everything. The usual entry point after parsing a plan.
func (e *Engine) Load(g *graph.Graph) (*View, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.g = g.Clone()
	return e.recomputeLocked(nil)
}

// Snapshot returns the last committed view.
func (e *Engine) Snapshot() *View {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.view
}

// Recompute forces a fresh propagation: all projects, or only the
// components touching the named ones.
func (e *Engine) Recompute(projectIDs ...string) (*View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(projectIDs) == 0 {
		return e.recomputeLocked(nil)
	}
	want := make(map[string]bool, len(projectIDs))
	for _, id := range projectIDs {
		if _, ok := e.g.Project(id); !ok {
			return nil, fmt.Errorf("%w: %q", graph.ErrProjectNotFound, id)
		}
		want[id] = true
	}
	var seed []string
	for _, t := range e.g.Tasks() {
		if want[t.ProjectID] {
			seed = append(seed, t.ID)
		}
	}
	return e.recomputeLocked(e.componentScope(seed...))
}

// derivedOnly skips propagation; stored windows are unaffected by
// project metadata changes.
var derivedOnly = map[string]bool{}

// AddProject registers a project.
func (e *Engine) AddProject(p *graph.Project) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.g.AddProject(p); err != nil {
		return err
	}
	_, err := e.recomputeLocked(derivedOnly)
	return err
}

// UpdateProject replaces a project record.
func (e *Engine) UpdateProject(p *graph.Project) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.g.UpdateProject(p); err != nil {
		return err
	}
	_, err := e.recomputeLocked(derivedOnly)
	return err
}

// AddTask inserts a task and reschedules its component.
func (e *Engine) AddTask(t *graph.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.g.AddTask(t); err != nil {
		return err
	}
	_, err := e.recomputeLocked(e.componentScope(t.ID))
	return err
}

// UpdateTask replaces a task record and reschedules its component.
func (e *Engine) UpdateTask(t *graph.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.g.UpdateTask(t); err != nil {
		return err
	}
	_, err := e.recomputeLocked(e.componentScope(t.ID))
	return err
}

// RemoveTask deletes a task and reschedules what it left behind. With
// cascade, incident edges are detached instead of blocking the removal.
func (e *Engine) RemoveTask(id string, cascade bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Scope before the removal so orphaned neighbors reschedule too.
	scope := e.componentScope(id)
	if err := e.g.RemoveTask(id, cascade); err != nil {
		return err
	}
	_, err := e.recomputeLocked(scope)
	return err
}

// AddEdge inserts a dependency, rejecting duplicates and cycles, and
// reschedules the (possibly merged) component.
func (e *Engine) AddEdge(ed *graph.Edge) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.g.AddEdge(ed); err != nil {
		return err
	}
	_, err := e.recomputeLocked(e.componentScope(ed.From))
	return err
}

// UpdateEdge changes an edge's type or lag and reschedules its component.
func (e *Engine) UpdateEdge(from, to string, typ graph.DepType, lagDays int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.g.UpdateEdge(from, to, typ, lagDays); err != nil {
		return err
	}
	_, err := e.recomputeLocked(e.componentScope(from))
	return err
}

// RemoveEdge deletes a dependency and reschedules both halves of the
// component it may have split.
func (e *Engine) RemoveEdge(from, to string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	scope := e.componentScope(from, to)
	if err := e.g.RemoveEdge(from, to); err != nil {
		return err
	}
	_, err := e.recomputeLocked(scope)
	return err
}

// AddMilestone registers a milestone. A critical one caps its linked
// tasks' latest dates, so their components reschedule.
func (e *Engine) AddMilestone(m *graph.Milestone) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.g.AddMilestone(m); err != nil {
		return err
	}
	_, err := e.recomputeLocked(e.componentScope(m.TaskIDs...))
	return err
}

// UpdateMilestone replaces a milestone record, rescheduling the
// components of both the old and the new linked sets.
func (e *Engine) UpdateMilestone(m *graph.Milestone) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var linked []string
	if old, ok := e.g.Milestone(m.ID); ok {
		linked = append(linked, old.TaskIDs...)
	}
	linked = append(linked, m.TaskIDs...)
	if err := e.g.UpdateMilestone(m); err != nil {
		return err
	}
	_, err := e.recomputeLocked(e.componentScope(linked...))
	return err
}

// TaskSchedule returns the committed window for one task.
func (e *Engine) TaskSchedule(taskID string) (*cpm.TaskSchedule, error) {
	ts := e.Snapshot().Schedules[taskID]
	if ts == nil {
		return nil, fmt.Errorf("%w: %q", graph.ErrTaskNotFound, taskID)
	}
	return ts, nil
}

// CriticalPaths returns the committed critical paths, optionally
// filtered to one project.
func (e *Engine) CriticalPaths(projectID string) ([]cpm.CriticalPath, error) {
	v := e.Snapshot()
	if projectID == "" {
		return v.CriticalPaths, nil
	}
	if _, ok := v.Summaries[projectID]; !ok {
		return nil, fmt.Errorf("%w: %q", graph.ErrProjectNotFound, projectID)
	}
	return v.ProjectPaths(projectID), nil
}

// Conflicts returns the committed conflicts, optionally filtered to one
// project.
func (e *Engine) Conflicts(projectID string) ([]conflict.Conflict, error) {
	v := e.Snapshot()
	if projectID == "" {
		return v.Conflicts, nil
	}
	if _, ok := v.Summaries[projectID]; !ok {
		return nil, fmt.Errorf("%w: %q", graph.ErrProjectNotFound, projectID)
	}
	return v.ProjectConflicts(projectID), nil
}

// MilestoneStatus evaluates one milestone against the committed schedule
// as of the engine clock.
func (e *Engine) MilestoneStatus(milestoneID string) (*milestone.Status, error) {
	v := e.Snapshot()
	return milestone.Evaluate(v.Graph, v.Schedules, milestoneID, e.Today(), e.milestoneOpts())
}

// MilestoneStatuses evaluates every milestone, optionally filtered to
// one project. Milestones with no countable links are skipped; they have
// no defined completion.
func (e *Engine) MilestoneStatuses(projectID string) ([]*milestone.Status, error) {
	v := e.Snapshot()
	if projectID != "" {
		if _, ok := v.Summaries[projectID]; !ok {
			return nil, fmt.Errorf("%w: %q", graph.ErrProjectNotFound, projectID)
		}
	}
	today := e.Today()
	var out []*milestone.Status
	for _, m := range v.Graph.Milestones() {
		if projectID != "" && m.ProjectID != projectID {
			continue
		}
		st, err := milestone.Evaluate(v.Graph, v.Schedules, m.ID, today, e.milestoneOpts())
		if err != nil {
			if errors.Is(err, graph.ErrNoLinkedTasks) {
				e.log.Debug("milestone has no countable tasks", "milestone", m.ID)
				continue
			}
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// recomputeLocked rebuilds derived state and publishes a new View. The
// caller holds mu. scope selects the propagation span: nil re-propagates
// everything, an empty set skips propagation (metadata-only change), and
// a task set re-propagates just those tasks, carrying the rest forward
// from the previous view. Paths, rollups and conflicts are always
// rebuilt globally; they are cheap next to the passes.
func (e *Engine) recomputeLocked(scope map[string]bool) (*View, error) {
	start := e.cfg.Now()
	prev := e.view

	cpmOpts := cpm.Options{WorkdayMins: e.cfg.WorkdayMins}
	var merged map[string]*cpm.TaskSchedule
	if scope == nil {
		snap, err := cpm.Analyze(e.g, cpmOpts)
		if err != nil {
			return nil, err
		}
		merged = snap.Schedules
	} else {
		merged = make(map[string]*cpm.TaskSchedule, e.g.TaskCount())
		for id, ts := range prev.Schedules {
			if _, ok := e.g.Task(id); ok {
				merged[id] = ts
			}
		}
		if len(scope) > 0 {
			sub := e.g.Filter(func(t *graph.Task) bool { return scope[t.ID] })
			snap, err := cpm.Analyze(sub, cpmOpts)
			if err != nil {
				return nil, err
			}
			for id, ts := range snap.Schedules {
				merged[id] = ts
			}
		}
	}

	paths := cpm.ExtractPaths(e.g, merged)
	sums, advisories := cpm.Summarize(e.g, merged)
	confs := conflict.Detect(e.g, merged, e.conflictOpts())

	next := &View{
		Generation:    prev.Generation + 1,
		ComputedAt:    e.cfg.Now(),
		Graph:         e.g.Clone(),
		Schedules:     merged,
		CriticalPaths: paths,
		Summaries:     sums,
		Advisories:    advisories,
		Conflicts:     confs,
	}
	e.viewMu.Lock()
	e.view = next
	e.viewMu.Unlock()

	e.log.Debug("recompute committed",
		"generation", next.Generation,
		"scoped", scope != nil,
		"tasks", len(merged),
		"critical_paths", len(paths),
		"conflicts", len(confs),
		"elapsed", next.ComputedAt.Sub(start))
	for _, a := range advisories {
		e.log.Warn("project deadline infeasible",
			"project", a.ProjectID,
			"deadline_day", a.DeadlineDay,
			"horizon_day", a.HorizonDay,
			"shortfall_days", a.ShortfallDays)
	}
	return next, nil
}

// componentScope collects the connected components of the given tasks.
// Unknown ids are skipped; they have just been removed.
func (e *Engine) componentScope(ids ...string) map[string]bool {
	scope := make(map[string]bool)
	for _, id := range ids {
		comp, err := e.g.ConnectedComponent(id)
		if err != nil {
			continue
		}
		for _, cid := range comp {
			scope[cid] = true
		}
	}
	return scope
}

func (e *Engine) conflictOpts() conflict.Options {
	return conflict.Options{
		ToleranceDays: e.cfg.ConflictToleranceDays,
		WorkdayMins:   e.cfg.WorkdayMins,
		ClosureBudget: e.cfg.ClosureBudget,
	}
}

func (e *Engine) milestoneOpts() milestone.Options {
	return milestone.Options{
		ToleranceDays: e.cfg.RiskToleranceDays,
		PaceThreshold: e.cfg.PaceThreshold,
	}
}
