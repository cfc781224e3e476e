package engine

import (
	"time"

	"github.com/slacklinehq/slackline/internal/conflict"
	"github.com/slacklinehq/slackline/internal/cpm"
	"github.com/slacklinehq/slackline/internal/graph"
)

// View is one committed, immutable result of a recompute: the graph as
// it stood plus everything derived from it. Readers hold a View across
// as many lookups as they like; a mutation never changes a published
// View, it swaps in a new one with a higher generation.
type View struct {
	Generation int64     `json:"generation"`
	ComputedAt time.Time `json:"computed_at"`

	// Graph is the committed graph snapshot backing this view. Read-only
	// by convention; mutations go through the engine.
	Graph *graph.Graph `json:"-"`

	Schedules     map[string]*cpm.TaskSchedule   `json:"schedules"`
	CriticalPaths []cpm.CriticalPath             `json:"critical_paths"`
	Summaries     map[string]*cpm.ProjectSummary `json:"summaries"`
	Advisories    []cpm.DeadlineAdvisory         `json:"advisories,omitempty"`
	Conflicts     []conflict.Conflict            `json:"conflicts"`
}

// Schedule returns the computed window for a task, or nil if unknown.
func (v *View) Schedule(taskID string) *cpm.TaskSchedule {
	return v.Schedules[taskID]
}

// ProjectPaths returns the critical paths whose tasks belong to the
// given project. Paths never span projects unless edges do.
func (v *View) ProjectPaths(projectID string) []cpm.CriticalPath {
	var out []cpm.CriticalPath
	for _, p := range v.CriticalPaths {
		if len(p.TaskIDs) == 0 {
			continue
		}
		if ts := v.Schedules[p.TaskIDs[0]]; ts != nil && ts.ProjectID == projectID {
			out = append(out, p)
		}
	}
	return out
}

// ProjectConflicts returns the conflicts on tasks of the given project.
func (v *View) ProjectConflicts(projectID string) []conflict.Conflict {
	var out []conflict.Conflict
	for _, c := range v.Conflicts {
		if ts := v.Schedules[c.TaskID]; ts != nil && ts.ProjectID == projectID {
			out = append(out, c)
		}
	}
	return out
}

// findConflict looks a conflict up by id.
func (v *View) findConflict(id string) (conflict.Conflict, bool) {
	for _, c := range v.Conflicts {
		if c.ID == id {
			return c, true
		}
	}
	return conflict.Conflict{}, false
}
