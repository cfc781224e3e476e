package planfile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/slacklinehq/slackline/internal/conflict"
	"github.com/slacklinehq/slackline/internal/cpm"
	"github.com/slacklinehq/slackline/internal/engine"
	"github.com/slacklinehq/slackline/internal/graph"
	"github.com/slacklinehq/slackline/internal/milestone"
)

// SnapshotDoc is the serialized form of a committed view, written by the
// export command and read by downstream tooling.
type SnapshotDoc struct {
	Generation    int64                          `json:"generation"`
	ComputedAt    time.Time                      `json:"computed_at"`
	Epoch         string                         `json:"epoch,omitempty"`
	Tasks         []TaskRow                      `json:"tasks"`
	CriticalPaths []cpm.CriticalPath             `json:"critical_paths"`
	Projects      map[string]*cpm.ProjectSummary `json:"projects"`
	Advisories    []cpm.DeadlineAdvisory         `json:"advisories,omitempty"`
	Conflicts     []conflict.Conflict            `json:"conflicts"`
	Milestones    []*milestone.Status            `json:"milestones,omitempty"`
}

// TaskRow flattens one task with its computed schedule.
type TaskRow struct {
	ID           string       `json:"id"`
	Project      string       `json:"project"`
	Name         string       `json:"name,omitempty"`
	Status       graph.Status `json:"status"`
	DurationDays int          `json:"duration_days"`
	ES           int          `json:"es"`
	EF           int          `json:"ef"`
	LS           int          `json:"ls"`
	LF           int          `json:"lf"`
	Float        int          `json:"float"`
	Critical     bool         `json:"critical"`
}

// BuildSnapshot flattens a view plus evaluated milestones for export.
// Tasks are ordered by earliest start, then id.
func BuildSnapshot(v *engine.View, statuses []*milestone.Status, epoch time.Time) *SnapshotDoc {
	doc := &SnapshotDoc{
		Generation:    v.Generation,
		ComputedAt:    v.ComputedAt,
		Tasks:         make([]TaskRow, 0, len(v.Schedules)),
		CriticalPaths: v.CriticalPaths,
		Projects:      v.Summaries,
		Advisories:    v.Advisories,
		Conflicts:     v.Conflicts,
		Milestones:    statuses,
	}
	if !epoch.IsZero() {
		doc.Epoch = epoch.Format("2006-01-02")
	}
	for _, t := range v.Graph.Tasks() {
		ts := v.Schedules[t.ID]
		if ts == nil {
			continue
		}
		doc.Tasks = append(doc.Tasks, TaskRow{
			ID:           t.ID,
			Project:      t.ProjectID,
			Name:         t.Name,
			Status:       t.Status,
			DurationDays: ts.DurationDays,
			ES:           ts.ES,
			EF:           ts.EF,
			LS:           ts.LS,
			LF:           ts.LF,
			Float:        ts.Float,
			Critical:     ts.Critical,
		})
	}
	sort.Slice(doc.Tasks, func(i, j int) bool {
		if doc.Tasks[i].ES != doc.Tasks[j].ES {
			return doc.Tasks[i].ES < doc.Tasks[j].ES
		}
		return doc.Tasks[i].ID < doc.Tasks[j].ID
	})
	return doc
}

// Save writes the snapshot as indented JSON.
func (s *SnapshotDoc) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
