// Package planfile reads and writes slackline plan documents. Plans are
// authored in HCL or JSON and build into a validated task graph in one
// shot: edges are staged without the per-edge cycle gate and the whole
// graph is validated once at the end, so a cyclic plan is rejected with
// its full path.
package planfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/slacklinehq/slackline/internal/cpm"
	"github.com/slacklinehq/slackline/internal/graph"
)

// Document is a parsed plan before graph assembly. Date fields hold raw
// literals (a signed day offset or a 2006-01-02 calendar date) and are
// resolved in Build, so the HCL and JSON readers stay dumb.
type Document struct {
	Epoch      string // calendar day zero; empty means offsets only
	Workday    int    // minutes per working day for estimate parsing
	Projects   []ProjectDecl
	Tasks      []TaskDecl
	Deps       []DepDecl
	Milestones []MilestoneDecl
}

type ProjectDecl struct {
	ID       string
	Name     string
	Deadline string
}

type TaskDecl struct {
	ID       string
	Project  string
	Name     string
	Estimate string
	Status   string
	Priority string
	Start    string
	Due      string
	Labels   []string
}

type DepDecl struct {
	From string
	To   string
	Type string
	Lag  int
}

type MilestoneDecl struct {
	ID        string
	Project   string
	Name      string
	Due       string
	Critical  bool
	Completed bool
	Tasks     []string
}

// Load reads a plan from disk, dispatching on the file extension.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".hcl":
		return ParseHCL(data, path)
	case ".json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("plan file %s: unsupported extension %q (want .hcl or .json)", path, ext)
	}
}

// EpochTime parses the document epoch; ok is false when none is set.
func (d *Document) EpochTime() (epoch time.Time, ok bool, err error) {
	if d.Epoch == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse("2006-01-02", d.Epoch)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("plan epoch %q: %w", d.Epoch, err)
	}
	return t, true, nil
}

// BuildOptions override document-level settings during assembly.
type BuildOptions struct {
	WorkdayMins int       // estimate conversion fallback when the document pins none
	Epoch       time.Time // resolves calendar dates; zero falls back to the document epoch
}

// Build assembles the declared plan into a validated graph. Missing task
// and milestone ids are minted; dependency and milestone references
// resolve by task id first, then by unique task name.
func (d *Document) Build(opts BuildOptions) (*graph.Graph, error) {
	wd := d.Workday
	if wd <= 0 {
		wd = opts.WorkdayMins
	}
	if wd <= 0 {
		wd = cpm.DefaultWorkdayMins
	}
	epoch := opts.Epoch
	if epoch.IsZero() {
		t, ok, err := d.EpochTime()
		if err != nil {
			return nil, err
		}
		if ok {
			epoch = t
		}
	}

	g := graph.New()
	declared := make(map[string]bool, len(d.Projects))
	for _, pd := range d.Projects {
		p := &graph.Project{ID: pd.ID, Name: pd.Name}
		if pd.Deadline != "" {
			day, err := parseDay(pd.Deadline, epoch)
			if err != nil {
				return nil, fmt.Errorf("project %s deadline: %w", pd.ID, err)
			}
			p.DeadlineDay = &day
		}
		if err := g.AddProject(p); err != nil {
			return nil, err
		}
		declared[pd.ID] = true
	}
	// Projects referenced only by tasks or milestones are created bare,
	// so quick plans can skip project blocks.
	implicit := func(id string) error {
		if id == "" || declared[id] {
			return nil
		}
		declared[id] = true
		return g.AddProject(&graph.Project{ID: id})
	}
	for _, td := range d.Tasks {
		if err := implicit(td.Project); err != nil {
			return nil, err
		}
	}
	for _, md := range d.Milestones {
		if err := implicit(md.Project); err != nil {
			return nil, err
		}
	}

	// Assign ids up front so name references can be resolved in any
	// declaration order.
	taskIDs := make([]string, len(d.Tasks))
	ids := make(map[string]bool, len(d.Tasks))
	byName := make(map[string]string)
	dupName := make(map[string]bool)
	for i, td := range d.Tasks {
		id := td.ID
		if id == "" {
			id = uuid.New().String()
		}
		taskIDs[i] = id
		ids[id] = true
		if td.Name != "" {
			if _, seen := byName[td.Name]; seen {
				dupName[td.Name] = true
			}
			byName[td.Name] = id
		}
	}
	resolve := func(ref string) (string, error) {
		if ids[ref] {
			return ref, nil
		}
		if id, ok := byName[ref]; ok {
			if dupName[ref] {
				return "", fmt.Errorf("task reference %q matches more than one task name", ref)
			}
			return id, nil
		}
		return "", fmt.Errorf("%w: %q", graph.ErrTaskNotFound, ref)
	}

	for i, td := range d.Tasks {
		t := &graph.Task{
			ID:        taskIDs[i],
			ProjectID: td.Project,
			Name:      td.Name,
			Labels:    td.Labels,
		}
		if td.Status != "" {
			st, err := graph.ParseStatus(td.Status)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", t.ID, err)
			}
			t.Status = st
		}
		if td.Priority != "" {
			p, err := graph.ParsePriority(td.Priority)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", t.ID, err)
			}
			t.Priority = p
		}
		est, err := parseEstimate(td.Estimate, wd)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		t.EstimateMins = est
		if td.Start != "" {
			day, err := parseDay(td.Start, epoch)
			if err != nil {
				return nil, fmt.Errorf("task %s start: %w", t.ID, err)
			}
			t.StartDay = &day
		}
		if td.Due != "" {
			day, err := parseDay(td.Due, epoch)
			if err != nil {
				return nil, fmt.Errorf("task %s due: %w", t.ID, err)
			}
			t.DueDay = &day
		}
		if err := g.AddTask(t); err != nil {
			return nil, err
		}
	}

	for _, dd := range d.Deps {
		from, err := resolve(dd.From)
		if err != nil {
			return nil, fmt.Errorf("dependency from: %w", err)
		}
		to, err := resolve(dd.To)
		if err != nil {
			return nil, fmt.Errorf("dependency to: %w", err)
		}
		e := &graph.Edge{From: from, To: to, LagDays: dd.Lag}
		if dd.Type != "" {
			typ, err := graph.ParseDepType(dd.Type)
			if err != nil {
				return nil, fmt.Errorf("dependency %s -> %s: %w", dd.From, dd.To, err)
			}
			e.Type = typ
		}
		if err := g.StageEdge(e); err != nil {
			return nil, fmt.Errorf("dependency %s -> %s: %w", dd.From, dd.To, err)
		}
	}

	for _, md := range d.Milestones {
		id := md.ID
		if id == "" {
			id = uuid.New().String()
		}
		if md.Due == "" {
			return nil, fmt.Errorf("milestone %s: due date is required", id)
		}
		due, err := parseDay(md.Due, epoch)
		if err != nil {
			return nil, fmt.Errorf("milestone %s due: %w", id, err)
		}
		m := &graph.Milestone{
			ID:        id,
			ProjectID: md.Project,
			Name:      md.Name,
			DueDay:    due,
			Critical:  md.Critical,
			Completed: md.Completed,
		}
		for _, ref := range md.Tasks {
			tid, err := resolve(ref)
			if err != nil {
				return nil, fmt.Errorf("milestone %s: %w", id, err)
			}
			m.TaskIDs = append(m.TaskIDs, tid)
		}
		if err := g.AddMilestone(m); err != nil {
			return nil, err
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// parseEstimate converts an estimate literal to minutes: "3d" in working
// days, "5h" in hours, "90m" or a bare number in minutes. Empty is zero.
func parseEstimate(s string, workdayMins int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	num, mult := s, 1
	switch s[len(s)-1] {
	case 'd':
		num, mult = s[:len(s)-1], workdayMins
	case 'h':
		num, mult = s[:len(s)-1], 60
	case 'm':
		num = s[:len(s)-1]
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0, fmt.Errorf("bad estimate %q (want minutes or a d/h/m suffix)", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: estimate %q", graph.ErrNegativeDuration, s)
	}
	return n * mult, nil
}

// parseDay resolves a date literal to a whole-day offset: a bare signed
// integer, or a calendar date positioned against the epoch.
func parseDay(s string, epoch time.Time) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("bad date %q (want a day offset or 2006-01-02)", s)
	}
	if epoch.IsZero() {
		return 0, fmt.Errorf("calendar date %q needs a plan epoch", s)
	}
	return int(t.Sub(epoch).Hours() / 24), nil
}
