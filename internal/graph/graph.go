package graph

import (
	"fmt"
	"sort"
)

// Graph is the in-memory store of tasks, dependency edges, projects and
// milestones, spanning all projects. Edges may cross project boundaries.
// It is not safe for concurrent use; the engine serializes mutations and
// hands read-only clones to concurrent readers.
type Graph struct {
	tasks      map[string]*Task
	projects   map[string]*Project
	milestones map[string]*Milestone
	adj        map[string][]*Edge // predecessor id -> outgoing edges
	radj       map[string][]*Edge // successor id -> incoming edges
	pairs      map[[2]string]*Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		tasks:      make(map[string]*Task),
		projects:   make(map[string]*Project),
		milestones: make(map[string]*Milestone),
		adj:        make(map[string][]*Edge),
		radj:       make(map[string][]*Edge),
		pairs:      make(map[[2]string]*Edge),
	}
}

// AddProject registers a project. The deadline, if any, is advisory.
func (g *Graph) AddProject(p *Project) error {
	if p.ID == "" {
		return fmt.Errorf("project id is empty")
	}
	if _, ok := g.projects[p.ID]; ok {
		return fmt.Errorf("duplicate project %q", p.ID)
	}
	g.projects[p.ID] = cloneProject(p)
	return nil
}

// UpdateProject replaces a project record, keyed by p.ID.
func (g *Graph) UpdateProject(p *Project) error {
	if _, ok := g.projects[p.ID]; !ok {
		return fmt.Errorf("%w: %q", ErrProjectNotFound, p.ID)
	}
	g.projects[p.ID] = cloneProject(p)
	return nil
}

// AddTask inserts a task. The task's project must already exist. Empty
// status and priority default to todo/medium.
func (g *Graph) AddTask(t *Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is empty")
	}
	if _, ok := g.tasks[t.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, t.ID)
	}
	if err := g.checkTask(t); err != nil {
		return err
	}
	g.tasks[t.ID] = normalizeTask(t)
	return nil
}

// UpdateTask replaces a task record, keyed by t.ID. A task cannot move to
// another project; remove and re-add instead so milestone links stay
// within their owning project.
func (g *Graph) UpdateTask(t *Task) error {
	old, ok := g.tasks[t.ID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, t.ID)
	}
	if t.ProjectID != old.ProjectID {
		return fmt.Errorf("task %q cannot change project (%q -> %q)", t.ID, old.ProjectID, t.ProjectID)
	}
	if err := g.checkTask(t); err != nil {
		return err
	}
	g.tasks[t.ID] = normalizeTask(t)
	return nil
}

// RemoveTask deletes a task. It fails if other tasks depend on it unless
// cascade is set, in which case all incident edges are detached. The
// task is also unlinked from any milestones.
func (g *Graph) RemoveTask(id string, cascade bool) error {
	if _, ok := g.tasks[id]; !ok {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	if n := len(g.adj[id]); n > 0 && !cascade {
		return fmt.Errorf("%w: %q blocks %d task(s)", ErrTaskHasDependents, id, n)
	}
	for _, e := range append([]*Edge(nil), g.adj[id]...) {
		g.deleteEdge(e.From, e.To)
	}
	for _, e := range append([]*Edge(nil), g.radj[id]...) {
		g.deleteEdge(e.From, e.To)
	}
	delete(g.tasks, id)
	for _, m := range g.milestones {
		m.TaskIDs = removeString(m.TaskIDs, id)
	}
	return nil
}

// AddEdge inserts a dependency edge after full validation: both endpoints
// must exist, the ordered pair must be new, and the edge must not close a
// cycle. On a cycle the returned error is a *CycleError carrying the full
// path, graph unchanged.
func (g *Graph) AddEdge(e *Edge) error {
	cp := *e
	if cp.Type == "" {
		cp.Type = FinishToStart
	}
	if err := g.checkEdge(&cp); err != nil {
		return err
	}
	if path := g.pathBetween(cp.To, cp.From); path != nil {
		return NewCycleError(append([]string{cp.From}, path...))
	}
	g.insertEdge(&cp)
	return nil
}

// StageEdge inserts an edge without the cycle gate. Bulk loads stage all
// edges and then call Validate once; a staged graph must not be used
// before Validate passes.
func (g *Graph) StageEdge(e *Edge) error {
	cp := *e
	if cp.Type == "" {
		cp.Type = FinishToStart
	}
	if err := g.checkEdge(&cp); err != nil {
		return err
	}
	g.insertEdge(&cp)
	return nil
}

// UpdateEdge changes the type and lag of an existing edge. Direction is
// fixed, so no cycle check is needed.
func (g *Graph) UpdateEdge(from, to string, typ DepType, lagDays int) error {
	e, ok := g.pairs[[2]string{from, to}]
	if !ok {
		return fmt.Errorf("%w: %s->%s", ErrEdgeNotFound, from, to)
	}
	if !typ.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDepType, string(typ))
	}
	e.Type = typ
	e.LagDays = lagDays
	return nil
}

// RemoveEdge deletes the edge between an ordered task pair.
func (g *Graph) RemoveEdge(from, to string) error {
	if _, ok := g.pairs[[2]string{from, to}]; !ok {
		return fmt.Errorf("%w: %s->%s", ErrEdgeNotFound, from, to)
	}
	g.deleteEdge(from, to)
	return nil
}

// AddMilestone registers a milestone. Linked tasks must exist and belong
// to the milestone's own project; cross-project links are rejected.
func (g *Graph) AddMilestone(m *Milestone) error {
	if m.ID == "" {
		return fmt.Errorf("milestone id is empty")
	}
	if _, ok := g.milestones[m.ID]; ok {
		return fmt.Errorf("duplicate milestone %q", m.ID)
	}
	if err := g.checkMilestone(m); err != nil {
		return err
	}
	g.milestones[m.ID] = cloneMilestone(m)
	return nil
}

// UpdateMilestone replaces a milestone record, keyed by m.ID.
func (g *Graph) UpdateMilestone(m *Milestone) error {
	if _, ok := g.milestones[m.ID]; !ok {
		return fmt.Errorf("%w: %q", ErrMilestoneNotFound, m.ID)
	}
	if err := g.checkMilestone(m); err != nil {
		return err
	}
	g.milestones[m.ID] = cloneMilestone(m)
	return nil
}

func (g *Graph) checkTask(t *Task) error {
	if t.EstimateMins < 0 {
		return fmt.Errorf("%w: task %q estimate %d mins", ErrNegativeDuration, t.ID, t.EstimateMins)
	}
	if t.ActualMins != nil && *t.ActualMins < 0 {
		return fmt.Errorf("%w: task %q actual %d mins", ErrNegativeDuration, t.ID, *t.ActualMins)
	}
	if t.ProjectID == "" {
		return fmt.Errorf("task %q has no project", t.ID)
	}
	if _, ok := g.projects[t.ProjectID]; !ok {
		return fmt.Errorf("%w: %q", ErrProjectNotFound, t.ProjectID)
	}
	if t.Status != "" && !t.Status.Valid() {
		return fmt.Errorf("task %q: unknown status %q", t.ID, t.Status)
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return fmt.Errorf("task %q: unknown priority %q", t.ID, t.Priority)
	}
	return nil
}

func (g *Graph) checkEdge(e *Edge) error {
	if _, ok := g.tasks[e.From]; !ok {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, e.From)
	}
	if _, ok := g.tasks[e.To]; !ok {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, e.To)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDepType, string(e.Type))
	}
	if _, ok := g.pairs[[2]string{e.From, e.To}]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEdge, e.Key())
	}
	return nil
}

func (g *Graph) checkMilestone(m *Milestone) error {
	if _, ok := g.projects[m.ProjectID]; !ok {
		return fmt.Errorf("%w: %q", ErrProjectNotFound, m.ProjectID)
	}
	for _, id := range m.TaskIDs {
		t, ok := g.tasks[id]
		if !ok {
			return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
		}
		if t.ProjectID != m.ProjectID {
			return fmt.Errorf("milestone %q: task %q belongs to project %q, not %q", m.ID, id, t.ProjectID, m.ProjectID)
		}
	}
	return nil
}

// pathBetween returns a directed path src..dst following edges forward,
// or nil if none exists. Neighbors are visited in sorted order so the
// reported path is deterministic.
func (g *Graph) pathBetween(src, dst string) []string {
	if src == dst {
		return []string{src}
	}
	parent := make(map[string]string)
	seen := map[string]bool{src: true}
	stack := []string{src}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		next := g.successorIDs(node)
		// Push in reverse so the smallest id is explored first.
		for i := len(next) - 1; i >= 0; i-- {
			nb := next[i]
			if seen[nb] {
				continue
			}
			seen[nb] = true
			parent[nb] = node
			if nb == dst {
				path := []string{dst}
				for cur := dst; cur != src; {
					cur = parent[cur]
					path = append(path, cur)
				}
				reverseStrings(path)
				return path
			}
			stack = append(stack, nb)
		}
	}
	return nil
}

// Validate checks graph-wide acyclicity and returns a *CycleError naming
// the offending path if one exists. Single-edge inserts are gated
// individually; bulk loads stage edges first and validate once here.
// Uses DFS with coloring: white (unvisited), gray (in progress), black (done).
func (g *Graph) Validate() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int)
	parent := make(map[string]string)

	var dfs func(node string) []string
	dfs = func(node string) []string {
		color[node] = gray
		for _, e := range g.adj[node] {
			next := e.To
			if color[next] == gray {
				// Found a cycle — reconstruct it
				cycle := []string{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				reverseStrings(cycle)
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	for _, id := range g.TaskIDs() {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return NewCycleError(cycle)
			}
		}
	}
	return nil
}

// Task returns the stored task. Callers must not mutate the result;
// changes go through UpdateTask.
func (g *Graph) Task(id string) (*Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns all tasks sorted by id.
func (g *Graph) Tasks() []*Task {
	out := make([]*Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TaskIDs returns all task ids sorted.
func (g *Graph) TaskIDs() []string {
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TaskCount returns the number of tasks in the graph.
func (g *Graph) TaskCount() int {
	return len(g.tasks)
}

// Project returns the stored project.
func (g *Graph) Project(id string) (*Project, bool) {
	p, ok := g.projects[id]
	return p, ok
}

// Projects returns all projects sorted by id.
func (g *Graph) Projects() []*Project {
	out := make([]*Project, 0, len(g.projects))
	for _, p := range g.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Milestone returns the stored milestone.
func (g *Graph) Milestone(id string) (*Milestone, bool) {
	m, ok := g.milestones[id]
	return m, ok
}

// Milestones returns all milestones sorted by id.
func (g *Graph) Milestones() []*Milestone {
	out := make([]*Milestone, 0, len(g.milestones))
	for _, m := range g.milestones {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edge returns the edge between an ordered task pair.
func (g *Graph) Edge(from, to string) (*Edge, bool) {
	e, ok := g.pairs[[2]string{from, to}]
	return e, ok
}

// Edges returns all edges sorted by key.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.pairs))
	for _, e := range g.pairs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Predecessors returns the incoming edges of a task, sorted by
// predecessor id. The slice is a copy; the edges are not.
func (g *Graph) Predecessors(id string) []*Edge {
	return append([]*Edge(nil), g.radj[id]...)
}

// Successors returns the outgoing edges of a task, sorted by successor id.
func (g *Graph) Successors(id string) []*Edge {
	return append([]*Edge(nil), g.adj[id]...)
}

func (g *Graph) successorIDs(id string) []string {
	edges := g.adj[id]
	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = e.To
	}
	return ids
}

// ConnectedComponent returns the ids of every task transitively connected
// to id through edges in either direction, sorted. Recomputation is
// scoped by component so unrelated projects are not reprocessed.
func (g *Graph) ConnectedComponent(id string) ([]string, error) {
	if _, ok := g.tasks[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	comp := g.component(id, make(map[string]bool))
	sort.Strings(comp)
	return comp, nil
}

// Components returns every connected component, each sorted by task id,
// ordered by first id.
func (g *Graph) Components() [][]string {
	seen := make(map[string]bool)
	var comps [][]string
	for _, id := range g.TaskIDs() {
		if seen[id] {
			continue
		}
		comp := g.component(id, seen)
		sort.Strings(comp)
		comps = append(comps, comp)
	}
	return comps
}

func (g *Graph) component(start string, seen map[string]bool) []string {
	var comp []string
	queue := []string{start}
	seen[start] = true
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		comp = append(comp, node)
		for _, e := range g.adj[node] {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
		for _, e := range g.radj[node] {
			if !seen[e.From] {
				seen[e.From] = true
				queue = append(queue, e.From)
			}
		}
	}
	return comp
}

// Filter returns the induced subgraph of tasks satisfying keep: all
// projects, the kept tasks, edges with both endpoints kept, and
// milestones trimmed to their surviving links. The engine filters by
// connected component so a recompute never touches unrelated projects.
func (g *Graph) Filter(keep func(*Task) bool) *Graph {
	sub := New()
	for id, p := range g.projects {
		sub.projects[id] = cloneProject(p)
	}
	for id, t := range g.tasks {
		if keep(t) {
			sub.tasks[id] = cloneTask(t)
		}
	}
	for _, e := range g.pairs {
		if _, ok := sub.tasks[e.From]; !ok {
			continue
		}
		if _, ok := sub.tasks[e.To]; !ok {
			continue
		}
		sub.insertEdge(e)
	}
	for id, m := range g.milestones {
		cp := cloneMilestone(m)
		kept := cp.TaskIDs[:0]
		for _, tid := range cp.TaskIDs {
			if _, ok := sub.tasks[tid]; ok {
				kept = append(kept, tid)
			}
		}
		cp.TaskIDs = kept
		sub.milestones[id] = cp
	}
	return sub
}

// Clone returns a deep copy. Resolution previews mutate clones and leave
// the committed graph untouched until accepted.
func (g *Graph) Clone() *Graph {
	cp := New()
	for id, p := range g.projects {
		cp.projects[id] = cloneProject(p)
	}
	for id, t := range g.tasks {
		cp.tasks[id] = cloneTask(t)
	}
	for id, m := range g.milestones {
		cp.milestones[id] = cloneMilestone(m)
	}
	for _, e := range g.pairs {
		cp.insertEdge(e)
	}
	return cp
}

func (g *Graph) insertEdge(e *Edge) {
	cp := *e
	g.adj[cp.From] = append(g.adj[cp.From], &cp)
	sort.Slice(g.adj[cp.From], func(i, j int) bool {
		return g.adj[cp.From][i].To < g.adj[cp.From][j].To
	})
	g.radj[cp.To] = append(g.radj[cp.To], &cp)
	sort.Slice(g.radj[cp.To], func(i, j int) bool {
		return g.radj[cp.To][i].From < g.radj[cp.To][j].From
	})
	g.pairs[[2]string{cp.From, cp.To}] = &cp
}

func (g *Graph) deleteEdge(from, to string) {
	delete(g.pairs, [2]string{from, to})
	g.adj[from] = removeEdgeFrom(g.adj[from], from, to)
	if len(g.adj[from]) == 0 {
		delete(g.adj, from)
	}
	g.radj[to] = removeEdgeFrom(g.radj[to], from, to)
	if len(g.radj[to]) == 0 {
		delete(g.radj, to)
	}
}

func normalizeTask(t *Task) *Task {
	cp := cloneTask(t)
	if cp.Status == "" {
		cp.Status = StatusTodo
	}
	if cp.Priority == "" {
		cp.Priority = PriorityMedium
	}
	return cp
}

func cloneTask(t *Task) *Task {
	cp := *t
	cp.ActualMins = cloneIntPtr(t.ActualMins)
	cp.StartDay = cloneIntPtr(t.StartDay)
	cp.DueDay = cloneIntPtr(t.DueDay)
	cp.CompletedDay = cloneIntPtr(t.CompletedDay)
	cp.Labels = append([]string(nil), t.Labels...)
	return &cp
}

func cloneProject(p *Project) *Project {
	cp := *p
	cp.DeadlineDay = cloneIntPtr(p.DeadlineDay)
	return &cp
}

func cloneMilestone(m *Milestone) *Milestone {
	cp := *m
	cp.CompletedDay = cloneIntPtr(m.CompletedDay)
	cp.TaskIDs = append([]string(nil), m.TaskIDs...)
	sort.Strings(cp.TaskIDs)
	return &cp
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func removeEdgeFrom(edges []*Edge, from, to string) []*Edge {
	out := edges[:0]
	for _, e := range edges {
		if e.From == from && e.To == to {
			continue
		}
		out = append(out, e)
	}
	return out
}

func removeString(ss []string, s string) []string {
	out := ss[:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func reverseStrings(ss []string) {
	for i, j := 0, len(ss)-1; i < j; i, j = i+1, j-1 {
		ss[i], ss[j] = ss[j], ss[i]
	}
}
