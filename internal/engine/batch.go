package engine

import (
	"fmt"

	"github.com/slacklinehq/slackline/internal/graph"
)

// Batch stages several mutations for a single validation and recompute.
// Operations are recorded and replayed against a clone at Commit; any
// failure abandons the clone, so the live graph never holds half a
// batch. Edges skip the per-edge cycle gate and are validated once at
// the end, which is the point of batching bulk loads.
type Batch struct {
	e   *Engine
	ops []batchOp
}

type batchOp struct {
	name  string
	apply func(*graph.Graph) error
}

// Batch starts an empty batch against the engine.
func (e *Engine) Batch() *Batch {
	return &Batch{e: e}
}

func (b *Batch) add(name string, apply func(*graph.Graph) error) {
	b.ops = append(b.ops, batchOp{name: name, apply: apply})
}

// Len reports the number of staged operations.
func (b *Batch) Len() int { return len(b.ops) }

func (b *Batch) AddProject(p *graph.Project) {
	b.add("add project "+p.ID, func(g *graph.Graph) error { return g.AddProject(p) })
}

func (b *Batch) UpdateProject(p *graph.Project) {
	b.add("update project "+p.ID, func(g *graph.Graph) error { return g.UpdateProject(p) })
}

func (b *Batch) AddTask(t *graph.Task) {
	b.add("add task "+t.ID, func(g *graph.Graph) error { return g.AddTask(t) })
}

func (b *Batch) UpdateTask(t *graph.Task) {
	b.add("update task "+t.ID, func(g *graph.Graph) error { return g.UpdateTask(t) })
}

func (b *Batch) RemoveTask(id string, cascade bool) {
	b.add("remove task "+id, func(g *graph.Graph) error { return g.RemoveTask(id, cascade) })
}

func (b *Batch) AddEdge(ed *graph.Edge) {
	b.add("add edge "+ed.Key(), func(g *graph.Graph) error { return g.StageEdge(ed) })
}

func (b *Batch) UpdateEdge(from, to string, typ graph.DepType, lagDays int) {
	b.add("update edge "+from+"->"+to, func(g *graph.Graph) error { return g.UpdateEdge(from, to, typ, lagDays) })
}

func (b *Batch) RemoveEdge(from, to string) {
	b.add("remove edge "+from+"->"+to, func(g *graph.Graph) error { return g.RemoveEdge(from, to) })
}

func (b *Batch) AddMilestone(m *graph.Milestone) {
	b.add("add milestone "+m.ID, func(g *graph.Graph) error { return g.AddMilestone(m) })
}

func (b *Batch) UpdateMilestone(m *graph.Milestone) {
	b.add("update milestone "+m.ID, func(g *graph.Graph) error { return g.UpdateMilestone(m) })
}

// Commit replays the staged operations on a clone, validates the result
// and swaps it in with one full recompute. All or nothing: the first
// failing operation aborts the whole batch.
func (b *Batch) Commit() (*View, error) {
	b.e.mu.Lock()
	defer b.e.mu.Unlock()
	work := b.e.g.Clone()
	for i, op := range b.ops {
		if err := op.apply(work); err != nil {
			return nil, fmt.Errorf("batch op %d (%s): %w", i+1, op.name, err)
		}
	}
	if err := work.Validate(); err != nil {
		return nil, err
	}
	b.e.g = work
	v, err := b.e.recomputeLocked(nil)
	if err != nil {
		return nil, err
	}
	b.e.log.Debug("batch committed", "ops", len(b.ops), "generation", v.Generation)
	return v, nil
}
