package cpm

import (
	"sort"

	"github.com/slacklinehq/slackline/internal/graph"
)

// maxCriticalPaths caps chain enumeration. Parallel critical diamonds
// multiply paths combinatorially and reporting needs only a handful.
const maxCriticalPaths = 16

// ExtractPaths walks the zero-float subgraph along binding edges and
// returns every maximal chain, head to tail. Parallel critical chains are
// reported separately; in a diamond the branches share their endpoints.
// The schedule map may come from a single Analyze pass or from snapshots
// merged across scoped recomputes; only tasks present in it are walked.
func ExtractPaths(g *graph.Graph, sched map[string]*TaskSchedule) []CriticalPath {
	var heads []string
	for _, id := range g.TaskIDs() {
		ts := sched[id]
		if ts == nil || !ts.Critical {
			continue
		}
		if len(bindingPreds(g, sched, id)) == 0 {
			heads = append(heads, id)
		}
	}

	var paths []CriticalPath
	var walk func(id string, trail []string)
	walk = func(id string, trail []string) {
		if len(paths) >= maxCriticalPaths {
			return
		}
		trail = append(trail, id)
		next := bindingSuccs(g, sched, id)
		if len(next) == 0 {
			ids := append([]string(nil), trail...)
			first := sched[ids[0]]
			last := sched[ids[len(ids)-1]]
			paths = append(paths, CriticalPath{TaskIDs: ids, Days: last.EF - first.ES})
			return
		}
		for _, nb := range next {
			walk(nb, trail)
		}
	}
	for _, h := range heads {
		walk(h, nil)
	}
	return paths
}

// binding reports whether an edge is the constraint actually holding its
// successor in place, with both endpoints on the critical path.
func binding(e *graph.Edge, sched map[string]*TaskSchedule) bool {
	pred := sched[e.From]
	succ := sched[e.To]
	if pred == nil || succ == nil || !pred.Critical || !succ.Critical {
		return false
	}
	return ForwardBound(e, pred, succ.DurationDays) == succ.ES
}

func bindingPreds(g *graph.Graph, sched map[string]*TaskSchedule, id string) []string {
	var out []string
	for _, e := range g.Predecessors(id) {
		if binding(e, sched) {
			out = append(out, e.From)
		}
	}
	return out
}

func bindingSuccs(g *graph.Graph, sched map[string]*TaskSchedule, id string) []string {
	var out []string
	for _, e := range g.Successors(id) {
		if binding(e, sched) {
			out = append(out, e.To)
		}
	}
	return out
}

// Summarize builds the per-project rollups and deadline advisories from a
// schedule map covering the graph's tasks.
func Summarize(g *graph.Graph, sched map[string]*TaskSchedule) (map[string]*ProjectSummary, []DeadlineAdvisory) {
	type bounds struct {
		minES, maxEF   int
		cMinES, cMaxEF int
		any, anyCrit   bool
	}
	acc := make(map[string]*bounds)

	sums := make(map[string]*ProjectSummary)
	for _, p := range g.Projects() {
		s := &ProjectSummary{ProjectID: p.ID}
		if p.DeadlineDay != nil {
			d := *p.DeadlineDay
			s.DeadlineDay = &d
		}
		sums[p.ID] = s
		acc[p.ID] = &bounds{}
	}

	for _, t := range g.Tasks() {
		ts := sched[t.ID]
		s := sums[t.ProjectID]
		b := acc[t.ProjectID]
		if s == nil || ts == nil {
			continue
		}
		s.TaskCount++
		if !b.any || ts.ES < b.minES {
			b.minES = ts.ES
		}
		if !b.any || ts.EF > b.maxEF {
			b.maxEF = ts.EF
		}
		b.any = true
		if ts.Critical {
			s.CriticalCount++
			if !b.anyCrit || ts.ES < b.cMinES {
				b.cMinES = ts.ES
			}
			if !b.anyCrit || ts.EF > b.cMaxEF {
				b.cMaxEF = ts.EF
			}
			b.anyCrit = true
		}
	}

	var advisories []DeadlineAdvisory
	for id, s := range sums {
		b := acc[id]
		if b.any {
			s.TotalDays = b.maxEF - b.minES
		}
		if b.anyCrit {
			s.CriticalDays = b.cMaxEF - b.cMinES
		}
		s.BufferDays = s.TotalDays - s.CriticalDays
		if s.DeadlineDay != nil && b.any && b.maxEF > *s.DeadlineDay {
			s.Infeasible = true
			advisories = append(advisories, DeadlineAdvisory{
				ProjectID:     id,
				DeadlineDay:   *s.DeadlineDay,
				HorizonDay:    b.maxEF,
				ShortfallDays: b.maxEF - *s.DeadlineDay,
			})
		}
	}
	sort.Slice(advisories, func(i, j int) bool { return advisories[i].ProjectID < advisories[j].ProjectID })

	return sums, advisories
}
