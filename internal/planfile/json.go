package planfile

import (
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// ParseJSON decodes a JSON plan document. The reader tolerates the small
// ways hand-maintained files drift: estimates and dates may be numbers
// or strings, and unknown keys are ignored.
func ParseJSON(src []byte) (*Document, error) {
	if !gjson.ValidBytes(src) {
		return nil, fmt.Errorf("invalid JSON plan")
	}
	root := gjson.ParseBytes(src)

	doc := &Document{
		Epoch:   root.Get("epoch").String(),
		Workday: int(root.Get("workday").Int()),
	}
	for _, p := range root.Get("projects").Array() {
		doc.Projects = append(doc.Projects, ProjectDecl{
			ID:       p.Get("id").String(),
			Name:     p.Get("name").String(),
			Deadline: literal(p.Get("deadline")),
		})
	}
	for _, t := range root.Get("tasks").Array() {
		doc.Tasks = append(doc.Tasks, TaskDecl{
			ID:       t.Get("id").String(),
			Project:  t.Get("project").String(),
			Name:     t.Get("name").String(),
			Estimate: literal(t.Get("estimate")),
			Status:   t.Get("status").String(),
			Priority: t.Get("priority").String(),
			Start:    literal(t.Get("start")),
			Due:      literal(t.Get("due")),
			Labels:   stringList(t.Get("labels")),
		})
	}
	for _, d := range root.Get("dependencies").Array() {
		doc.Deps = append(doc.Deps, DepDecl{
			From: d.Get("from").String(),
			To:   d.Get("to").String(),
			Type: d.Get("type").String(),
			Lag:  int(d.Get("lag").Int()),
		})
	}
	for _, m := range root.Get("milestones").Array() {
		doc.Milestones = append(doc.Milestones, MilestoneDecl{
			ID:        m.Get("id").String(),
			Project:   m.Get("project").String(),
			Name:      m.Get("name").String(),
			Due:       literal(m.Get("due")),
			Critical:  m.Get("critical").Bool(),
			Completed: m.Get("completed").Bool(),
			Tasks:     stringList(m.Get("tasks")),
		})
	}
	return doc, nil
}

// literal renders a scalar as the raw string form Build parses, keeping
// JSON numbers and quoted values interchangeable.
func literal(r gjson.Result) string {
	switch r.Type {
	case gjson.Number:
		return strconv.Itoa(int(r.Int()))
	case gjson.String:
		return r.Str
	}
	return ""
}

func stringList(r gjson.Result) []string {
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}
