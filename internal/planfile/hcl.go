package planfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// hclDocument mirrors the plan file schema. Date attributes stay strings
// so a single resolver handles offsets and calendar dates.
type hclDocument struct {
	Epoch      string           `hcl:"epoch,optional"`
	Workday    int              `hcl:"workday,optional"`
	Projects   []*hclProject    `hcl:"project,block"`
	Tasks      []*hclTask       `hcl:"task,block"`
	Deps       []*hclDependency `hcl:"dependency,block"`
	Milestones []*hclMilestone  `hcl:"milestone,block"`
}

type hclProject struct {
	ID       string `hcl:"id,label"`
	Name     string `hcl:"name,optional"`
	Deadline string `hcl:"deadline,optional"`
}

type hclTask struct {
	ID       string   `hcl:"id,label"`
	Project  string   `hcl:"project"`
	Name     string   `hcl:"name,optional"`
	Estimate string   `hcl:"estimate,optional"`
	Status   string   `hcl:"status,optional"`
	Priority string   `hcl:"priority,optional"`
	Start    string   `hcl:"start,optional"`
	Due      string   `hcl:"due,optional"`
	Labels   []string `hcl:"labels,optional"`
}

type hclDependency struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
	Type string `hcl:"type,optional"`
	Lag  int    `hcl:"lag,optional"`
}

type hclMilestone struct {
	ID        string   `hcl:"id,label"`
	Project   string   `hcl:"project"`
	Name      string   `hcl:"name,optional"`
	Due       string   `hcl:"due"`
	Critical  bool     `hcl:"critical,optional"`
	Completed bool     `hcl:"completed,optional"`
	Tasks     []string `hcl:"tasks,optional"`
}

// ParseHCL decodes an HCL plan document. The filename is only used in
// diagnostics.
func ParseHCL(src []byte, filename string) (*Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", filename, diags)
	}

	var raw hclDocument
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode plan file %s: %w", filename, diags)
	}

	doc := &Document{Epoch: raw.Epoch, Workday: raw.Workday}
	for _, p := range raw.Projects {
		doc.Projects = append(doc.Projects, ProjectDecl{
			ID:       p.ID,
			Name:     p.Name,
			Deadline: p.Deadline,
		})
	}
	for _, t := range raw.Tasks {
		doc.Tasks = append(doc.Tasks, TaskDecl{
			ID:       t.ID,
			Project:  t.Project,
			Name:     t.Name,
			Estimate: t.Estimate,
			Status:   t.Status,
			Priority: t.Priority,
			Start:    t.Start,
			Due:      t.Due,
			Labels:   t.Labels,
		})
	}
	for _, d := range raw.Deps {
		doc.Deps = append(doc.Deps, DepDecl{
			From: d.From,
			To:   d.To,
			Type: d.Type,
			Lag:  d.Lag,
		})
	}
	for _, m := range raw.Milestones {
		doc.Milestones = append(doc.Milestones, MilestoneDecl{
			ID:        m.ID,
			Project:   m.Project,
			Name:      m.Name,
			Due:       m.Due,
			Critical:  m.Critical,
			Completed: m.Completed,
			Tasks:     m.Tasks,
		})
	}
	return doc, nil
}
