package cpm

// DefaultWorkdayMins is the working-day length used to convert minute
// estimates to day spans when none is configured.
const DefaultWorkdayMins = 480

// Options tune the propagation arithmetic.
type Options struct {
	WorkdayMins int // minutes per working day; 0 means DefaultWorkdayMins
}

// TaskSchedule holds the computed window for one task. All values are
// whole days relative to the plan epoch; finish days are exclusive, so a
// 5-day task starting day 0 finishes day 5.
type TaskSchedule struct {
	TaskID       string `json:"task_id"`
	ProjectID    string `json:"project_id"`
	DurationDays int    `json:"duration_days"`
	ES           int    `json:"es"`
	EF           int    `json:"ef"`
	LS           int    `json:"ls"`
	LF           int    `json:"lf"`
	Float        int    `json:"float"`
	Critical     bool   `json:"critical"`
}

// CriticalPath is one zero-float chain from a chain head to a chain tail,
// linked by binding edges.
type CriticalPath struct {
	TaskIDs []string `json:"tasks"`
	Days    int      `json:"days"`
}

// ProjectSummary aggregates schedule facts for one project.
type ProjectSummary struct {
	ProjectID     string `json:"project_id"`
	TaskCount     int    `json:"task_count"`
	CriticalCount int    `json:"critical_count"`
	TotalDays     int    `json:"total_days"`
	CriticalDays  int    `json:"critical_days"`
	BufferDays    int    `json:"buffer_days"`
	DeadlineDay   *int   `json:"deadline_day,omitempty"`
	Infeasible    bool   `json:"infeasible,omitempty"`
}

// DeadlineAdvisory reports a project whose computed horizon overruns its
// deadline. Advisory only: the schedule stands and the caller decides
// what to do about it.
type DeadlineAdvisory struct {
	ProjectID     string `json:"project_id"`
	DeadlineDay   int    `json:"deadline_day"`
	HorizonDay    int    `json:"horizon_day"`
	ShortfallDays int    `json:"shortfall_days"`
}

// ScheduleSnapshot is the derived output of one propagation pass over the
// whole graph. Every recompute produces a fresh snapshot; computed fields
// are never merged back into stored task records, so they can always be
// discarded and rebuilt.
type ScheduleSnapshot struct {
	Schedules     map[string]*TaskSchedule   `json:"schedules"`
	TopoOrder     []string                   `json:"topo_order"`
	Horizon       int                        `json:"horizon"`
	TotalDays     int                        `json:"total_days"`
	CriticalPaths []CriticalPath             `json:"critical_paths"`
	Summaries     map[string]*ProjectSummary `json:"summaries"`
	Advisories    []DeadlineAdvisory         `json:"advisories,omitempty"`
}

// Schedule returns the computed window for a task id, or nil if the task
// is unknown to this snapshot.
func (s *ScheduleSnapshot) Schedule(taskID string) *TaskSchedule {
	return s.Schedules[taskID]
}
