// Package wbs implements the Graph Engine: loading a Work Breakdown
// Structure, validating it is acyclic, tracking task lifecycle state, and
// computing the runnable frontier.
package wbs

// TaskState is a task's lifecycle state.
type TaskState string

const (
	StatePending    TaskState = "pending"
	StateInProgress TaskState = "in_progress"
	StateCompleted  TaskState = "completed"
	StateFailed     TaskState = "failed"
)

// Task is a single unit of work in the WBS.
type Task struct {
	ID           string    `yaml:"id" json:"id"`
	Name         string    `yaml:"name" json:"name"`
	Dependencies []string  `yaml:"dependencies" json:"dependencies"`
	Prompt       string    `yaml:"prompt" json:"prompt"`
	Phase        string    `yaml:"-" json:"phase"`
	State        TaskState `yaml:"-" json:"state"`
}

// Phase is a named grouping of tasks with an optional single predecessor
// phase; every task in the predecessor phase must complete before any task
// in this phase may start.
type Phase struct {
	ID             string `yaml:"id" json:"id"`
	DependsOnPhase string `yaml:"depends_on_phase" json:"depends_on_phase,omitempty"`
	Tasks          []Task `yaml:"tasks" json:"tasks"`
}

// Project carries the optional root-level `project.name` attribute.
type Project struct {
	Name string `yaml:"name" json:"name"`
}

// Document is the WBS input format: a list of phases plus optional project
// metadata. Unknown fields are ignored by the YAML decoder.
type Document struct {
	Project Project `yaml:"project" json:"project"`
	Phases  []Phase `yaml:"phases" json:"phases"`
}

// Summary counts tasks per lifecycle state.
type Summary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
