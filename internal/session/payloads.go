package session

import (
	"taskbot/internal/config"
	"taskbot/internal/domain"
)

// PendingTask is a drafted task that exists only in session state.
type PendingTask struct {
	Name            string `json:"task_name"`
	Deadline        string `json:"deadline"`
	Assignee        string `json:"assignee"`
	AssigneeDisplay string `json:"assignee_display"`
}

// Candidate is a user offered during assignee disambiguation.
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PendingBatch is the ordered batch awaiting confirmation.
type PendingBatch struct {
	Tasks          []PendingTask `json:"tasks"`
	ShowAddAnother bool          `json:"show_add_another,omitempty"`
}

func (PendingBatch) Kind() string { return config.KindPendingTasks }

type GuidedStep string

const (
	StepName     GuidedStep = "name"
	StepDeadline GuidedStep = "deadline"
	StepAssignee GuidedStep = "assignee"
)

// GuidedFlow is the wizard state. Tasks holds tasks finished earlier in an
// add-another loop; Draft is the task being built.
type GuidedFlow struct {
	Step       GuidedStep    `json:"step"`
	Tasks      []PendingTask `json:"tasks"`
	Draft      PendingTask   `json:"draft"`
	Candidates []Candidate   `json:"candidates,omitempty"`
}

func (GuidedFlow) Kind() string { return config.KindGuidedFlow }

type EditMode string

const (
	ModeSelecting EditMode = "selecting"
	ModeEditing   EditMode = "editing"
)

// DeadlineEdit tracks a deadline change inside the pending batch. Index is
// zero-based and only meaningful in editing mode.
type DeadlineEdit struct {
	Mode  EditMode `json:"mode"`
	Index int      `json:"index"`
}

func (DeadlineEdit) Kind() string { return config.KindDeadlineEdit }

// AmbiguousTask is a drafted task whose assignee term needs a decision.
type AmbiguousTask struct {
	Name       string      `json:"task_name"`
	Deadline   string      `json:"deadline"`
	SearchTerm string      `json:"search_term"`
	Matches    []Candidate `json:"matches"`
}

// AssignChain is the ambiguous-assignee queue. Queue[0] is the item on screen.
type AssignChain struct {
	Confirmed []PendingTask   `json:"confirmed_tasks"`
	Queue     []AmbiguousTask `json:"queue"`
}

func (AssignChain) Kind() string { return config.KindPendingTaskAssign }

// StatusCounts is the footer summary of a task list.
type StatusCounts struct {
	NotStarted int `json:"not_started"`
	InProgress int `json:"in_progress"`
	Overdue    int `json:"overdue"`
	OnHold     int `json:"on_hold"`
}

// Summary buckets, in footer order.
const (
	BucketNotStarted = "not_started"
	BucketInProgress = "in_progress"
	BucketOverdue    = "overdue"
	BucketOnHold     = "on_hold"
)

type ListEntry struct {
	TaskID   string        `json:"task_id"`
	Title    string        `json:"task_title"`
	DaysText string        `json:"days_text"`
	Status   domain.Status `json:"status"`
}

// TaskList is the paginated projection of the last list shown.
type TaskList struct {
	Entries []ListEntry   `json:"tasks"`
	Page    int           `json:"page"`
	Header  string        `json:"header"`
	Counts  *StatusCounts `json:"status_counts,omitempty"`
	Exclude string        `json:"exclude_status,omitempty"`
}

func (TaskList) Kind() string { return config.KindTaskList }

// DeadlineEditTask names the persisted task last selected. Awaiting is set
// once the user asked to change its deadline.
type DeadlineEditTask struct {
	TaskID   string `json:"task_id"`
	Awaiting bool   `json:"awaiting,omitempty"`
}

func (DeadlineEditTask) Kind() string { return config.KindDeadlineEditTask }
