package domain

import "time"

// DateLayout is the storage and wire format of calendar dates (deadlines,
// completion dates).
const DateLayout = "2006-01-02"

type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusOnHold     Status = "On Hold"
)

// Statuses lists every status in the order status choices are offered.
var Statuses = []Status{StatusCompleted, StatusInProgress, StatusOnHold, StatusNotStarted}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Emoji is the marker shown next to a task in chat listings.
func (s Status) Emoji() string {
	switch s {
	case StatusInProgress:
		return "🔵"
	case StatusCompleted:
		return "🟢"
	case StatusOnHold:
		return "🟠"
	default:
		return "⚫"
	}
}

// Display returns the status prefixed with its emoji.
func (s Status) Display() string {
	return s.Emoji() + " " + string(s)
}

type Task struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Status        Status  `json:"status" enum:"Not Started,In Progress,Completed,On Hold"`
	Deadline      *string `json:"deadline,omitempty" format:"date"`
	AssigneeID    *string `json:"assignee_id,omitempty"`
	CreatedBy     string  `json:"created_by"`
	CreatedOn     string  `json:"created_on" format:"date-time"`
	CompletedDate *string `json:"completed_date,omitempty" format:"date"`
	LastAlerted   *string `json:"last_alerted,omitempty" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

// DeadlineIn parses the deadline as a calendar date in loc.
func (t Task) DeadlineIn(loc *time.Location) (time.Time, bool) {
	if t.Deadline == nil || *t.Deadline == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(DateLayout, *t.Deadline, loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Assignee returns the assignee id or "".
func (t Task) Assignee() string {
	if t.AssigneeID == nil {
		return ""
	}
	return *t.AssigneeID
}

type HistoryTask struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Status        Status  `json:"status"`
	Deadline      *string `json:"deadline,omitempty"`
	AssigneeID    *string `json:"assignee_id,omitempty"`
	CompletedDate *string `json:"completed_date,omitempty"`
	ArchivedOn    string  `json:"archived_on" format:"date-time"`
}

type User struct {
	ID       string `json:"id"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	MobileNo string `json:"mobile_no,omitempty"`
	Enabled  bool   `json:"enabled"`
	UserType string `json:"user_type"`
}

// DisplayName prefers the full name and falls back to email, then id.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
