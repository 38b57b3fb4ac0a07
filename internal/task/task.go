package task

import (
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s)
	}
	return PriorityMedium
}

// Capitalized returns the priority for user-facing text ("High", "Medium", "Low").
func (p Priority) Capitalized() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityLow:
		return "Low"
	}
	return "Medium"
}

type Type string

const (
	TypeAppointment Type = "Appointment"
	TypeMeeting     Type = "Meeting"
	TypeAssignment  Type = "Assignment"
	TypeOther       Type = "Other"
)

func ParseType(s string) Type {
	switch Type(s) {
	case TypeAppointment, TypeMeeting, TypeAssignment, TypeOther:
		return Type(s)
	}
	return TypeOther
}

// Task is the authoritative task record. Owned by the Store; everything
// else refers to it by ID.
type Task struct {
	ID                     string      `json:"id"`
	Owner                  string      `json:"owner"`
	Text                   string      `json:"text"`
	IsCompleted            bool        `json:"isCompleted"`
	CompletedAt            *time.Time  `json:"completedAt,omitempty"`
	DueDate                *time.Time  `json:"dueDate,omitempty"`
	Priority               Priority    `json:"priority"`
	Reminders              []time.Time `json:"reminders,omitempty"`
	Category               string      `json:"category,omitempty"`
	Type                   Type        `json:"type"`
	CustomNotificationTime *time.Time  `json:"customNotificationTime,omitempty"`
	CreatedAt              time.Time   `json:"createdAt"`
}

// New builds a task with generated ID and defaults applied.
func New(owner, text string, now time.Time) Task {
	return Task{
		ID:        uuid.NewString(),
		Owner:     owner,
		Text:      text,
		Priority:  PriorityMedium,
		Type:      TypeOther,
		CreatedAt: now,
	}
}

// SetCompleted toggles completion and keeps the completedAt invariant:
// the timestamp exists iff the task is completed.
func (t *Task) SetCompleted(done bool, now time.Time) {
	t.IsCompleted = done
	if done {
		at := now
		t.CompletedAt = &at
	} else {
		t.CompletedAt = nil
	}
}

// Pending reports whether the task should be considered for notification
// scheduling: not completed and carrying a deadline.
func (t *Task) Pending() bool {
	return !t.IsCompleted && t.DueDate != nil
}

// Clone returns a deep copy so callers can never alias store-owned state.
func (t Task) Clone() Task {
	c := t
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.DueDate != nil {
		v := *t.DueDate
		c.DueDate = &v
	}
	if t.CustomNotificationTime != nil {
		v := *t.CustomNotificationTime
		c.CustomNotificationTime = &v
	}
	if t.Reminders != nil {
		c.Reminders = make([]time.Time, len(t.Reminders))
		copy(c.Reminders, t.Reminders)
	}
	return c
}
