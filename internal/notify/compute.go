// Package notify computes the future instants at which a task should
// notify its owner. Everything here is pure: task + now in, instants out.
package notify

import (
	"fmt"
	"time"

	"github.com/stellarlinkco/taskclaw/internal/task"
)

// NaiveLayout is the serialized form of an instant: local wall-clock
// time with no offset suffix. A deliberate simplification.
const NaiveLayout = "2006-01-02T15:04:05"

// proximityWindow suppresses a candidate landing this close to one
// already selected. Dedup is by proximity, not exact equality.
const proximityWindow = 60 * time.Second

type Instant struct {
	At      time.Time
	Message string
}

// defaultOffset is the lead time before the due date, keyed by task type.
func defaultOffset(tt task.Type) time.Duration {
	switch tt {
	case task.TypeAppointment:
		return 60 * time.Minute
	case task.TypeMeeting:
		return 90 * time.Minute
	case task.TypeAssignment:
		return 30 * time.Minute
	}
	return 15 * time.Minute
}

// ComputeInstants returns the ordered future notification instants for t.
//
// A custom notification time is the sole candidate when present.
// Otherwise the candidate is dueDate minus the type's default offset,
// and high-priority tasks get an extra candidate a day before the due
// date unless it lands within a minute of one already chosen. Candidates
// not strictly later than now are dropped.
func ComputeInstants(t task.Task, now time.Time) []Instant {
	var candidates []time.Time

	switch {
	case t.CustomNotificationTime != nil:
		candidates = []time.Time{*t.CustomNotificationTime}
	case t.DueDate != nil:
		candidates = []time.Time{t.DueDate.Add(-defaultOffset(t.Type))}
		if t.Priority == task.PriorityHigh {
			dayBefore := t.DueDate.Add(-24 * time.Hour)
			if !nearAny(dayBefore, candidates) {
				candidates = append(candidates, dayBefore)
			}
		}
	default:
		return nil
	}

	var out []Instant
	for _, at := range candidates {
		if !at.After(now) {
			continue
		}
		out = append(out, Instant{At: at, Message: Message(t, at)})
	}
	return out
}

func nearAny(at time.Time, selected []time.Time) bool {
	for _, s := range selected {
		d := at.Sub(s)
		if d < 0 {
			d = -d
		}
		if d <= proximityWindow {
			return true
		}
	}
	return false
}

// Message renders the user-facing reminder line for t firing at the
// given instant. The clock field shows the due date when there is one.
func Message(t task.Task, at time.Time) string {
	clock := at
	if t.DueDate != nil {
		clock = *t.DueDate
	}
	return fmt.Sprintf("Reminder: '%s' is due at %s. Priority: %s",
		t.Text, clock.Format("15:04"), t.Priority.Capitalized())
}

// Entry is one row of a generated notification schedule, in the shape
// the schedule tool serializes.
type Entry struct {
	Task     string `json:"task"`
	NotifyAt string `json:"notify_at"`
	Message  string `json:"message"`
}

// GenerateSchedule flattens ComputeInstants over every pending task with
// a due date, keeping task iteration order (not a global sort by instant).
func GenerateSchedule(tasks []task.Task, now time.Time) []Entry {
	var out []Entry
	for _, t := range tasks {
		if !t.Pending() {
			continue
		}
		for _, in := range ComputeInstants(t, now) {
			out = append(out, Entry{
				Task:     t.Text,
				NotifyAt: in.At.Format(NaiveLayout),
				Message:  in.Message,
			})
		}
	}
	return out
}
