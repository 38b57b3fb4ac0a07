// Package dispatch turns a conversational turn's batch of tool calls
// into task-store mutations and one aggregated confirmation.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stellarlinkco/taskclaw/internal/notify"
	"github.com/stellarlinkco/taskclaw/internal/task"
)

// Tool names as the conversational collaborator emits them.
const (
	ToolCreateTask       = "createTask"
	ToolUpdateTask       = "updateTask"
	ToolScheduleReminder = "scheduleReminder"
	ToolDeleteTask       = "deleteTask"
	ToolAnalyze          = "analyzeProductivityPatterns"
	ToolSchedule         = "generateNotificationSchedule"
)

const (
	msgTaskNotFound      = "I couldn't find that task. It may have been deleted already."
	msgDeleteNotFound    = "I couldn't find that task, so there was nothing to delete."
	msgNeedMoreHistory   = "I need a bit more history before I can spot patterns. Add and complete at least 5 tasks, then ask me again."
	msgNothingToSchedule = "There's nothing to schedule right now: no pending tasks with deadlines."
)

// analyzeProductivityPatterns refuses to run on fewer tasks than this.
const minTasksForAnalysis = 5

// Call is one structured tool invocation from the collaborator.
type Call struct {
	Name string
	Args map[string]any
}

// Analyzer summarizes task history into a rendered productivity report.
type Analyzer interface {
	Analyze(ctx context.Context, tasks []task.Task) (string, error)
}

type Dispatcher struct {
	store    *task.Store
	owner    string
	analyzer Analyzer
}

func New(store *task.Store, owner string, analyzer Analyzer) *Dispatcher {
	return &Dispatcher{store: store, owner: owner, analyzer: analyzer}
}

// turn accumulates per-kind results while a batch is processed.
type turn struct {
	created  []string // task texts
	reminded []string // task texts
	updates  []string
	deletes  []string
	analysis string
	schedule string
}

// Dispatch applies the batch sequentially in the order supplied, then
// resolves one confirmation by fixed precedence: deletion > update >
// analysis > schedule > creation/reminder > raw conversational text.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []Call, rawText string, now time.Time) string {
	var tr turn
	for _, c := range calls {
		switch c.Name {
		case ToolCreateTask:
			if text := d.createTask(c.Args, now); text != "" {
				tr.created = append(tr.created, text)
			}
		case ToolUpdateTask:
			tr.updates = append(tr.updates, d.updateTask(c.Args, now))
		case ToolScheduleReminder:
			if text := d.scheduleReminder(c.Args); text != "" {
				tr.reminded = append(tr.reminded, text)
			} else {
				tr.updates = append(tr.updates, msgTaskNotFound)
			}
		case ToolDeleteTask:
			if text := d.deleteTask(c.Args); text != "" {
				tr.deletes = append(tr.deletes, fmt.Sprintf("Done. I've deleted %q.", text))
			} else {
				tr.deletes = append(tr.deletes, msgDeleteNotFound)
			}
		case ToolAnalyze:
			tr.analysis = d.analyze(ctx)
		case ToolSchedule:
			tr.schedule = d.generateSchedule(now)
		default:
			log.Printf("[dispatch] unknown tool %q, skipping", c.Name)
		}
	}
	return tr.resolve(rawText)
}

func (tr *turn) resolve(rawText string) string {
	switch {
	case len(tr.deletes) > 0:
		return strings.Join(tr.deletes, "\n")
	case len(tr.updates) > 0:
		return strings.Join(tr.updates, "\n\n")
	case tr.analysis != "":
		return tr.analysis
	case tr.schedule != "":
		return tr.schedule
	case len(tr.created) > 0 || len(tr.reminded) > 0:
		return tr.creationConfirmation()
	}
	return rawText
}

func (tr *turn) creationConfirmation() string {
	var parts []string
	switch {
	case len(tr.created) == 1:
		parts = append(parts, fmt.Sprintf("Got it. I've added %q to your list.", tr.created[0]))
	case len(tr.created) > 1:
		parts = append(parts, fmt.Sprintf("Got it. I've added all %d tasks to your list.", len(tr.created)))
	}
	switch {
	case len(tr.reminded) == 1:
		parts = append(parts, fmt.Sprintf("I'll remind you about %q.", tr.reminded[0]))
	case len(tr.reminded) > 1:
		parts = append(parts, fmt.Sprintf("I've set %d reminders.", len(tr.reminded)))
	}
	return strings.Join(parts, " ")
}

// createTask inserts a new task with defaults applied; returns its text.
func (d *Dispatcher) createTask(args map[string]any, now time.Time) string {
	text := argString(args, "text")
	if text == "" {
		log.Printf("[dispatch] createTask without text, skipping")
		return ""
	}

	t := task.New(d.owner, text, now)
	if p := argString(args, "priority"); p != "" {
		t.Priority = task.ParsePriority(p)
	}
	if ty := argString(args, "type"); ty != "" {
		t.Type = task.ParseType(ty)
	}
	t.Category = argString(args, "category")
	t.DueDate = argTime(args, "dueDate")
	t.CustomNotificationTime = argTime(args, "customNotificationTime")

	d.store.Insert(t)
	return t.Text
}

// updateTask diffs the requested fields against the current record.
// Fields equal to current values produce no change entry; with nothing
// effective the store is left untouched.
func (d *Dispatcher) updateTask(args map[string]any, now time.Time) string {
	id := argString(args, "taskId")
	t, ok := d.store.Get(id)
	if !ok {
		return msgTaskNotFound
	}

	var changes []string
	dueOnly := true

	if v, ok := args["newText"]; ok {
		if s, _ := v.(string); s != "" && s != t.Text {
			t.Text = s
			changes = append(changes, fmt.Sprintf("renamed it to %q", s))
			dueOnly = false
		}
	}
	if at := argTime(args, "newDueDate"); at != nil {
		if t.DueDate == nil || !t.DueDate.Equal(*at) {
			t.DueDate = at
			changes = append(changes, fmt.Sprintf("moved the deadline to %s", at.Format("Jan 2 15:04")))
		}
	}
	if v, ok := args["newPriority"]; ok {
		if s, _ := v.(string); s != "" {
			p := task.ParsePriority(s)
			if p != t.Priority {
				t.Priority = p
				changes = append(changes, fmt.Sprintf("set the priority to %s", p.Capitalized()))
				dueOnly = false
			}
		}
	}
	if v, ok := args["newCategory"]; ok {
		if s, _ := v.(string); s != "" && s != t.Category {
			t.Category = s
			changes = append(changes, fmt.Sprintf("filed it under %q", s))
			dueOnly = false
		}
	}
	if v, ok := args["newType"]; ok {
		if s, _ := v.(string); s != "" {
			ty := task.ParseType(s)
			if ty != t.Type {
				t.Type = ty
				changes = append(changes, fmt.Sprintf("marked it as a %s", ty))
				dueOnly = false
			}
		}
	}
	if at := argTime(args, "newNotificationTime"); at != nil {
		if t.CustomNotificationTime == nil || !t.CustomNotificationTime.Equal(*at) {
			t.CustomNotificationTime = at
			changes = append(changes, fmt.Sprintf("set the notification time to %s", at.Format("Jan 2 15:04")))
			dueOnly = false
		}
	}
	if v, ok := args["newStatus"]; ok {
		if done, isBool := v.(bool); isBool && done != t.IsCompleted {
			t.SetCompleted(done, now)
			if done {
				changes = append(changes, "marked it as done")
			} else {
				changes = append(changes, "reopened it")
			}
			dueOnly = false
		}
	}

	if len(changes) == 0 {
		return fmt.Sprintf("Looks like %q is already set up that way, so no changes needed.", t.Text)
	}

	d.store.Replace(t)

	if dueOnly {
		return fmt.Sprintf("OK, I've updated the due date for %q.", t.Text)
	}
	return fmt.Sprintf("OK. For %q I've %s.\n\n%s", t.Text, joinAnd(changes), detailBlock(t))
}

// detailBlock is the trailing dump of the task's current state, attached
// to every update response except a lone due-date change.
func detailBlock(t task.Task) string {
	status := "Pending"
	if t.IsCompleted {
		status = "Completed"
	}
	deadline := "none"
	if t.DueDate != nil {
		deadline = t.DueDate.Format("Jan 2 2006, 15:04")
	}
	return fmt.Sprintf("Here's where it stands:\n- Task: %s\n- Status: %s\n- Priority: %s\n- Deadline: %s",
		t.Text, status, t.Priority.Capitalized(), deadline)
}

func joinAnd(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

// scheduleReminder appends the instant to the task's reminder list.
// Append-only: identical instants stack up without dedup.
func (d *Dispatcher) scheduleReminder(args map[string]any) string {
	id := argString(args, "taskId")
	at := argTime(args, "reminderTime")
	t, ok := d.store.Get(id)
	if !ok || at == nil {
		return ""
	}
	t.Reminders = append(t.Reminders, *at)
	d.store.Replace(t)
	return t.Text
}

func (d *Dispatcher) deleteTask(args map[string]any) string {
	id := argString(args, "taskId")
	t, ok := d.store.Get(id)
	if !ok {
		return ""
	}
	d.store.Remove(id)
	return t.Text
}

func (d *Dispatcher) analyze(ctx context.Context) string {
	tasks := d.store.ListByOwner(d.owner)
	if len(tasks) < minTasksForAnalysis {
		return msgNeedMoreHistory
	}
	if d.analyzer == nil {
		return msgNeedMoreHistory
	}
	report, err := d.analyzer.Analyze(ctx, tasks)
	if err != nil {
		log.Printf("[dispatch] analysis failed: %v", err)
		return FriendlyError(err)
	}
	return report
}

func (d *Dispatcher) generateSchedule(now time.Time) string {
	entries := notify.GenerateSchedule(d.store.ListByOwner(d.owner), now)
	if len(entries) == 0 {
		return msgNothingToSchedule
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return FriendlyError(err)
	}
	return "Here's your notification schedule:\n" + string(data)
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// timestamp layouts the collaborator is allowed to emit, naive local
// wall-clock first.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339,
}

func argTime(args map[string]any, key string) *time.Time {
	s := argString(args, key)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if at, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &at
		}
	}
	log.Printf("[dispatch] unparseable timestamp %q for %s", s, key)
	return nil
}
