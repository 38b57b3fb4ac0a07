package gateway

import (
	"context"
	"sync"

	"github.com/cexll/agentsdk-go/pkg/tool"

	"github.com/stellarlinkco/taskclaw/internal/dispatch"
)

// recorder collects the structured tool calls the model emits during a
// single turn. Tool execution does not mutate the store; the dispatcher
// applies the whole batch after the turn finishes.
type recorder struct {
	mu    sync.Mutex
	calls []dispatch.Call
}

func (r *recorder) record(name string, args map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, dispatch.Call{Name: name, Args: args})
}

// take returns the recorded batch and resets for the next turn.
func (r *recorder) take() []dispatch.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := r.calls
	r.calls = nil
	return calls
}

// recorderTool is a declarative tool.Tool whose Execute only records the
// invocation. The acknowledgement keeps the model from retrying.
type recorderTool struct {
	rec         *recorder
	name        string
	description string
	schema      *tool.JSONSchema
}

func (t *recorderTool) Name() string             { return t.name }
func (t *recorderTool) Description() string      { return t.description }
func (t *recorderTool) Schema() *tool.JSONSchema { return t.schema }

func (t *recorderTool) Execute(ctx context.Context, params map[string]any) (*tool.ToolResult, error) {
	t.rec.record(t.name, params)
	return &tool.ToolResult{Success: true, Output: "recorded"}, nil
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// assistantTools builds the six task tools, all recording into rec.
func assistantTools(rec *recorder) []tool.Tool {
	dateTimeDesc := "naive local timestamp, format 2006-01-02T15:04:05"

	return []tool.Tool{
		&recorderTool{
			rec:         rec,
			name:        dispatch.ToolCreateTask,
			description: "Create a new task on the user's list.",
			schema: &tool.JSONSchema{
				Type: "object",
				Properties: map[string]any{
					"text":                   strProp("what the task is about"),
					"dueDate":                strProp(dateTimeDesc),
					"priority":               map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
					"category":               strProp("free-form grouping label"),
					"type":                   map[string]any{"type": "string", "enum": []any{"Appointment", "Meeting", "Assignment", "Other"}},
					"customNotificationTime": strProp(dateTimeDesc),
				},
				Required: []string{"text"},
			},
		},
		&recorderTool{
			rec:         rec,
			name:        dispatch.ToolUpdateTask,
			description: "Update fields of an existing task, identified by id.",
			schema: &tool.JSONSchema{
				Type: "object",
				Properties: map[string]any{
					"taskId":              strProp("id of the task to update"),
					"newText":             strProp("replacement task text"),
					"newDueDate":          strProp(dateTimeDesc),
					"newPriority":         map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
					"newCategory":         strProp("replacement category"),
					"newType":             map[string]any{"type": "string", "enum": []any{"Appointment", "Meeting", "Assignment", "Other"}},
					"newNotificationTime": strProp(dateTimeDesc),
					"newStatus":           map[string]any{"type": "boolean", "description": "true marks the task completed"},
				},
				Required: []string{"taskId"},
			},
		},
		&recorderTool{
			rec:         rec,
			name:        dispatch.ToolScheduleReminder,
			description: "Add an explicit reminder instant to a task.",
			schema: &tool.JSONSchema{
				Type: "object",
				Properties: map[string]any{
					"taskId":       strProp("id of the task to remind about"),
					"reminderTime": strProp(dateTimeDesc),
				},
				Required: []string{"taskId", "reminderTime"},
			},
		},
		&recorderTool{
			rec:         rec,
			name:        dispatch.ToolDeleteTask,
			description: "Delete a task from the user's list.",
			schema: &tool.JSONSchema{
				Type: "object",
				Properties: map[string]any{
					"taskId": strProp("id of the task to delete"),
				},
				Required: []string{"taskId"},
			},
		},
		&recorderTool{
			rec:         rec,
			name:        dispatch.ToolAnalyze,
			description: "Analyze the user's task history for productivity patterns.",
			schema: &tool.JSONSchema{
				Type:       "object",
				Properties: map[string]any{},
			},
		},
		&recorderTool{
			rec:         rec,
			name:        dispatch.ToolSchedule,
			description: "Produce the upcoming notification schedule for pending tasks.",
			schema: &tool.JSONSchema{
				Type:       "object",
				Properties: map[string]any{},
			},
		},
	}
}
