package analyze

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stellarlinkco/taskclaw/internal/config"
	"github.com/stellarlinkco/taskclaw/internal/task"
)

func TestSerialize_Features(t *testing.T) {
	created := time.Date(2024, 7, 20, 9, 0, 0, 0, time.UTC)
	completed := created.Add(6 * time.Hour)
	due := created.Add(24 * time.Hour)

	tk := task.Task{
		ID:        "t1",
		Owner:     "me",
		Text:      "write report",
		Priority:  task.PriorityHigh,
		Type:      task.TypeAssignment,
		Category:  "work",
		DueDate:   &due,
		CreatedAt: created,
	}
	tk.SetCompleted(true, completed)

	payload, err := Serialize([]task.Task{tk})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	var f map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &f); err != nil {
		t.Fatalf("payload is not one JSON object per line: %v", err)
	}
	if f["status"] != "completed" || f["priority"] != "high" || f["category"] != "work" {
		t.Errorf("features = %v", f)
	}
	if f["completion_hours"].(float64) != 6 {
		t.Errorf("completion_hours = %v, want 6", f["completion_hours"])
	}
	if _, ok := f["deadline"]; !ok {
		t.Error("deadline missing")
	}
}

func TestRender_SectionsInOrder(t *testing.T) {
	out := Render(&Summary{
		Patterns:    []string{"you finish high-priority work fast"},
		Suggestions: []string{"batch your errands"},
	})
	pi := strings.Index(out, "Patterns:")
	si := strings.Index(out, "Suggestions:")
	if pi < 0 || si < 0 || pi > si {
		t.Fatalf("report sections out of order:\n%s", out)
	}
	if !strings.Contains(out, "- you finish high-priority work fast") {
		t.Errorf("missing pattern line:\n%s", out)
	}
}

func TestRender_EmptySummary(t *testing.T) {
	out := Render(&Summary{})
	if !strings.Contains(out, "Nothing stands out yet") {
		t.Errorf("empty patterns need a placeholder:\n%s", out)
	}
}

func TestLLMSummarizer_ParsesStrictJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": `{"patterns":["p1"],"suggestions":["s1"]}`,
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.BaseURL = srv.URL

	sum, err := NewSummarizer(cfg).Summarize(context.Background(), "payload")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(sum.Patterns) != 1 || sum.Patterns[0] != "p1" {
		t.Errorf("patterns = %v", sum.Patterns)
	}
	if len(sum.Suggestions) != 1 || sum.Suggestions[0] != "s1" {
		t.Errorf("suggestions = %v", sum.Suggestions)
	}
}

func TestLLMSummarizer_SurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.BaseURL = srv.URL

	_, err := NewSummarizer(cfg).Summarize(context.Background(), "payload")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestService_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": `{"patterns":["busy mornings"],"suggestions":["plan evenings"]}`,
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.BaseURL = srv.URL

	svc := NewService(NewSummarizer(cfg))
	report, err := svc.Analyze(context.Background(), []task.Task{task.New("me", "x", time.Now())})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(report, "busy mornings") || !strings.Contains(report, "plan evenings") {
		t.Errorf("report = %q", report)
	}
}
