package digest

import (
	"strings"
	"testing"
	"time"

	"github.com/stellarlinkco/taskclaw/internal/bus"
	"github.com/stellarlinkco/taskclaw/internal/config"
	"github.com/stellarlinkco/taskclaw/internal/task"
)

func withDue(text string, due time.Time) task.Task {
	t := task.New("me", text, due.Add(-48*time.Hour))
	t.DueDate = &due
	return t
}

func TestRender_SplitsOverdueAndUpcoming(t *testing.T) {
	now := time.Date(2024, 7, 21, 8, 0, 0, 0, time.Local)

	late := withDue("pay rent", now.Add(-2*time.Hour))
	soon := withDue("standup notes", now.Add(3*time.Hour))
	far := withDue("vacation prep", now.Add(72*time.Hour))
	done := withDue("old thing", now.Add(-time.Hour))
	done.SetCompleted(true, now)

	out := Render([]task.Task{late, soon, far, done}, now)
	if !strings.Contains(out, "Overdue:\n- pay rent") {
		t.Errorf("missing overdue section:\n%s", out)
	}
	if !strings.Contains(out, "Due in the next 24 hours:\n- standup notes") {
		t.Errorf("missing upcoming section:\n%s", out)
	}
	if strings.Contains(out, "vacation prep") {
		t.Error("tasks beyond the horizon must not appear")
	}
	if strings.Contains(out, "old thing") {
		t.Error("completed tasks must not appear")
	}
}

func TestRender_EmptyWhenQuiet(t *testing.T) {
	now := time.Now()
	far := withDue("later", now.Add(90*time.Hour))
	if out := Render([]task.Task{far}, now); out != "" {
		t.Errorf("out = %q, want empty", out)
	}
}

func TestRun_SendsOverBus(t *testing.T) {
	now := time.Date(2024, 7, 21, 8, 0, 0, 0, time.Local)
	store := task.NewStore(nil)
	store.Insert(withDue("pay rent", now.Add(-time.Hour)))

	b := bus.NewMessageBus(4)
	s := New(config.DigestConfig{Enabled: true, Channel: "telegram", To: "42"}, store, "me", b)
	s.now = func() time.Time { return now }

	s.run()

	select {
	case msg := <-b.Outbound:
		if msg.Channel != "telegram" || msg.ChatID != "42" {
			t.Errorf("msg = %+v", msg)
		}
		if !strings.Contains(msg.Content, "pay rent") {
			t.Errorf("content = %q", msg.Content)
		}
	default:
		t.Fatal("expected an outbound digest")
	}
}

func TestStart_BadSpec(t *testing.T) {
	b := bus.NewMessageBus(1)
	s := New(config.DigestConfig{Enabled: true, Spec: "not a cron spec"}, task.NewStore(nil), "me", b)
	if err := s.Start(); err == nil {
		t.Error("expected error for invalid spec")
	}
}

func TestStart_DisabledIsNoop(t *testing.T) {
	b := bus.NewMessageBus(1)
	s := New(config.DigestConfig{Enabled: false}, task.NewStore(nil), "me", b)
	if err := s.Start(); err != nil {
		t.Errorf("disabled start should be nil, got %v", err)
	}
	s.Stop()
}
