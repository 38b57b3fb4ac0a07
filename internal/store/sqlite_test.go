package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stellarlinkco/taskclaw/internal/task"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetAll_RoundTrip(t *testing.T) {
	s := openTest(t)
	now := time.Date(2024, 7, 21, 18, 0, 0, 0, time.Local)
	due := now.Add(time.Hour)

	tk := task.New("alice", "write report", now)
	tk.DueDate = &due
	tk.Priority = task.PriorityHigh
	tk.Type = task.TypeAssignment
	tk.Category = "work"
	tk.Reminders = []time.Time{now.Add(30 * time.Minute)}

	if err := s.Put(tk); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetAll("alice")
	if err != nil {
		t.Fatalf("getAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	g := got[0]
	if g.ID != tk.ID || g.Text != "write report" || g.Priority != task.PriorityHigh || g.Type != task.TypeAssignment {
		t.Errorf("got %+v", g)
	}
	if g.DueDate == nil || !g.DueDate.Equal(due) {
		t.Errorf("dueDate = %v, want %v", g.DueDate, due)
	}
	if len(g.Reminders) != 1 || !g.Reminders[0].Equal(now.Add(30*time.Minute)) {
		t.Errorf("reminders = %v", g.Reminders)
	}
	if g.CompletedAt != nil {
		t.Error("completedAt should be absent")
	}
}

func TestPut_IdempotentUpsert(t *testing.T) {
	s := openTest(t)
	now := time.Now()
	tk := task.New("alice", "v1", now)

	if err := s.Put(tk); err != nil {
		t.Fatal(err)
	}
	tk.Text = "v2"
	tk.SetCompleted(true, now)
	if err := s.Put(tk); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAll("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Text != "v2" || !got[0].IsCompleted || got[0].CompletedAt == nil {
		t.Errorf("got %+v", got[0])
	}
}

func TestGetAll_PreservesInsertionOrderAcrossUpdates(t *testing.T) {
	s := openTest(t)
	now := time.Now()
	a := task.New("alice", "a", now)
	b := task.New("alice", "b", now)
	if err := s.Put(a); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(b); err != nil {
		t.Fatal(err)
	}
	// Re-put the first record; it must keep its position.
	a.Text = "a2"
	if err := s.Put(a); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAll("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Text != "a2" || got[1].Text != "b" {
		t.Errorf("order = %v", []string{got[0].Text, got[1].Text})
	}
}

func TestDelete(t *testing.T) {
	s := openTest(t)
	tk := task.New("alice", "x", time.Now())
	if err := s.Put(tk); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(tk.ID); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetAll("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestMessages_OrderedByEmbeddedTimestamp(t *testing.T) {
	s := openTest(t)
	base := time.Date(2024, 7, 21, 18, 0, 0, 0, time.UTC)

	// Insert out of chronological order.
	times := []time.Time{base.Add(2 * time.Second), base, base.Add(time.Second)}
	for i, at := range times {
		m := Message{ID: NewMessageID(at), Owner: "alice", Role: "user", Content: fmt.Sprintf("m%d", i)}
		if err := s.PutMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Messages("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []string{"m1", "m2", "m0"}
	for i, m := range got {
		if m.Content != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, m.Content, want[i])
		}
	}
}
