// Package scheduler polls the task store and surfaces at most one
// reminder notification at a time.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stellarlinkco/taskclaw/internal/bus"
	"github.com/stellarlinkco/taskclaw/internal/notify"
	"github.com/stellarlinkco/taskclaw/internal/task"
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultSnoozeDuration = 5 * time.Minute
)

// Active is the single surfaced notification.
type Active struct {
	TaskID   string
	TaskText string
	Instant  time.Time
	Message  string
}

// Scheduler owns the snoozed set, the triggered set and the active
// notification slot. All state is instance-scoped so independent
// schedulers (e.g. under test) never interfere.
type Scheduler struct {
	store  *task.Store
	owner  string
	bus    *bus.MessageBus
	window time.Duration
	snooze time.Duration

	mu        sync.Mutex
	snoozed   map[string]struct{}
	triggered map[string]struct{}
	active    *Active
}

type Option func(*Scheduler)

func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithSnoozeDuration(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.snooze = d
		}
	}
}

func New(store *task.Store, owner string, b *bus.MessageBus, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		owner:     owner,
		bus:       b,
		window:    DefaultPollInterval,
		snooze:    DefaultSnoozeDuration,
		snoozed:   make(map[string]struct{}),
		triggered: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// triggeredKey is the composite taskID+instant key. Duplicate reminder
// entries at the same instant collapse to one firing per instant value.
func triggeredKey(taskID string, at time.Time) string {
	return fmt.Sprintf("%s|%d", taskID, at.UnixNano())
}

// Run drives Tick on a fixed interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.window)
	defer ticker.Stop()

	log.Printf("[scheduler] polling every %s", s.window)
	for {
		select {
		case <-ticker.C:
			s.Tick(time.Now())
		case <-ctx.Done():
			log.Printf("[scheduler] stopped")
			return
		}
	}
}

// Tick scans for a reminder due in the window (now-window, now]. If a
// notification is already active it does nothing. The first match in
// store order wins; later matches in the same tick wait for the next one.
func (s *Scheduler) Tick(now time.Time) {
	tasks := s.store.ListByOwner(s.owner)

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return
	}

	var fired *Active
	for _, t := range tasks {
		if t.IsCompleted || len(t.Reminders) == 0 {
			continue
		}
		if _, ok := s.snoozed[t.ID]; ok {
			continue
		}
		for _, at := range t.Reminders {
			if !due(at, now, s.window) {
				continue
			}
			key := triggeredKey(t.ID, at)
			if _, seen := s.triggered[key]; seen {
				continue
			}
			// Mark before surfacing so overlapping ticks can never
			// fire the same reminder twice.
			s.triggered[key] = struct{}{}
			fired = &Active{
				TaskID:   t.ID,
				TaskText: t.Text,
				Instant:  at,
				Message:  notify.Message(t, at),
			}
			break
		}
		if fired != nil {
			break
		}
	}

	if fired == nil {
		s.mu.Unlock()
		return
	}
	s.active = fired
	s.mu.Unlock()

	log.Printf("[scheduler] reminder fired for task %s at %s", fired.TaskID, fired.Instant.Format(notify.NaiveLayout))
	if s.bus != nil {
		s.bus.PublishNotification(bus.Notification{
			TaskID:   fired.TaskID,
			TaskText: fired.TaskText,
			Instant:  fired.Instant,
			Message:  fired.Message,
			FiredAt:  now,
		})
	}
}

// due reports whether instant falls inside (now-window, now].
func due(instant, now time.Time, window time.Duration) bool {
	return instant.After(now.Add(-window)) && !instant.After(now)
}

// Active returns a copy of the surfaced notification, or nil.
func (s *Scheduler) Active() *Active {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	a := *s.active
	return &a
}

// MarkDone completes the task and clears the active notification.
func (s *Scheduler) MarkDone(taskID string) bool {
	t, ok := s.store.Get(taskID)
	if !ok {
		return false
	}
	t.SetCompleted(true, time.Now())
	s.store.Replace(t)

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
	return true
}

// Snooze suppresses all of the task's reminders for the snooze duration
// and clears the active notification. Expiry is a one-shot timer with no
// cancel path; reminders that elapse during the window stay unfired
// unless they were already marked triggered before the snooze began.
func (s *Scheduler) Snooze(taskID string) {
	s.mu.Lock()
	s.snoozed[taskID] = struct{}{}
	s.active = nil
	s.mu.Unlock()

	time.AfterFunc(s.snooze, func() {
		s.mu.Lock()
		delete(s.snoozed, taskID)
		s.mu.Unlock()
		log.Printf("[scheduler] snooze expired for task %s", taskID)
	})
}

// Dismiss clears the active notification without completing or snoozing.
// The triggered mark stays, so the reminder will not re-fire.
func (s *Scheduler) Dismiss() {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}

// Snoozed reports whether the task is currently suppressed.
func (s *Scheduler) Snoozed(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snoozed[taskID]
	return ok
}
