// Package digest sends a once-a-day agenda over the bus: overdue tasks
// plus everything due in the next 24 hours.
package digest

import (
	"fmt"
	"log"
	"strings"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/stellarlinkco/taskclaw/internal/bus"
	"github.com/stellarlinkco/taskclaw/internal/config"
	"github.com/stellarlinkco/taskclaw/internal/task"
)

type Service struct {
	cfg   config.DigestConfig
	store *task.Store
	owner string
	bus   *bus.MessageBus
	cron  *rcron.Cron
	now   func() time.Time
}

func New(cfg config.DigestConfig, store *task.Store, owner string, b *bus.MessageBus) *Service {
	return &Service{
		cfg:   cfg,
		store: store,
		owner: owner,
		bus:   b,
		now:   time.Now,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	s.cron = rcron.New(rcron.WithSeconds())
	if _, err := s.cron.AddFunc(s.cfg.Spec, s.run); err != nil {
		return fmt.Errorf("register digest job (%s): %w", s.cfg.Spec, err)
	}
	s.cron.Start()
	log.Printf("[digest] scheduled with spec %q", s.cfg.Spec)
	return nil
}

func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[digest] stop timeout waiting for running job")
	}
}

func (s *Service) run() {
	text := Render(s.store.ListByOwner(s.owner), s.now())
	if text == "" {
		log.Printf("[digest] nothing to report, skipping")
		return
	}
	s.bus.Outbound <- bus.OutboundMessage{
		Channel: s.cfg.Channel,
		ChatID:  s.cfg.To,
		Content: text,
	}
}

// Render builds the agenda text. Empty when there is nothing overdue and
// nothing due within the next day.
func Render(tasks []task.Task, now time.Time) string {
	var overdue, today []task.Task
	horizon := now.Add(24 * time.Hour)
	for _, t := range tasks {
		if !t.Pending() {
			continue
		}
		switch {
		case t.DueDate.Before(now):
			overdue = append(overdue, t)
		case !t.DueDate.After(horizon):
			today = append(today, t)
		}
	}
	if len(overdue) == 0 && len(today) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Your daily agenda:\n")
	if len(overdue) > 0 {
		sb.WriteString("\nOverdue:\n")
		for _, t := range overdue {
			sb.WriteString(line(t))
		}
	}
	if len(today) > 0 {
		sb.WriteString("\nDue in the next 24 hours:\n")
		for _, t := range today {
			sb.WriteString(line(t))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func line(t task.Task) string {
	return fmt.Sprintf("- %s (%s, due %s)\n", t.Text, t.Priority.Capitalized(), t.DueDate.Format("Jan 2 15:04"))
}
