package task

import (
	"log"
	"sync"
)

// Gateway mirrors store mutations to durable storage. Writes are
// eventual-consistency: a failed mirror never rolls back memory.
type Gateway interface {
	Put(t Task) error
	Delete(id string) error
	GetAll(owner string) ([]Task, error)
}

// Store holds one owner partition's tasks in memory, in insertion order.
// In-memory state is authoritative and synchronously visible; the
// gateway mirror runs fire-and-forget.
type Store struct {
	mu      sync.Mutex
	order   []string
	byID    map[string]*Task
	gateway Gateway
	wg      sync.WaitGroup
}

func NewStore(gw Gateway) *Store {
	return &Store{
		byID:    make(map[string]*Task),
		gateway: gw,
	}
}

// Load seeds the store from the gateway, preserving the gateway's order.
func (s *Store) Load(owner string) error {
	if s.gateway == nil {
		return nil
	}
	tasks, err := s.gateway.GetAll(owner)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		if _, ok := s.byID[t.ID]; !ok {
			s.order = append(s.order, t.ID)
		}
		c := t.Clone()
		s.byID[t.ID] = &c
	}
	return nil
}

func (s *Store) Insert(t Task) {
	s.mu.Lock()
	if _, ok := s.byID[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	c := t.Clone()
	s.byID[t.ID] = &c
	s.mu.Unlock()

	s.mirrorPut(t)
}

// Replace is a full-record upsert keyed by ID; last write wins.
func (s *Store) Replace(t Task) {
	s.Insert(t)
}

func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if ok {
		s.mirrorDelete(id)
	}
	return ok
}

func (s *Store) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// ListByOwner returns the owner's tasks in insertion order.
func (s *Store) ListByOwner(owner string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		t := s.byID[id]
		if t.Owner == owner {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Store) mirrorPut(t Task) {
	if s.gateway == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.gateway.Put(t); err != nil {
			log.Printf("[store] persist warning: put %s: %v", t.ID, err)
		}
	}()
}

func (s *Store) mirrorDelete(id string) {
	if s.gateway == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.gateway.Delete(id); err != nil {
			log.Printf("[store] persist warning: delete %s: %v", id, err)
		}
	}()
}

// Flush waits for outstanding mirror writes. Used on shutdown and in tests.
func (s *Store) Flush() {
	s.wg.Wait()
}
