package wager

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.RWMutex
	wagers map[string]Wager
}

// NewMemoryStore builds an in-memory wager store for tests and dev mode.
func NewMemoryStore() Store {
	return &memoryStore{wagers: make(map[string]Wager)}
}

func (s *memoryStore) Create(_ context.Context, w Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wagers[w.ID]; exists {
		return errors.New("wager exists")
	}
	s.wagers[w.ID] = w
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wagers[id]
	if !ok {
		return Wager{}, ErrNotFound
	}
	return w, nil
}

func (s *memoryStore) ListByUser(_ context.Context, username string, state *State) ([]Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Wager
	for _, w := range s.wagers {
		if w.Creator != username && w.CounterParty != username {
			continue
		}
		if state != nil && w.State != *state {
			continue
		}
		out = append(out, w)
	}
	sortByCreation(out)
	return out, nil
}

func (s *memoryStore) ListOpenExcluding(_ context.Context, username string) ([]Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Wager
	for _, w := range s.wagers {
		if w.State != StateOpen || w.Creator == username || w.Visibility != VisibilityPublic {
			continue
		}
		out = append(out, w)
	}
	sortByCreation(out)
	return out, nil
}

func (s *memoryStore) ListInState(_ context.Context, state State) ([]Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Wager
	for _, w := range s.wagers {
		if w.State == state {
			out = append(out, w)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *memoryStore) Accept(_ context.Context, id, acceptor, holdID string) (Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wagers[id]
	if !ok {
		return Wager{}, ErrNotFound
	}
	switch w.State {
	case StateOpen, StatePending:
	case StateAccepted:
		return Wager{}, ErrAlreadyMatched
	default:
		return Wager{}, ErrInvalidTransition
	}

	now := time.Now().UTC()
	w.State = StateAccepted
	w.CounterParty = acceptor
	w.AcceptorHoldID = holdID
	w.AcceptedAt = &now
	s.wagers[id] = w
	return w, nil
}

func (s *memoryStore) Terminate(_ context.Context, id string, to State, outcome Outcome, from ...State) (Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wagers[id]
	if !ok {
		return Wager{}, ErrNotFound
	}
	if !stateIn(w.State, from) {
		if w.State == StateAccepted && !stateIn(StateAccepted, from) {
			return Wager{}, ErrAlreadyMatched
		}
		return Wager{}, ErrInvalidTransition
	}

	w.State = to
	o := outcome
	w.Outcome = &o
	s.wagers[id] = w
	return w, nil
}

func stateIn(s State, set []State) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func sortByCreation(ws []Wager) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].ID < ws[j].ID
		}
		return ws[i].CreatedAt.Before(ws[j].CreatedAt)
	})
}
