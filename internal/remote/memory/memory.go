package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"expensetracker/internal/remote"

	"github.com/google/uuid"
)

// Store is an in-process remote collection. It backs the mock API server
// and stands in for the network in tests.
type Store struct {
	mu    sync.Mutex
	items map[string]remote.Expense
	order []string
	newID func() string
}

var _ remote.Remote = (*Store)(nil)

type Option func(*Store)

// WithIDFunc replaces the uuid generator used for new records.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithSequentialIDs assigns "1", "2", ... like the hosted mock API does.
func WithSequentialIDs() Option {
	return func(s *Store) {
		n := 0
		s.newID = func() string {
			n++
			return fmt.Sprint(n)
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{items: make(map[string]remote.Expense), newID: uuid.NewString}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewFromFile seeds the store from base/seed_expenses.json when present.
// Seeded records without an id get one assigned.
func NewFromFile(base string, opts ...Option) (*Store, error) {
	s := New(opts...)
	b, err := os.ReadFile(filepath.Join(base, "seed_expenses.json"))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed []remote.Expense
	if err := json.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for _, e := range seed {
		if _, err := s.Create(context.Background(), e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// List returns records in creation order.
func (s *Store) List(_ context.Context) ([]remote.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.Expense, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out, nil
}

// Get returns one record by id.
func (s *Store) Get(_ context.Context, id string) (remote.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return remote.Expense{}, remote.ErrNotFound
	}
	return e, nil
}

// Create stores e under a new id unless e already carries one that is free.
func (s *Store) Create(_ context.Context, e remote.Expense) (remote.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.items[e.ID]; e.ID == "" || taken {
		e.ID = s.freeID()
	}
	s.items[e.ID] = e
	s.order = append(s.order, e.ID)
	return e, nil
}

// freeID draws ids until one is unused. Callers hold s.mu.
func (s *Store) freeID() string {
	for {
		id := s.newID()
		if _, taken := s.items[id]; !taken {
			return id
		}
	}
}

func (s *Store) Update(_ context.Context, id string, e remote.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return remote.ErrNotFound
	}
	e.ID = id
	s.items[id] = e
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return remote.ErrNotFound
	}
	delete(s.items, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
