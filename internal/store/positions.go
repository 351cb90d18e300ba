package store

import (
	"sync"
)

// PositionStore maps token identity to its Position. Positions are never
// deleted; terminal positions stay for the process lifetime.
type PositionStore struct {
	mu    sync.RWMutex
	data  map[string]*Position
	order []string // admission order
}

// NewPositionStore creates an empty position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*Position),
	}
}

// Insert adds a new position. Returns ErrDuplicateKey if the address exists.
func (s *PositionStore) Insert(p *Position) error {
	if p == nil || p.Address == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.Address]; exists {
		return ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	positionCopy := *p
	s.data[p.Address] = &positionCopy
	s.order = append(s.order, p.Address)
	return nil
}

// Get retrieves a copy of the position for address. Returns ErrNotFound if absent.
func (s *PositionStore) Get(address string) (*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[address]
	if !exists {
		return nil, ErrNotFound
	}
	positionCopy := *p
	return &positionCopy, nil
}

// Active returns copies of all ACTIVE positions in admission order.
func (s *PositionStore) Active() []*Position {
	return s.collect(func(p *Position) bool { return p.Status == StatusActive })
}

// All returns copies of every position in admission order.
func (s *PositionStore) All() []*Position {
	return s.collect(func(*Position) bool { return true })
}

func (s *PositionStore) collect(keep func(*Position) bool) []*Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Position, 0, len(s.order))
	for _, addr := range s.order {
		p := s.data[addr]
		if keep(p) {
			positionCopy := *p
			result = append(result, &positionCopy)
		}
	}
	return result
}

// Update applies fn to the position for address and returns the updated copy.
// Closed positions are not modified (ErrPositionClosed). Changes to immutable
// fields are discarded and a decrease of HighestGain is rejected with
// ErrInvalidInput, leaving the stored position untouched.
func (s *PositionStore) Update(address string, fn func(p *Position)) (*Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.data[address]
	if !exists {
		return nil, ErrNotFound
	}
	if current.Status.Terminal() {
		return nil, ErrPositionClosed
	}

	next := *current
	fn(&next)

	if next.HighestGain < current.HighestGain {
		return nil, ErrInvalidInput
	}
	next.Address = current.Address
	next.Name = current.Name
	next.Symbol = current.Symbol
	next.InitialPrice = current.InitialPrice
	next.AdmittedAt = current.AdmittedAt

	*current = next
	result := next
	return &result, nil
}

// Counts returns the number of positions per status.
func (s *PositionStore) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Status]int, 3)
	for _, p := range s.data {
		counts[p.Status]++
	}
	return counts
}

// Len returns the number of positions.
func (s *PositionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
