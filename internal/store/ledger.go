package store

import (
	"sync"
	"time"
)

// Ledger records every token identity ever admitted. Entries are written once
// and never removed, so an identity present here is never admitted again.
type Ledger struct {
	mu       sync.RWMutex
	admitted map[string]time.Time
}

// NewLedger creates an empty admission ledger.
func NewLedger() *Ledger {
	return &Ledger{
		admitted: make(map[string]time.Time),
	}
}

// Contains reports whether address was admitted.
func (l *Ledger) Contains(address string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.admitted[address]
	return ok
}

// Admit claims address. It returns ErrDuplicateKey if the address was already
// admitted; check and insert happen under one lock so concurrent callers cannot
// both succeed.
func (l *Ledger) Admit(address string, at time.Time) error {
	if address == "" {
		return ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.admitted[address]; exists {
		return ErrDuplicateKey
	}
	l.admitted[address] = at
	return nil
}

// Len returns the number of admitted identities.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.admitted)
}
