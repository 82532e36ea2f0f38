// Package balance is the port to the user's spendable balance.
package balance

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrUnknownUser = errors.New("balance: unknown user")
	ErrNegative    = errors.New("balance: negative value")
)

// Store reads and overwrites a user's balance in whole currency units.
// SetBalance is a plain overwrite; callers do read-modify-write.
type Store interface {
	Balance(ctx context.Context, userID string) (int64, error)
	SetBalance(ctx context.Context, userID string, value int64) error
}

var _ Store = (*Memory)(nil)

// Memory keeps balances in a map. Users must be seeded before use.
type Memory struct {
	mu    sync.RWMutex
	users map[string]int64
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]int64)}
}

// Seed sets the starting balance for userID, creating the user.
func (m *Memory) Seed(userID string, value int64) {
	m.mu.Lock()
	m.users[userID] = value
	m.mu.Unlock()
}

func (m *Memory) Balance(_ context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.users[userID]
	if !ok {
		return 0, ErrUnknownUser
	}
	return v, nil
}

func (m *Memory) SetBalance(_ context.Context, userID string, value int64) error {
	if value < 0 {
		return ErrNegative
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return ErrUnknownUser
	}
	m.users[userID] = value
	return nil
}
