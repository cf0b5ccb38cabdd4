package shared

import (
	"sync"

	"github.com/google/uuid"
)

// BalanceKey identifies one (location, variant) balance.
type BalanceKey struct {
	LocationID uuid.UUID
	VariantID  uuid.UUID
}

// KeyedMutex serialises balance-mutating operations per (location, variant)
// within this process. Cross-process serialisation relies on the row lock the
// repository takes on the balance row.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[BalanceKey]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex constructs a KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[BalanceKey]*entry)}
}

// Lock acquires the mutex for key, blocking until available.
func (m *KeyedMutex) Lock(key BalanceKey) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()
	e.mu.Lock()
}

// Unlock releases the mutex for key.
func (m *KeyedMutex) Unlock(key BalanceKey) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(m.locks, key)
		}
	}
	m.mu.Unlock()
	if ok {
		e.mu.Unlock()
	}
}

// LockAll acquires every key in a stable order to avoid deadlock between
// multi-key operations such as transfers.
func (m *KeyedMutex) LockAll(keys []BalanceKey) {
	ordered := orderKeys(keys)
	for _, k := range ordered {
		m.Lock(k)
	}
}

// UnlockAll releases every key acquired through LockAll.
func (m *KeyedMutex) UnlockAll(keys []BalanceKey) {
	ordered := orderKeys(keys)
	for i := len(ordered) - 1; i >= 0; i-- {
		m.Unlock(ordered[i])
	}
}

func orderKeys(keys []BalanceKey) []BalanceKey {
	out := make([]BalanceKey, 0, len(keys))
	seen := make(map[BalanceKey]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func less(a, b BalanceKey) bool {
	if a.LocationID.String() != b.LocationID.String() {
		return a.LocationID.String() < b.LocationID.String()
	}
	return a.VariantID.String() < b.VariantID.String()
}
