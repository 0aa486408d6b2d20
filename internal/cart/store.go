package cart

import "sync"

// Store keeps the current cart snapshot for the kiosk. Persistence is up to
// the implementation.
type Store interface {
	Snapshot() Cart
	Replace(Cart)
	Clear()
}

type memoryStore struct {
	mu   sync.RWMutex
	cart Cart
}

// NewMemoryStore returns an in-process Store seeded with c.
func NewMemoryStore(c Cart) Store {
	return &memoryStore{cart: c}
}

func (s *memoryStore) Snapshot() Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart
}

func (s *memoryStore) Replace(c Cart) {
	s.mu.Lock()
	s.cart = c
	s.mu.Unlock()
}

func (s *memoryStore) Clear() {
	s.Replace(Cart{})
}
