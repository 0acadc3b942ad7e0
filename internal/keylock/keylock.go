// Package keylock provides striped mutexes keyed by string.
//
// A Striped lock serialises work for the same key (a device or catalog item
// ID) without a global lock. Distinct keys usually map to distinct stripes;
// a collision only costs some extra serialisation, never correctness.
package keylock

import (
	"hash/fnv"
	"sync"
)

// DefaultStripes is the stripe count used when New is given n <= 0.
const DefaultStripes = 64

// Striped is a fixed set of mutexes selected by key hash.
// The zero value is not usable; use New.
type Striped struct {
	stripes []sync.Mutex
}

// New creates a Striped lock with n stripes.
func New(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function.
//
//	unlock := locks.Lock(id)
//	defer unlock()
func (s *Striped) Lock(key string) func() {
	m := s.stripe(key)
	m.Lock()
	return m.Unlock
}

func (s *Striped) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%uint32(len(s.stripes))] //nolint:gosec // len is small and positive
}
