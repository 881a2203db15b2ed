package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// EvictionObserver is told when the slot drops an entry to make room.
type EvictionObserver interface {
	RecordCacheEviction()
}

// Slot caches the bytes of exactly one file. Storing a new key replaces
// whatever was there.
//
// Thread safety:
// The underlying LRU is internally locked, so a Slot is safe for concurrent
// use. Get followed by Add is not atomic; two workers missing on the same key
// may both read the source, and the last Add wins.
type Slot struct {
	entries *lru.Cache[string, []byte]
}

// NewSlot creates an empty slot. observer may be nil.
func NewSlot(observer EvictionObserver) *Slot {
	var onEvict func(string, []byte)
	if observer != nil {
		onEvict = func(string, []byte) { observer.RecordCacheEviction() }
	}

	// Size 1 is always valid, so the error path cannot trigger.
	entries, err := lru.NewWithEvict[string, []byte](1, onEvict)
	if err != nil {
		panic(err)
	}
	return &Slot{entries: entries}
}

// Get returns the cached bytes for key, if key is the one held.
func (s *Slot) Get(key string) ([]byte, bool) {
	return s.entries.Get(key)
}

// Add stores data under key, evicting any previous entry.
func (s *Slot) Add(key string, data []byte) {
	s.entries.Add(key, data)
}

// Key returns the key currently held, or "" when empty.
func (s *Slot) Key() string {
	keys := s.entries.Keys()
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// Len is 0 or 1.
func (s *Slot) Len() int {
	return s.entries.Len()
}

// Purge empties the slot.
func (s *Slot) Purge() {
	s.entries.Purge()
}
