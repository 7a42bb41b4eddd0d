package session

import (
	"context"
	"sync"
	"time"

	"medidenoise/internal/models"
)

type memoryEntry struct {
	img     *models.CanonicalImage
	expires time.Time
}

// MemoryStore is an in-process Store. Expired entries are invisible to Get
// and removed by Sweep.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithMaxEntries caps the number of stored sessions. When the store is full,
// Put evicts the entry closest to expiry. Zero means unbounded.
func WithMaxEntries(n int) MemoryOption {
	return func(s *MemoryStore) {
		s.maxEntries = n
	}
}

// NewMemoryStore creates an empty store whose entries live for ttl
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a copy of img under id, replacing any previous image and
// restarting its lifetime
func (s *MemoryStore) Put(ctx context.Context, id string, img *models.CanonicalImage) error {
	entry := memoryEntry{img: img.Clone(), expires: s.now().Add(s.ttl)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok && s.maxEntries > 0 {
		for len(s.entries) >= s.maxEntries {
			s.evictOldest()
		}
	}
	s.entries[id] = entry
	return nil
}

// evictOldest drops the entry that expires first. Every entry shares the
// same ttl, so that is also the least recently written one.
func (s *MemoryStore) evictOldest() {
	var (
		oldest  string
		expires time.Time
		found   bool
	)
	for id, entry := range s.entries {
		if !found || entry.expires.Before(expires) {
			oldest, expires, found = id, entry.expires, true
		}
	}
	delete(s.entries, oldest)
}

// Get returns a copy of the image stored under id, or ErrNotFound when it is
// missing or expired
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.CanonicalImage, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || !s.now().Before(entry.expires) {
		return nil, ErrNotFound
	}
	return entry.img.Clone(), nil
}

// Sweep removes expired entries
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if !now.Before(entry.expires) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close drops every entry
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}
