package session

import (
	"context"
	"sync"
	"time"

	"loan-decision/internal/models"

	"github.com/google/uuid"
)

type memoryEntry struct {
	state   *models.FormState
	expires time.Time
}

type memoryLock struct {
	token   string
	expires time.Time
}

// MemoryStore is a process-local Store. Entries expire lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	lockTTL time.Duration
	entries map[string]memoryEntry
	locks   map[string]memoryLock
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl, lockTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		lockTTL: lockTTL,
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]memoryLock),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.FormState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || s.expired(entry.expires) {
		delete(s.entries, id)
		return models.NewFormState(), nil
	}
	return entry.state.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, id string, state *models.FormState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = memoryEntry{state: state.Clone(), expires: s.deadline(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) TryLock(_ context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, held := s.locks[id]; held && !s.expired(l.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	s.locks[id] = memoryLock{token: token, expires: s.deadline(s.lockTTL)}
	return token, true, nil
}

// Refresh extends the lock while token still owns it, even if it has
// lapsed and nobody else has taken it since.
func (s *MemoryStore) Refresh(_ context.Context, id, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, held := s.locks[id]
	if !held || l.token != token {
		return false, nil
	}
	l.expires = s.deadline(s.lockTTL)
	s.locks[id] = l
	return true, nil
}

func (s *MemoryStore) Locked(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, held := s.locks[id]
	return held && !s.expired(l.expires), nil
}

func (s *MemoryStore) LockTTL() time.Duration { return s.lockTTL }

func (s *MemoryStore) Unlock(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, held := s.locks[id]; held && l.token == token {
		delete(s.locks, id)
	}
	return nil
}

// Len reports how many live sessions are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if !s.expired(e.expires) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) expired(deadline time.Time) bool {
	return !deadline.IsZero() && s.now().After(deadline)
}
