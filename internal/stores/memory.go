package stores

import (
	"context"
	"sync"
	"time"
)

const memorySweepThreshold = 1024

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryHandoffStore keeps handoff records in process memory. It is only
// correct when issuance and exchange run in the same process.
type MemoryHandoffStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryHandoffStore() *MemoryHandoffStore {
	return &MemoryHandoffStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for TTL bookkeeping.
func (s *MemoryHandoffStore) WithClock(now func() time.Time) *MemoryHandoffStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryHandoffStore) Save(
	_ context.Context,
	hashedToken string,
	record *HandoffRecord,
	ttl time.Duration,
) error {
	encoded, err := EncodeHandoffRecord(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if len(s.entries) >= memorySweepThreshold {
		s.sweepLocked(now)
	}
	if entry, ok := s.entries[hashedToken]; ok && now.Before(entry.expiresAt) {
		return ErrHandoffCollision
	}
	s.entries[hashedToken] = memoryEntry{
		data:      encoded,
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (s *MemoryHandoffStore) Take(_ context.Context, hashedToken string) (*HandoffRecord, error) {
	s.mu.Lock()
	entry, ok := s.entries[hashedToken]
	if ok {
		delete(s.entries, hashedToken)
	}
	now := s.now()
	s.mu.Unlock()

	if !ok {
		return nil, ErrHandoffNotFound
	}
	if !now.Before(entry.expiresAt) {
		return nil, ErrHandoffExpired
	}
	record, err := DecodeHandoffRecord(entry.data)
	if err != nil {
		return nil, err
	}
	if now.UnixMilli() >= record.ExpiresAt {
		return nil, ErrHandoffExpired
	}
	return record, nil
}

func (s *MemoryHandoffStore) Get(_ context.Context, hashedToken string) (*HandoffRecord, error) {
	s.mu.Lock()
	entry, ok := s.entries[hashedToken]
	now := s.now()
	s.mu.Unlock()

	if !ok || !now.Before(entry.expiresAt) {
		return nil, ErrHandoffNotFound
	}
	return DecodeHandoffRecord(entry.data)
}

func (s *MemoryHandoffStore) Delete(_ context.Context, hashedToken string) error {
	s.mu.Lock()
	delete(s.entries, hashedToken)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live entries.
func (s *MemoryHandoffStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
	return len(s.entries)
}

func (s *MemoryHandoffStore) sweepLocked(now time.Time) {
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
