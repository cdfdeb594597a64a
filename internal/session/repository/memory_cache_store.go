package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
)

// MemoryCacheStore is an in-process implementation of every cache-store
// repository interface, used in tests and for local development without a
// Redis instance. Expiry is evaluated lazily on access against an injectable
// clock so tests can force evictions deterministically.
//
// Not suitable for multi-process deployments: the atomicity guarantees only
// hold within one process.
type MemoryCacheStore struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]memoryEntry
	index    map[uuid.UUID]map[string]struct{}
	dekParts map[string]memoryEntry
	deny     map[string]memoryEntry
	grants   map[string]memoryEntry
	locks    map[string]memoryEntry
	counters map[string]memoryCounter
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryCacheStore creates an empty MemoryCacheStore using the wall clock.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{
		now:      time.Now,
		sessions: make(map[string]memoryEntry),
		index:    make(map[uuid.UUID]map[string]struct{}),
		dekParts: make(map[string]memoryEntry),
		deny:     make(map[string]memoryEntry),
		grants:   make(map[string]memoryEntry),
		locks:    make(map[string]memoryEntry),
		counters: make(map[string]memoryCounter),
	}
}

// SetClock overrides the store's clock. Test use only.
func (m *MemoryCacheStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Get returns the session entry for a token or ErrSessionNotFound.
func (m *MemoryCacheStore) Get(_ context.Context, token string) (*sessionDomain.SessionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[token]
	if !ok || entry.expired(m.now()) {
		delete(m.sessions, token)
		return nil, sessionDomain.ErrSessionNotFound
	}

	var out sessionDomain.SessionEntry
	if err := unmarshalJSON(entry.value, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Save stores the entry under the token and records it in the subject index.
func (m *MemoryCacheStore) Save(
	_ context.Context,
	token string,
	entry *sessionDomain.SessionEntry,
	ttl time.Duration,
) error {
	raw, err := marshalJSON(entry)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[token] = memoryEntry{value: raw, expiresAt: m.now().Add(ttl)}
	if m.index[entry.SubjectID] == nil {
		m.index[entry.SubjectID] = make(map[string]struct{})
	}
	m.index[entry.SubjectID][token] = struct{}{}

	return nil
}

// Delete removes the entry and its subject-index membership.
func (m *MemoryCacheStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.sessions[token]; ok {
		var parsed sessionDomain.SessionEntry
		if err := unmarshalJSON(entry.value, &parsed); err == nil {
			delete(m.index[parsed.SubjectID], token)
		}
	}
	delete(m.sessions, token)

	return nil
}

// Touch extends the entry's TTL.
func (m *MemoryCacheStore) Touch(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.sessions[token]; ok && !entry.expired(m.now()) {
		entry.expiresAt = m.now().Add(ttl)
		m.sessions[token] = entry
	}

	return nil
}

// TokensForSubject lists all live tokens recorded for a subject.
func (m *MemoryCacheStore) TokensForSubject(_ context.Context, subjectID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens := make([]string, 0, len(m.index[subjectID]))
	for token := range m.index[subjectID] {
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// SaveDekPart stores the encrypted server part for (subjectID, token).
func (m *MemoryCacheStore) SaveDekPart(
	_ context.Context,
	subjectID uuid.UUID,
	token, encryptedPart string,
	ttl time.Duration,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dekParts[subjectID.String()+":"+token] = memoryEntry{
		value:     encryptedPart,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

// GetDekPart returns the encrypted server part, refreshing the TTL on the hit.
func (m *MemoryCacheStore) GetDekPart(
	_ context.Context,
	subjectID uuid.UUID,
	token string,
	ttl time.Duration,
) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := subjectID.String() + ":" + token
	entry, ok := m.dekParts[key]
	if !ok || entry.expired(m.now()) {
		delete(m.dekParts, key)
		return "", sessionDomain.ErrDekCacheExpired
	}

	entry.expiresAt = m.now().Add(ttl)
	m.dekParts[key] = entry

	return entry.value, nil
}

// DeleteDekPart removes a single entry.
func (m *MemoryCacheStore) DeleteDekPart(_ context.Context, subjectID uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.dekParts, subjectID.String()+":"+token)
	return nil
}

// AddDenied marks a token as denied until ttl elapses.
func (m *MemoryCacheStore) AddDenied(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deny[token] = memoryEntry{value: "1", expiresAt: m.now().Add(ttl)}
	return nil
}

// ContainsDenied reports whether the token is denied.
func (m *MemoryCacheStore) ContainsDenied(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.deny[token]
	if !ok || entry.expired(m.now()) {
		delete(m.deny, token)
		return false, nil
	}
	return true, nil
}

// SaveGrant stores a registration grant with the given TTL.
func (m *MemoryCacheStore) SaveGrant(
	_ context.Context,
	token string,
	grant *sessionDomain.RegistrationGrant,
	ttl time.Duration,
) error {
	raw, err := marshalJSON(grant)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.grants[token] = memoryEntry{value: raw, expiresAt: m.now().Add(ttl)}
	return nil
}

// ConsumeGrant atomically retrieves and deletes a grant.
func (m *MemoryCacheStore) ConsumeGrant(
	_ context.Context,
	token string,
) (*sessionDomain.RegistrationGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.grants[token]
	delete(m.grants, token)
	if !ok || entry.expired(m.now()) {
		return nil, sessionDomain.ErrRegistrationTokenInvalid
	}

	var grant sessionDomain.RegistrationGrant
	if err := unmarshalJSON(entry.value, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Acquire attempts to take the lock; returns false when already held.
func (m *MemoryCacheStore) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.locks[key]; ok && !entry.expired(m.now()) {
		return false, nil
	}
	m.locks[key] = memoryEntry{value: "1", expiresAt: m.now().Add(ttl)}
	return true, nil
}

// Release drops the lock.
func (m *MemoryCacheStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, key)
	return nil
}

// Increment adds one and returns the new value.
func (m *MemoryCacheStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.counters[key]
	if !ok || (!counter.expiresAt.IsZero() && m.now().After(counter.expiresAt)) {
		counter = memoryCounter{value: 0, expiresAt: m.now().Add(ttl)}
	}
	counter.value++
	m.counters[key] = counter

	return counter.value, nil
}

// CounterValue returns the current counter value, or zero for a missing counter.
func (m *MemoryCacheStore) CounterValue(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.counters[key]
	if !ok || (!counter.expiresAt.IsZero() && m.now().After(counter.expiresAt)) {
		delete(m.counters, key)
		return 0, nil
	}
	return counter.value, nil
}

// Reset deletes the counter.
func (m *MemoryCacheStore) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.counters, key)
	return nil
}
