package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps replay records in process memory, for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]ReplayRecord
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]ReplayRecord)}
}

// Claim reserves the key for the caller, or reports the existing record.
// Expired records are claimed over as if they were absent.
func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (ClaimResult, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := keyDigest(key)

	record, ok := s.records[id]
	if !ok || (!record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt)) {
		record = ReplayRecord{
			Key:         key,
			Fingerprint: fingerprint,
			State:       RecordInFlight,
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		s.records[id] = record
		return ClaimResult{Outcome: ClaimAccepted, Record: record}, nil
	}

	if record.Fingerprint != fingerprint {
		return ClaimResult{}, ErrFingerprintMismatch
	}
	if record.State == RecordStored {
		return ClaimResult{Outcome: ClaimReplay, Record: record}, nil
	}
	return ClaimResult{Outcome: ClaimInFlight, Record: record}, nil
}

// Complete stores the handler response against the key for later replays.
func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := keyDigest(key)

	record, ok := s.records[id]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = ReplayRecord{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.State = RecordStored
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = storableHeaders(resp.Headers)
	record.ResponseBody = nil
	if len(resp.Body) > 0 {
		record.ResponseBody = append([]byte(nil), resp.Body...)
	}
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttl)
	s.records[id] = record

	return nil
}

// Release drops the claim so a later attempt may retry the mutation.
func (s *MemoryStore) Release(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, keyDigest(key))
	return nil
}
