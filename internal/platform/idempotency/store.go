// Package idempotency shields the order and payment endpoints from duplicate
// submissions: a client retrying a mutation with the same Idempotency-Key
// receives the stored response instead of placing a second order or being
// charged twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// RecordState tracks whether a claimed key is still being processed or
// already carries a response to replay.
type RecordState string

const (
	// DefaultTTL is how long replay records are retained.
	DefaultTTL = 24 * time.Hour
	// RecordInFlight marks a key claimed by a request that has not finished.
	RecordInFlight RecordState = "in_flight"
	// RecordStored marks a key whose response is saved and replayable.
	RecordStored RecordState = "stored"
)

// ClaimOutcome is the result of attempting to claim a key.
type ClaimOutcome int

const (
	// ClaimAccepted means the key was free; the caller runs the mutation.
	ClaimAccepted ClaimOutcome = iota
	// ClaimReplay means a stored response exists and must be replayed.
	ClaimReplay
	// ClaimInFlight means another request currently holds the key.
	ClaimInFlight
)

// ClaimResult pairs the outcome with the stored record when one exists.
type ClaimResult struct {
	Outcome ClaimOutcome
	Record  ReplayRecord
}

// ReplayRecord is the persisted response for a claimed key.
type ReplayRecord struct {
	Key             string
	Fingerprint     string
	State           RecordState
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is the handler output captured for future replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists key claims and their replayable responses.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (ClaimResult, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
}

// ErrFingerprintMismatch is returned when a key is reused with a different
// request fingerprint, which would silently replay the wrong mutation.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with a different request fingerprint")

// keyDigest derives the storage document id from the scoped key.
func keyDigest(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storableHeaders copies the response headers worth replaying, dropping
// hop-by-hop and derived ones.
func storableHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}

	kept := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if skipHeaderOnReplay(canonical) {
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		kept[canonical] = copied
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func skipHeaderOnReplay(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "date", "connection", "keep-alive", "proxy-authenticate", "proxy-authorization", "te", "trailers", "transfer-encoding", "upgrade":
		return true
	default:
		return false
	}
}

func restoreHeaders(values map[string][]string) http.Header {
	if len(values) == 0 {
		return http.Header{}
	}

	header := make(http.Header, len(values))
	for name, vals := range values {
		copied := make([]string, len(vals))
		copy(copied, vals)
		header[name] = copied
	}
	return header
}
