package idempotency

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	claim, err := store.Claim(ctx, "order-key", "fp-1", now, time.Hour)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.Outcome != ClaimAccepted {
		t.Fatalf("expected accepted claim, got %v", claim.Outcome)
	}

	claim, err = store.Claim(ctx, "order-key", "fp-1", now.Add(time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claim.Outcome != ClaimInFlight {
		t.Fatalf("expected in-flight claim, got %v", claim.Outcome)
	}

	resp := Response{
		Status:  http.StatusCreated,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body:    []byte(`{"id":"ord_1"}`),
	}
	if err := store.Complete(ctx, "order-key", "fp-1", resp, now.Add(time.Minute), time.Hour); err != nil {
		t.Fatalf("complete: %v", err)
	}

	claim, err = store.Claim(ctx, "order-key", "fp-1", now.Add(2*time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("claim after complete: %v", err)
	}
	if claim.Outcome != ClaimReplay {
		t.Fatalf("expected replay, got %v", claim.Outcome)
	}
	if claim.Record.ResponseStatus != http.StatusCreated {
		t.Fatalf("expected stored status 201, got %d", claim.Record.ResponseStatus)
	}
	if string(claim.Record.ResponseBody) != `{"id":"ord_1"}` {
		t.Fatalf("unexpected stored body %s", claim.Record.ResponseBody)
	}
}

func TestMemoryStoreClaimOverExpiredRecord(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	if _, err := store.Claim(ctx, "order-key", "fp-1", now, time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// A different fingerprint may take over once the record expires.
	claim, err := store.Claim(ctx, "order-key", "fp-2", now.Add(2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("claim over expired: %v", err)
	}
	if claim.Outcome != ClaimAccepted {
		t.Fatalf("expected accepted claim over expired record, got %v", claim.Outcome)
	}
}

func TestMemoryStoreRejectsFingerprintReuse(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	if _, err := store.Claim(ctx, "order-key", "fp-1", now, time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.Claim(ctx, "order-key", "fp-2", now.Add(time.Minute), time.Hour); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected fingerprint mismatch, got %v", err)
	}
}

func TestMemoryStoreReleaseAllowsRetry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	if _, err := store.Claim(ctx, "order-key", "fp-1", now, time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Release(ctx, "order-key", "fp-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	claim, err := store.Claim(ctx, "order-key", "fp-1", now.Add(time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	if claim.Outcome != ClaimAccepted {
		t.Fatalf("expected accepted claim after release, got %v", claim.Outcome)
	}
}
