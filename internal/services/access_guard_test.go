package services

import (
	"errors"
	"testing"

	domain "github.com/food-hunger/api/internal/domain"
)

func TestAccessGuardRequireOwner(t *testing.T) {
	guard := NewAccessGuard()
	order := domain.Order{ID: "ord_1", UserID: "uid-1"}

	if err := guard.RequireOwner(Actor{UID: "uid-1"}, order); err != nil {
		t.Fatalf("expected owner to pass, got %v", err)
	}
	if err := guard.RequireOwner(Actor{UID: "uid-2", Staff: true}, order); err != nil {
		t.Fatalf("expected staff to pass, got %v", err)
	}
	if err := guard.RequireOwner(Actor{UID: "uid-2"}, order); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
	if err := guard.RequireOwner(Actor{}, order); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for anonymous actor, got %v", err)
	}
}

func TestAccessGuardRequireStaff(t *testing.T) {
	guard := NewAccessGuard()

	if err := guard.RequireStaff(Actor{UID: "uid-1", Staff: true}); err != nil {
		t.Fatalf("expected staff to pass, got %v", err)
	}
	if err := guard.RequireStaff(Actor{UID: "uid-1"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for customer, got %v", err)
	}
}
