package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/food-hunger/api/internal/domain"
)

// ErrForbidden indicates the actor may not act on the target resource.
var ErrForbidden = errors.New("access: forbidden")

// AccessGuard centralises ownership and capability checks so every surface
// applies the same rules.
type AccessGuard struct{}

// NewAccessGuard returns a guard instance.
func NewAccessGuard() *AccessGuard {
	return &AccessGuard{}
}

// RequireOwner passes when the actor owns the order or carries staff capability.
func (g *AccessGuard) RequireOwner(actor Actor, order domain.Order) error {
	if actor.Staff {
		return nil
	}
	uid := strings.TrimSpace(actor.UID)
	if uid == "" {
		return fmt.Errorf("%w: actor is not authenticated", ErrForbidden)
	}
	if uid != order.UserID {
		return fmt.Errorf("%w: order %s belongs to another user", ErrForbidden, order.ID)
	}
	return nil
}

// RequireStaff passes only for staff or admin actors.
func (g *AccessGuard) RequireStaff(actor Actor) error {
	if !actor.Staff {
		return fmt.Errorf("%w: staff capability required", ErrForbidden)
	}
	return nil
}
