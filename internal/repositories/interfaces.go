package repositories

import (
	"context"
	"time"

	domain "github.com/food-hunger/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows order list queries. Results are ordered newest first.
type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// OrderMutator applies a read-modify-write step to an order. Returning an error
// aborts the mutation without persisting anything.
type OrderMutator func(order domain.Order) (domain.Order, error)

// OrderRepository persists order documents and provides query helpers.
// Mutate runs the supplied mutator inside a storage transaction keyed by the
// order document, so concurrent mutations of the same order serialise.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Mutate(ctx context.Context, orderID string, fn OrderMutator) (domain.Order, error)
}

// CatalogRepository exposes the read model used when snapshotting menu prices.
type CatalogRepository interface {
	GetMenuItem(ctx context.Context, restaurantID, menuItemID string) (domain.MenuItem, error)
	RestaurantExists(ctx context.Context, restaurantID string) (bool, error)
}

// HealthRepository evaluates dependency checks for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
