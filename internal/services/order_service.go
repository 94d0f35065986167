package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/food-hunger/api/internal/domain"
	"github.com/food-hunger/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderNotCancellable indicates the order already reached a terminal state.
	ErrOrderNotCancellable = errors.New("order: not cancellable")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrRestaurantNotFound indicates the restaurant does not exist or is inactive.
	ErrRestaurantNotFound = errors.New("order: restaurant not found")
	// ErrMenuItemNotFound indicates a referenced menu item does not exist for the restaurant.
	ErrMenuItemNotFound = errors.New("order: menu item not found")
	// ErrMenuItemUnavailable indicates a referenced menu item is not orderable right now.
	ErrMenuItemUnavailable = errors.New("order: menu item unavailable")
)

// Each status permits exactly one forward step plus cancellation; terminal
// states permit nothing.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:        {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:      {domain.OrderStatusPreparing, domain.OrderStatusCancelled},
	domain.OrderStatusPreparing:      {domain.OrderStatusReady, domain.OrderStatusCancelled},
	domain.OrderStatusReady:          {domain.OrderStatusOutForDelivery, domain.OrderStatusCancelled},
	domain.OrderStatusOutForDelivery: {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
}

var validPaymentMethods = []domain.PaymentMethod{
	domain.PaymentMethodCard,
	domain.PaymentMethodCash,
	domain.PaymentMethodDigitalWallet,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	RestaurantID   string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Catalog     repositories.CatalogRepository
	Pricing     *PricingEngine
	Guard       *AccessGuard
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	catalog    repositories.CatalogRepository
	pricing    *PricingEngine
	guard      *AccessGuard
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	guard := deps.Guard
	if guard == nil {
		guard = NewAccessGuard()
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		catalog:    deps.Catalog,
		pricing:    deps.Pricing,
		guard:      guard,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.Actor.UID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: actor uid is required", ErrOrderInvalidInput)
	}
	restaurantID := strings.TrimSpace(cmd.RestaurantID)
	if restaurantID == "" {
		return Order{}, fmt.Errorf("%w: restaurant id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if err := validateDeliveryAddress(cmd.DeliveryAddress); err != nil {
		return Order{}, err
	}
	method, err := normalisePaymentMethod(cmd.PaymentMethod)
	if err != nil {
		return Order{}, err
	}

	exists, err := s.catalog.RestaurantExists(ctx, restaurantID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !exists {
		return Order{}, fmt.Errorf("%w: %s", ErrRestaurantNotFound, restaurantID)
	}

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for _, input := range cmd.Items {
		menuItemID := strings.TrimSpace(input.MenuItemID)
		if menuItemID == "" {
			return Order{}, fmt.Errorf("%w: menu item id is required", ErrOrderInvalidInput)
		}
		if input.Quantity < 1 {
			return Order{}, fmt.Errorf("%w: item %s quantity must be at least 1", ErrOrderInvalidInput, menuItemID)
		}

		menuItem, err := s.catalog.GetMenuItem(ctx, restaurantID, menuItemID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return Order{}, fmt.Errorf("%w: %s", ErrMenuItemNotFound, menuItemID)
			}
			return Order{}, s.mapRepositoryError(err)
		}
		if !menuItem.Available {
			return Order{}, fmt.Errorf("%w: %s", ErrMenuItemUnavailable, menuItemID)
		}

		items = append(items, domain.OrderItem{
			MenuItemID:          menuItem.ID,
			Name:                menuItem.Name,
			Quantity:            input.Quantity,
			UnitPrice:           menuItem.Price,
			SpecialInstructions: strings.TrimSpace(input.SpecialInstructions),
		})
	}

	breakdown, err := s.pricing.Quote(ctx, items)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:                  s.nextOrderID(),
		UserID:              userID,
		RestaurantID:        restaurantID,
		Items:               items,
		Subtotal:            breakdown.Subtotal,
		Tax:                 breakdown.Tax,
		DeliveryFee:         breakdown.DeliveryFee,
		Total:               breakdown.Total,
		Currency:            breakdown.Currency,
		Status:              domain.OrderStatusPending,
		PaymentStatus:       domain.PaymentStatusPending,
		PaymentMethod:       method,
		DeliveryAddress:     cmd.DeliveryAddress,
		DeliveryTime:        cmd.DeliveryTime,
		SpecialInstructions: strings.TrimSpace(cmd.SpecialInstructions),
		CustomerPhone:       strings.TrimSpace(cmd.CustomerPhone),
		CustomerEmail:       strings.TrimSpace(cmd.CustomerEmail),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		RestaurantID:  order.RestaurantID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"total":    order.Total,
			"currency": order.Currency,
		},
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if err := s.guard.RequireOwner(actor, order); err != nil {
		return Order{}, err
	}

	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, cmd ListUserOrdersCommand) (domain.CursorPage[Order], error) {
	userID := strings.TrimSpace(cmd.Actor.UID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: actor uid is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.ListByUser(ctx, repositories.OrderListFilter{
		UserID:     userID,
		Status:     cmd.Status,
		DateRange:  cmd.DateRange,
		Pagination: cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	if err := s.guard.RequireStaff(cmd.Actor); err != nil {
		return Order{}, err
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.TrimSpace(cmd.TargetStatus))
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	now := s.now()
	var prevStatus domain.OrderStatus

	order, err := s.orders.Mutate(ctx, orderID, func(current domain.Order) (domain.Order, error) {
		prevStatus = current.Status
		if !canTransition(current.Status, target) {
			return domain.Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current.Status, target)
		}
		current.Status = target
		current.UpdatedAt = now
		return current, nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		RestaurantID:   order.RestaurantID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Actor.UID,
		OccurredAt:     now,
	})

	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	existing, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if err := s.guard.RequireOwner(cmd.Actor, existing); err != nil {
		return Order{}, err
	}

	now := s.now()
	reason := strings.TrimSpace(cmd.Reason)
	var prevStatus domain.OrderStatus

	order, err := s.orders.Mutate(ctx, orderID, func(current domain.Order) (domain.Order, error) {
		prevStatus = current.Status
		if current.Status.IsTerminal() {
			return domain.Order{}, fmt.Errorf("%w: order status %q", ErrOrderNotCancellable, current.Status)
		}
		current.Status = domain.OrderStatusCancelled
		current.UpdatedAt = now
		return current, nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	metadata := map[string]any{}
	if reason != "" {
		metadata["reason"] = reason
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		RestaurantID:   order.RestaurantID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Actor.UID,
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return order, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func validateDeliveryAddress(addr domain.DeliveryAddress) error {
	if strings.TrimSpace(addr.Street) == "" {
		return fmt.Errorf("%w: delivery street is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: delivery city is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.State) == "" {
		return fmt.Errorf("%w: delivery state is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.ZipCode) == "" {
		return fmt.Errorf("%w: delivery zip code is required", ErrOrderInvalidInput)
	}
	return nil
}

func normalisePaymentMethod(method string) (domain.PaymentMethod, error) {
	trimmed := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(method)))
	if trimmed == "" {
		return "", fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}
	if !slices.Contains(validPaymentMethods, trimmed) {
		return "", fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, method)
	}
	return trimmed, nil
}

func canTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
