package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/food-hunger/api/internal/domain"
	pfirestore "github.com/food-hunger/api/internal/platform/firestore"
	"github.com/food-hunger/api/internal/platform/pagination"
	"github.com/food-hunger/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order documents within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert stores a new order document. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	doc := encodeOrderDocument(order)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the persisted order state with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	doc := encodeOrderDocument(order)
	if _, err := docRef.Set(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(orderID, doc.Data), nil
}

// ListByUser returns orders placed by the given user ordered by most recent first.
func (r *OrderRepository) ListByUser(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := normaliseStatusFilters(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)

		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}

		if filter.DateRange.From != nil && !filter.DateRange.From.IsZero() {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil && !filter.DateRange.To.IsZero() {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken, err = encodeOrderListToken(tokenTime, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: encode page token: %w", err)
		}
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Mutate applies fn to the order inside a Firestore transaction keyed by the
// order document, serialising concurrent mutations of the same order.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn repositories.OrderMutator) (domain.Order, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if fn == nil {
		return domain.Order{}, errors.New("order repository: mutator is required")
	}

	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var mutated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return pfirestore.WrapError("orders.mutate", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("order repository: decode document %s: %w", orderID, err)
		}

		next, err := fn(decodeOrderDocument(orderID, doc))
		if err != nil {
			return err
		}
		next.ID = orderID

		if err := tx.Set(docRef, encodeOrderDocument(next)); err != nil {
			return pfirestore.WrapError("orders.mutate", err)
		}
		mutated = next
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return mutated, nil
}

type orderDocument struct {
	UserID                string                   `firestore:"userId"`
	RestaurantID          string                   `firestore:"restaurantId"`
	Items                 []orderItemDocument      `firestore:"items"`
	Subtotal              int64                    `firestore:"subtotal"`
	Tax                   int64                    `firestore:"tax"`
	DeliveryFee           int64                    `firestore:"deliveryFee"`
	Total                 int64                    `firestore:"total"`
	Currency              string                   `firestore:"currency"`
	Status                string                   `firestore:"status"`
	PaymentStatus         string                   `firestore:"paymentStatus"`
	PaymentMethod         string                   `firestore:"paymentMethod"`
	PaymentIntentID       string                   `firestore:"paymentIntentId,omitempty"`
	DeliveryAddress       deliveryAddressDocument  `firestore:"deliveryAddress"`
	DeliveryTime          *time.Time               `firestore:"deliveryTime,omitempty"`
	EstimatedDeliveryTime *time.Time               `firestore:"estimatedDeliveryTime,omitempty"`
	SpecialInstructions   string                   `firestore:"specialInstructions,omitempty"`
	CustomerPhone         string                   `firestore:"customerPhone"`
	CustomerEmail         string                   `firestore:"customerEmail"`
	CreatedAt             time.Time                `firestore:"createdAt"`
	UpdatedAt             time.Time                `firestore:"updatedAt"`
}

type orderItemDocument struct {
	MenuItemID          string `firestore:"menuItemId"`
	Name                string `firestore:"name"`
	Quantity            int    `firestore:"quantity"`
	UnitPrice           int64  `firestore:"unitPrice"`
	SpecialInstructions string `firestore:"specialInstructions,omitempty"`
}

type deliveryAddressDocument struct {
	Street       string `firestore:"street"`
	City         string `firestore:"city"`
	State        string `firestore:"state"`
	ZipCode      string `firestore:"zipCode"`
	Instructions string `firestore:"instructions,omitempty"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			MenuItemID:          strings.TrimSpace(item.MenuItemID),
			Name:                strings.TrimSpace(item.Name),
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			SpecialInstructions: strings.TrimSpace(item.SpecialInstructions),
		})
	}

	doc := orderDocument{
		UserID:          strings.TrimSpace(order.UserID),
		RestaurantID:    strings.TrimSpace(order.RestaurantID),
		Items:           items,
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		DeliveryFee:     order.DeliveryFee,
		Total:           order.Total,
		Currency:        strings.ToLower(strings.TrimSpace(order.Currency)),
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentIntentID: strings.TrimSpace(order.PaymentIntentID),
		DeliveryAddress: deliveryAddressDocument{
			Street:       strings.TrimSpace(order.DeliveryAddress.Street),
			City:         strings.TrimSpace(order.DeliveryAddress.City),
			State:        strings.TrimSpace(order.DeliveryAddress.State),
			ZipCode:      strings.TrimSpace(order.DeliveryAddress.ZipCode),
			Instructions: strings.TrimSpace(order.DeliveryAddress.Instructions),
		},
		SpecialInstructions: strings.TrimSpace(order.SpecialInstructions),
		CustomerPhone:       strings.TrimSpace(order.CustomerPhone),
		CustomerEmail:       strings.TrimSpace(order.CustomerEmail),
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
	}

	if order.DeliveryTime != nil && !order.DeliveryTime.IsZero() {
		value := order.DeliveryTime.UTC()
		doc.DeliveryTime = &value
	}
	if order.EstimatedDeliveryTime != nil && !order.EstimatedDeliveryTime.IsZero() {
		value := order.EstimatedDeliveryTime.UTC()
		doc.EstimatedDeliveryTime = &value
	}

	return doc
}

func decodeOrderDocument(orderID string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			MenuItemID:          item.MenuItemID,
			Name:                item.Name,
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			SpecialInstructions: item.SpecialInstructions,
		})
	}

	return domain.Order{
		ID:              orderID,
		UserID:          doc.UserID,
		RestaurantID:    doc.RestaurantID,
		Items:           items,
		Subtotal:        doc.Subtotal,
		Tax:             doc.Tax,
		DeliveryFee:     doc.DeliveryFee,
		Total:           doc.Total,
		Currency:        doc.Currency,
		Status:          domain.OrderStatus(doc.Status),
		PaymentStatus:   domain.PaymentStatus(doc.PaymentStatus),
		PaymentMethod:   domain.PaymentMethod(doc.PaymentMethod),
		PaymentIntentID: doc.PaymentIntentID,
		DeliveryAddress: domain.DeliveryAddress{
			Street:       doc.DeliveryAddress.Street,
			City:         doc.DeliveryAddress.City,
			State:        doc.DeliveryAddress.State,
			ZipCode:      doc.DeliveryAddress.ZipCode,
			Instructions: doc.DeliveryAddress.Instructions,
		},
		DeliveryTime:          doc.DeliveryTime,
		EstimatedDeliveryTime: doc.EstimatedDeliveryTime,
		SpecialInstructions:   doc.SpecialInstructions,
		CustomerPhone:         doc.CustomerPhone,
		CustomerEmail:         doc.CustomerEmail,
		CreatedAt:             doc.CreatedAt,
		UpdatedAt:             doc.UpdatedAt,
	}
}

func normaliseStatusFilters(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func encodeOrderListToken(createdAt time.Time, docID string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
}

func decodeOrderListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", errors.New("malformed token")
	}
	rawTime, _ := cursor.StartAfter[0].(string)
	docID, _ := cursor.StartAfter[1].(string)
	tokenTime, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", err
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return time.Time{}, "", errors.New("malformed token")
	}
	return tokenTime, docID, nil
}
