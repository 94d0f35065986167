package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/food-hunger/api/internal/platform/auth"
	"github.com/food-hunger/api/internal/platform/httpx"
	"github.com/food-hunger/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodyBytes    = 1 << 20
)

// OrderHandlers exposes the customer and staff facing order endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs the order handler group.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes mounts the order endpoints. Every route requires an authenticated caller.
func (h *OrderHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.create)
	r.Get("/user", h.listMine)
	r.Get("/{orderID}", h.get)
	r.Put("/{orderID}/status", h.updateStatus)
	r.Post("/{orderID}/cancel", h.cancel)
}

type orderItemPayload struct {
	MenuItemID          string `json:"menu_item_id"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

type deliveryAddressPayload struct {
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
	Instructions string `json:"instructions,omitempty"`
}

type createOrderRequest struct {
	RestaurantID        string                 `json:"restaurant_id"`
	Items               []orderItemPayload     `json:"items"`
	DeliveryAddress     deliveryAddressPayload `json:"delivery_address"`
	PaymentMethod       string                 `json:"payment_method"`
	DeliveryTime        string                 `json:"delivery_time,omitempty"`
	SpecialInstructions string                 `json:"special_instructions,omitempty"`
	CustomerPhone       string                 `json:"customer_phone,omitempty"`
	CustomerEmail       string                 `json:"customer_email,omitempty"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *OrderHandlers) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(w, r)
		return
	}

	body, err := readLimitedBody(r, maxOrderBodyBytes)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		Actor:        actor,
		RestaurantID: strings.TrimSpace(req.RestaurantID),
		DeliveryAddress: services.DeliveryAddress{
			Street:       sanitizeText(req.DeliveryAddress.Street),
			City:         sanitizeText(req.DeliveryAddress.City),
			State:        sanitizeText(req.DeliveryAddress.State),
			ZipCode:      sanitizeText(req.DeliveryAddress.ZipCode),
			Instructions: sanitizeText(req.DeliveryAddress.Instructions),
		},
		PaymentMethod:       req.PaymentMethod,
		SpecialInstructions: sanitizeText(req.SpecialInstructions),
		CustomerPhone:       strings.TrimSpace(req.CustomerPhone),
		CustomerEmail:       strings.TrimSpace(req.CustomerEmail),
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderItemInput{
			MenuItemID:          strings.TrimSpace(item.MenuItemID),
			Quantity:            item.Quantity,
			SpecialInstructions: sanitizeText(item.SpecialInstructions),
		})
	}
	if strings.TrimSpace(req.DeliveryTime) != "" {
		ts, err := parseTimeParam(req.DeliveryTime)
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "delivery_time must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.DeliveryTime = &ts
	}

	order, err := h.orders.CreateOrder(r.Context(), cmd)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toOrderPayload(order))
}

func (h *OrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(w, r)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"), actor)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

func (h *OrderHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(w, r)
		return
	}

	query := r.URL.Query()
	cmd := services.ListUserOrdersCommand{
		Actor:  actor,
		Status: parseFilterValues(query["status"]),
	}

	if value := strings.TrimSpace(query.Get("created_after")); value != "" {
		ts, err := parseTimeParam(value)
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "created_after must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.DateRange.From = &ts
	}
	if value := strings.TrimSpace(query.Get("created_before")); value != "" {
		ts, err := parseTimeParam(value)
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "created_before must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.DateRange.To = &ts
	}

	pageSize := defaultOrderPageSize
	if value := strings.TrimSpace(query.Get("page_size")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 1 {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "page_size must be a positive integer", http.StatusBadRequest))
			return
		}
		if parsed > maxOrderPageSize {
			parsed = maxOrderPageSize
		}
		pageSize = parsed
	}
	cmd.Pagination = services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}

	page, err := h.orders.ListUserOrders(r.Context(), cmd)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	payload := orderListPayload{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		payload.Orders = append(payload.Orders, toOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(w, r)
		return
	}

	body, err := readLimitedBody(r, maxOrderBodyBytes)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(r.Context(), services.OrderStatusTransitionCommand{
		Actor:        actor,
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: req.Status,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

func (h *OrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(w, r)
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderBodyBytes)
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// cancellation reason is optional
	default:
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.Cancel(r.Context(), services.CancelOrderCommand{
		Actor:   actor,
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  sanitizeText(req.Reason),
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

type orderItemResponse struct {
	MenuItemID          string `json:"menu_item_id"`
	Name                string `json:"name"`
	Quantity            int    `json:"quantity"`
	UnitPrice           int64  `json:"unit_price"`
	TotalPrice          int64  `json:"total_price"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

type orderPayload struct {
	ID                    string                 `json:"id"`
	UserID                string                 `json:"user_id"`
	RestaurantID          string                 `json:"restaurant_id"`
	Items                 []orderItemResponse    `json:"items"`
	Subtotal              int64                  `json:"subtotal"`
	Tax                   int64                  `json:"tax"`
	DeliveryFee           int64                  `json:"delivery_fee"`
	Total                 int64                  `json:"total"`
	Currency              string                 `json:"currency"`
	Status                string                 `json:"status"`
	PaymentStatus         string                 `json:"payment_status"`
	PaymentMethod         string                 `json:"payment_method"`
	PaymentIntentID       string                 `json:"payment_intent_id,omitempty"`
	DeliveryAddress       deliveryAddressPayload `json:"delivery_address"`
	DeliveryTime          string                 `json:"delivery_time,omitempty"`
	EstimatedDeliveryTime string                 `json:"estimated_delivery_time,omitempty"`
	SpecialInstructions   string                 `json:"special_instructions,omitempty"`
	CustomerPhone         string                 `json:"customer_phone,omitempty"`
	CustomerEmail         string                 `json:"customer_email,omitempty"`
	CreatedAt             string                 `json:"created_at"`
	UpdatedAt             string                 `json:"updated_at"`
}

type orderListPayload struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func toOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:           order.ID,
		UserID:       order.UserID,
		RestaurantID: order.RestaurantID,
		Items:        make([]orderItemResponse, 0, len(order.Items)),
		Subtotal:     order.Subtotal,
		Tax:          order.Tax,
		DeliveryFee:  order.DeliveryFee,
		Total:        order.Total,
		Currency:     order.Currency,

		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentIntentID: order.PaymentIntentID,

		DeliveryAddress: deliveryAddressPayload{
			Street:       order.DeliveryAddress.Street,
			City:         order.DeliveryAddress.City,
			State:        order.DeliveryAddress.State,
			ZipCode:      order.DeliveryAddress.ZipCode,
			Instructions: order.DeliveryAddress.Instructions,
		},
		DeliveryTime:          formatTimePtr(order.DeliveryTime),
		EstimatedDeliveryTime: formatTimePtr(order.EstimatedDeliveryTime),
		SpecialInstructions:   order.SpecialInstructions,
		CustomerPhone:         order.CustomerPhone,
		CustomerEmail:         order.CustomerEmail,

		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemResponse{
			MenuItemID:          item.MenuItemID,
			Name:                item.Name,
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			TotalPrice:          item.Total(),
			SpecialInstructions: item.SpecialInstructions,
		})
	}
	return payload
}

func actorFromRequest(r *http.Request) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, false
	}
	return services.Actor{
		UID:   identity.UID,
		Email: identity.Email,
		Staff: identity.IsStaff(),
	}, true
}

func writeUnauthenticated(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
}

func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "you do not have access to this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRestaurantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("restaurant_not_found", "restaurant not found", http.StatusNotFound))
	case errors.Is(err, services.ErrMenuItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("menu_item_not_found", "menu item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrMenuItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("menu_item_unavailable", "menu item is not available", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotCancellable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_cancellable", "order can no longer be cancelled", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "order was modified concurrently", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
