package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across gateways.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been fully refunded.
	StatusRefunded Status = "refunded"
)

// ErrUnsupportedGateway is returned when the manager cannot locate a gateway.
var ErrUnsupportedGateway = errors.New("payments: unsupported gateway")

// ErrUnavailable marks transport-level gateway failures that callers may retry.
var ErrUnavailable = errors.New("payments: gateway unavailable")

// CreateIntentRequest captures the payload required to open a payment intent.
type CreateIntentRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	CustomerEmail  string
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundRequest defines a PSP refund attempt.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent normalises gateway specific payment intent fields for storage.
type Intent struct {
	ID             string
	Gateway        string
	ClientSecret   string
	Amount         int64
	AmountRefunded int64
	Currency       string
	Status         Status
	RefundedAt     *time.Time
	Raw            map[string]any
}

// Gateway defines the contract for PSP adapters to implement.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error)
	GetIntent(ctx context.Context, intentID string) (Intent, error)
	Refund(ctx context.Context, req RefundRequest) (Intent, error)
}

// Manager coordinates gateway selection and exposes the aggregated interface.
// CreateIntent routes by request currency; intent-scoped operations use the
// default gateway because intent identifiers are gateway specific.
type Manager struct {
	gateways       map[string]Gateway
	defaultGateway string
	currencyRoutes map[string]string
}

var _ Gateway = (*Manager)(nil)

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultGateway overrides the default gateway for currencies without explicit routing.
func WithDefaultGateway(gateway string) ManagerOption {
	return func(m *Manager) {
		m.defaultGateway = gateway
	}
}

// WithCurrencyRoutes configures static currency to gateway mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied gateways.
func NewManager(gateways map[string]Gateway, opts ...ManagerOption) (*Manager, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	copyMap := make(map[string]Gateway, len(gateways))
	for k, v := range gateways {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid gateway registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		gateways: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultGateway = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolveGateway(currency string) (string, Gateway, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.gateways) == 0 {
		return "", nil, errors.New("payments: no gateways registered")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency != "" && m.currencyRoutes != nil {
		if gatewayKey, ok := m.currencyRoutes[currency]; ok {
			gateway := strings.TrimSpace(strings.ToLower(gatewayKey))
			if g, ok := m.gateways[gateway]; ok {
				return gateway, g, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultGateway)); def != "" {
		if g, ok := m.gateways[def]; ok {
			return def, g, nil
		}
	}
	if len(m.gateways) == 1 {
		for key, g := range m.gateways {
			return key, g, nil
		}
	}
	return "", nil, ErrUnsupportedGateway
}

// CreateIntent delegates to the gateway resolved for the request currency.
func (m *Manager) CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	key, gateway, err := m.resolveGateway(req.Currency)
	if err != nil {
		return Intent{}, err
	}
	intent, err := gateway.CreateIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Gateway = key
	return intent, nil
}

// GetIntent delegates to the default gateway.
func (m *Manager) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	_, gateway, err := m.resolveGateway("")
	if err != nil {
		return Intent{}, err
	}
	return gateway.GetIntent(ctx, intentID)
}

// Refund delegates to the default gateway.
func (m *Manager) Refund(ctx context.Context, req RefundRequest) (Intent, error) {
	_, gateway, err := m.resolveGateway("")
	if err != nil {
		return Intent{}, err
	}
	return gateway.Refund(ctx, req)
}
