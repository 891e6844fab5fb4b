package domain

import (
	"encoding/json"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
)

// OrderStatus representa el estado actual del pedido.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// ---------- Payloads de eventos ----------

type OrderCreatedEvent struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Quantity   int       `json:"quantity"`
	Amount     float64   `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

type OrderConfirmedEvent struct {
	OrderID     string    `json:"order_id"`
	PaymentID   string    `json:"payment_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type OrderCancelledEvent struct {
	OrderID     string    `json:"order_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// Order es el aggregate root event-sourced del pedido. Su estado en memoria
// se deriva siempre de aplicar eventos, nunca se muta directamente.
type Order struct {
	sharedDomain.BaseAggregate

	CustomerID string      `json:"customer_id"`
	Quantity   int         `json:"quantity"`
	Amount     float64     `json:"amount"`
	Status     OrderStatus `json:"status"`
	PaymentID  string      `json:"payment_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewOrder construye el agregado vacío, listo para rehidratar o crear.
func NewOrder(id string) *Order {
	return &Order{BaseAggregate: sharedDomain.NewBaseAggregate(id, "order")}
}

// Create emite el evento de creación validando los invariantes de negocio.
func (o *Order) Create(customerID string, quantity int, amount float64) error {
	if o.CurrentVersion() > 0 {
		return fmt.Errorf("%w: order %s", ErrOrderAlreadyExists, o.AggregateID())
	}
	if customerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidOrder)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}

	return o.Emit(o, OrderCreated, OrderCreatedEvent{
		OrderID:    o.AggregateID(),
		CustomerID: customerID,
		Quantity:   quantity,
		Amount:     amount,
		CreatedAt:  time.Now().UTC(),
	}, nil)
}

// Confirm marca el pedido como confirmado tras un pago correcto.
func (o *Order) Confirm(paymentID string) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: cannot confirm order in status %s", ErrInvalidOrder, o.Status)
	}

	return o.Emit(o, OrderConfirmed, OrderConfirmedEvent{
		OrderID:     o.AggregateID(),
		PaymentID:   paymentID,
		ConfirmedAt: time.Now().UTC(),
	}, nil)
}

// Cancel anula el pedido (compensación de la saga o decisión de negocio).
func (o *Order) Cancel(reason string) error {
	if o.Status == StatusCancelled {
		return nil // cancelar dos veces es idempotente
	}

	return o.Emit(o, OrderCancelled, OrderCancelledEvent{
		OrderID:     o.AggregateID(),
		Reason:      reason,
		CancelledAt: time.Now().UTC(),
	}, nil)
}

// ApplyEvent actualiza el estado en memoria a partir de un evento.
func (o *Order) ApplyEvent(evt sharedEvents.Event) error {
	switch evt.Type {
	case OrderCreated:
		var e OrderCreatedEvent
		if err := json.Unmarshal(evt.Payload, &e); err != nil {
			return err
		}
		o.CustomerID = e.CustomerID
		o.Quantity = e.Quantity
		o.Amount = e.Amount
		o.Status = StatusPending
		o.CreatedAt = e.CreatedAt
	case OrderConfirmed:
		var e OrderConfirmedEvent
		if err := json.Unmarshal(evt.Payload, &e); err != nil {
			return err
		}
		o.Status = StatusConfirmed
		o.PaymentID = e.PaymentID
	case OrderCancelled:
		o.Status = StatusCancelled
	default:
		return fmt.Errorf("unknown order event type: %s", evt.Type)
	}
	return nil
}

// Verificación estática para asegurar que Order implementa la interfaz
var _ sharedDomain.Aggregate = (*Order)(nil)
