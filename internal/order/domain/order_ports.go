package domain

import (
	"context"
	"errors"
)

// ---------- Errores de dominio ----------
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrOutOfStock         = errors.New("out of stock")
)

// ---------- Interfaces (Ports) ----------

// Los servicios externos que invocan los pasos de la saga. El core no conoce
// sus internals, solo su éxito/fallo y los datos que devuelven.

// InventoryService reserva y libera stock en el servicio de inventario.
type InventoryService interface {
	// Reserve debe devolver ErrOutOfStock si no hay stock suficiente.
	Reserve(ctx context.Context, orderID string, quantity int) (reservationID string, err error)

	// Release libera una reserva previa (compensación).
	Release(ctx context.Context, reservationID string) error
}

// PaymentService cobra y devuelve pagos en el servicio de pagos.
type PaymentService interface {
	// Charge debe devolver ErrInsufficientFunds si el cliente no tiene saldo.
	Charge(ctx context.Context, orderID string, amount float64) (paymentID string, err error)

	// Refund devuelve un cobro previo (compensación).
	Refund(ctx context.Context, paymentID string) error
}
