package application

import (
	"context"
	"fmt"
	"time"

	orderDomain "github.com/davicafu/sagalab/internal/order/domain"
	sagaDomain "github.com/davicafu/sagalab/internal/saga/domain"
)

// OrderCreationSagaID es el id con el que se registra la saga en el orquestador.
const OrderCreationSagaID = "order-creation"

// Claves del contexto de la saga.
const (
	CtxOrderID       = "order_id"
	CtxCustomerID    = "customer_id"
	CtxQuantity      = "quantity"
	CtxAmount        = "amount"
	CtxReservationID = "reservation_id"
	CtxPaymentID     = "payment_id"
	CtxSagaID        = "saga_instance_id"
)

// defaultRetry cubre fallos transitorios de red contra los servicios externos.
var defaultRetry = &sagaDomain.RetryPolicy{
	MaxAttempts: 3,
	Backoff:     100 * time.Millisecond,
	Multiplier:  2,
	Exponential: true,
}

// BuildOrderCreationSaga ensambla la definición de la saga de creación de
// pedido: validate-order, reserve-inventory, create-payment, confirm-order.
// Cada paso con efecto externo registra la compensación que lo deshace.
func BuildOrderCreationSaga(
	orders *OrderService,
	inventory orderDomain.InventoryService,
	payment orderDomain.PaymentService,
) sagaDomain.Definition {
	return sagaDomain.Definition{
		ID:      OrderCreationSagaID,
		Name:    "Order creation",
		Timeout: 30 * time.Second,
		Steps: []sagaDomain.Step{
			{
				Name: "validate-order",
				Action: func(ctx context.Context, sagaCtx sagaDomain.Context) (map[string]interface{}, error) {
					orderID, err := ctxString(sagaCtx, CtxOrderID)
					if err != nil {
						return nil, err
					}
					customerID, err := ctxString(sagaCtx, CtxCustomerID)
					if err != nil {
						return nil, err
					}
					quantity, err := ctxInt(sagaCtx, CtxQuantity)
					if err != nil {
						return nil, err
					}
					amount, err := ctxFloat(sagaCtx, CtxAmount)
					if err != nil {
						return nil, err
					}

					correlationID, _ := sagaCtx[CtxSagaID].(string)
					if _, err := orders.CreateOrder(ctx, orderID, customerID, quantity, amount, correlationID); err != nil {
						return nil, err
					}
					return nil, nil
				},
				Compensation: func(ctx context.Context, sagaCtx sagaDomain.Context) error {
					orderID, _ := sagaCtx[CtxOrderID].(string)
					correlationID, _ := sagaCtx[CtxSagaID].(string)
					return orders.CancelOrder(ctx, orderID, "saga compensated", correlationID)
				},
			},
			{
				Name:  "reserve-inventory",
				Retry: defaultRetry,
				Action: func(ctx context.Context, sagaCtx sagaDomain.Context) (map[string]interface{}, error) {
					orderID, _ := sagaCtx[CtxOrderID].(string)
					quantity, _ := ctxIntLoose(sagaCtx, CtxQuantity)

					reservationID, err := inventory.Reserve(ctx, orderID, quantity)
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{CtxReservationID: reservationID}, nil
				},
				Compensation: func(ctx context.Context, sagaCtx sagaDomain.Context) error {
					reservationID, _ := sagaCtx[CtxReservationID].(string)
					return inventory.Release(ctx, reservationID)
				},
			},
			{
				Name:  "create-payment",
				Retry: defaultRetry,
				Action: func(ctx context.Context, sagaCtx sagaDomain.Context) (map[string]interface{}, error) {
					orderID, _ := sagaCtx[CtxOrderID].(string)
					amount, _ := ctxFloatLoose(sagaCtx, CtxAmount)

					paymentID, err := payment.Charge(ctx, orderID, amount)
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{CtxPaymentID: paymentID}, nil
				},
				Compensation: func(ctx context.Context, sagaCtx sagaDomain.Context) error {
					paymentID, _ := sagaCtx[CtxPaymentID].(string)
					return payment.Refund(ctx, paymentID)
				},
			},
			{
				Name: "confirm-order",
				Action: func(ctx context.Context, sagaCtx sagaDomain.Context) (map[string]interface{}, error) {
					orderID, _ := sagaCtx[CtxOrderID].(string)
					paymentID, _ := sagaCtx[CtxPaymentID].(string)
					correlationID, _ := sagaCtx[CtxSagaID].(string)
					return nil, orders.ConfirmOrder(ctx, orderID, paymentID, correlationID)
				},
				// Sin compensación: confirmar es el último paso y no hay nada
				// que deshacer si la saga ya llegó hasta aquí.
			},
		},
	}
}

// ---------- Helpers de lectura tipada del contexto ----------

func ctxString(sagaCtx sagaDomain.Context, key string) (string, error) {
	v, ok := sagaCtx[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing %q in saga context", orderDomain.ErrInvalidOrder, key)
	}
	return v, nil
}

func ctxInt(sagaCtx sagaDomain.Context, key string) (int, error) {
	v, ok := ctxIntLoose(sagaCtx, key)
	if !ok || v <= 0 {
		return 0, fmt.Errorf("%w: missing or invalid %q in saga context", orderDomain.ErrInvalidOrder, key)
	}
	return v, nil
}

func ctxFloat(sagaCtx sagaDomain.Context, key string) (float64, error) {
	v, ok := ctxFloatLoose(sagaCtx, key)
	if !ok || v <= 0 {
		return 0, fmt.Errorf("%w: missing or invalid %q in saga context", orderDomain.ErrInvalidOrder, key)
	}
	return v, nil
}

// ctxIntLoose tolera que el valor llegue como float64 (deserializado de JSON).
func ctxIntLoose(sagaCtx sagaDomain.Context, key string) (int, bool) {
	switch v := sagaCtx[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func ctxFloatLoose(sagaCtx sagaDomain.Context, key string) (float64, bool) {
	switch v := sagaCtx[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
