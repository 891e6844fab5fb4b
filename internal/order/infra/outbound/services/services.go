package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	orderDomain "github.com/davicafu/sagalab/internal/order/domain"
)

// Implementaciones en proceso de los servicios externos que invoca la saga.
// Sirven para demos y tests; en producción serían clientes HTTP/gRPC.

// InventoryServiceMemory mantiene el stock y las reservas en memoria.
type InventoryServiceMemory struct {
	mu           sync.Mutex
	stock        int
	reservations map[string]int // reservation_id -> cantidad
	log          *zap.Logger
}

func NewInventoryServiceMemory(stock int, log *zap.Logger) *InventoryServiceMemory {
	return &InventoryServiceMemory{
		stock:        stock,
		reservations: make(map[string]int),
		log:          log,
	}
}

func (s *InventoryServiceMemory) Reserve(_ context.Context, orderID string, quantity int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity > s.stock {
		return "", fmt.Errorf("%w: order %s wants %d, stock is %d",
			orderDomain.ErrOutOfStock, orderID, quantity, s.stock)
	}

	reservationID := uuid.New().String()
	s.stock -= quantity
	s.reservations[reservationID] = quantity

	s.log.Info("📦 Stock reservado",
		zap.String("order_id", orderID),
		zap.String("reservation_id", reservationID),
		zap.Int("quantity", quantity),
	)
	return reservationID, nil
}

func (s *InventoryServiceMemory) Release(_ context.Context, reservationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	quantity, ok := s.reservations[reservationID]
	if !ok {
		return fmt.Errorf("reservation not found: %s", reservationID)
	}
	delete(s.reservations, reservationID)
	s.stock += quantity

	s.log.Info("↩️ Reserva liberada", zap.String("reservation_id", reservationID))
	return nil
}

// Stock devuelve el stock disponible (para tests y diagnóstico).
func (s *InventoryServiceMemory) Stock() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock
}

// PaymentServiceMemory simula el servicio de pagos con un saldo por defecto.
type PaymentServiceMemory struct {
	mu       sync.Mutex
	balance  float64
	payments map[string]float64 // payment_id -> importe
	log      *zap.Logger
}

func NewPaymentServiceMemory(balance float64, log *zap.Logger) *PaymentServiceMemory {
	return &PaymentServiceMemory{
		balance:  balance,
		payments: make(map[string]float64),
		log:      log,
	}
}

func (s *PaymentServiceMemory) Charge(_ context.Context, orderID string, amount float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount > s.balance {
		return "", fmt.Errorf("%w: order %s needs %.2f, balance is %.2f",
			orderDomain.ErrInsufficientFunds, orderID, amount, s.balance)
	}

	paymentID := uuid.New().String()
	s.balance -= amount
	s.payments[paymentID] = amount

	s.log.Info("💳 Pago cobrado",
		zap.String("order_id", orderID),
		zap.String("payment_id", paymentID),
		zap.Float64("amount", amount),
	)
	return paymentID, nil
}

func (s *PaymentServiceMemory) Refund(_ context.Context, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount, ok := s.payments[paymentID]
	if !ok {
		return fmt.Errorf("payment not found: %s", paymentID)
	}
	delete(s.payments, paymentID)
	s.balance += amount

	s.log.Info("↩️ Pago devuelto", zap.String("payment_id", paymentID))
	return nil
}

// Verificación estática
var _ orderDomain.InventoryService = (*InventoryServiceMemory)(nil)
var _ orderDomain.PaymentService = (*PaymentServiceMemory)(nil)
