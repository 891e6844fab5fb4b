package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	orderDomain "github.com/davicafu/sagalab/internal/order/domain"
	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedCache "github.com/davicafu/sagalab/internal/shared/infra/platform/cache"
)

const orderCacheTTL = 300 // segundos

// OrderSummary es el modelo de lectura del pedido que se sirve por HTTP y se
// cachea. Se deriva del agregado, nunca al revés.
type OrderSummary struct {
	OrderID    string                  `json:"order_id"`
	CustomerID string                  `json:"customer_id"`
	Quantity   int                     `json:"quantity"`
	Amount     float64                 `json:"amount"`
	Status     orderDomain.OrderStatus `json:"status"`
	PaymentID  string                  `json:"payment_id,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	Version    int                     `json:"version"`
}

// OrderService define los casos de uso del pedido sobre el event store.
// Cada comando sigue el ciclo: rehidratar, mutar (emitir eventos), guardar,
// y encolar los eventos de integración en el outbox.
type OrderService struct {
	repo   *sharedDomain.Repository
	cache  sharedCache.Cache
	outbox sharedDomain.OutboxRepository
	log    *zap.Logger
}

// NewOrderService constructor
func NewOrderService(repo *sharedDomain.Repository, cache sharedCache.Cache, outbox sharedDomain.OutboxRepository, log *zap.Logger) *OrderService {
	return &OrderService{repo: repo, cache: cache, outbox: outbox, log: log}
}

// CreateOrder crea el agregado y persiste su primer evento.
// correlationID agrupa todos los eventos de la operación de negocio (la saga).
func (s *OrderService) CreateOrder(ctx context.Context, orderID, customerID string, quantity int, amount float64, correlationID string) (*orderDomain.Order, error) {
	order := orderDomain.NewOrder(orderID)
	order.SetCorrelation(correlationID, "")

	if err := order.Create(customerID, quantity, amount); err != nil {
		return nil, err
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmOrder confirma el pedido tras un pago correcto.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID, paymentID, correlationID string) error {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	order.SetCorrelation(correlationID, "")

	if err := order.Confirm(paymentID); err != nil {
		return err
	}
	return s.save(ctx, order)
}

// CancelOrder anula el pedido (p. ej. compensación de la saga).
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason, correlationID string) error {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	order.SetCorrelation(correlationID, "")

	if err := order.Cancel(reason); err != nil {
		return err
	}
	return s.save(ctx, order)
}

// GetOrder rehidrata el pedido desde su histórico de eventos. Los comandos
// siempre pasan por aquí: el estado de escritura no se sirve desde caché.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*orderDomain.Order, error) {
	order := orderDomain.NewOrder(orderID)
	if err := s.repo.Load(ctx, order); err != nil {
		if err == sharedDomain.ErrAggregateNotFound {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetOrderSummary devuelve el modelo de lectura del pedido, con read-through
// sobre la caché: hit directo, miss rehidrata y puebla en background.
func (s *OrderService) GetOrderSummary(ctx context.Context, orderID string) (OrderSummary, error) {
	key := orderCacheKey(orderID)

	if s.cache != nil {
		var cached OrderSummary
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("⚠️ Fallo leyendo caché de pedidos", zap.String("key", key), zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return OrderSummary{}, err
	}

	summary := OrderSummary{
		OrderID:    order.AggregateID(),
		CustomerID: order.CustomerID,
		Quantity:   order.Quantity,
		Amount:     order.Amount,
		Status:     order.Status,
		PaymentID:  order.PaymentID,
		CreatedAt:  order.CreatedAt,
		Version:    order.CurrentVersion(),
	}
	sharedCache.AsyncCacheSet(ctx, s.cache, key, summary, orderCacheTTL, s.log)
	return summary, nil
}

// save persiste los eventos no confirmados, invalida el modelo de lectura y
// reenvía los eventos al outbox como eventos de integración (write-ahead
// respecto a la publicación en el bus).
func (s *OrderService) save(ctx context.Context, order *orderDomain.Order) error {
	pending := order.UncommittedEvents()

	if err := s.repo.Save(ctx, order); err != nil {
		return err
	}

	if len(pending) > 0 {
		sharedCache.AsyncCacheDelete(ctx, s.cache, orderCacheKey(order.AggregateID()), s.log)
	}

	if s.outbox == nil {
		return nil
	}
	for _, evt := range pending {
		outboxEvt := sharedDomain.OutboxEvent{
			ID:            uuid.New(),
			AggregateType: evt.AggregateType,
			AggregateID:   evt.AggregateID,
			EventType:     evt.Type,
			Payload:       evt, // el sobre completo viaja tal cual hasta el bus
			CreatedAt:     time.Now().UTC(),
		}
		// Un evento que no llega al outbox es un evento que nunca se
		// publicará: el fallo sube al llamante en lugar de perderse en un log.
		if err := s.outbox.Enqueue(ctx, outboxEvt); err != nil {
			s.log.Error("❌ No se pudo encolar evento de integración",
				zap.String("event_type", evt.Type),
				zap.String("order_id", evt.AggregateID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to enqueue integration event %s: %w", evt.Type, err)
		}
	}
	return nil
}

func orderCacheKey(orderID string) string { return "order:summary:" + orderID }
