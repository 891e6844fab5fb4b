package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	orderDomain "github.com/davicafu/sagalab/internal/order/domain"
	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
	sharedBus "github.com/davicafu/sagalab/internal/shared/infra/platform/bus"
	sharedUtils "github.com/davicafu/sagalab/internal/shared/infra/utils"
)

// OrderView es la proyección de lectura que mantiene el consumidor.
type OrderView struct {
	OrderID    string                  `json:"order_id"`
	CustomerID string                  `json:"customer_id"`
	Status     orderDomain.OrderStatus `json:"status"`
	Amount     float64                 `json:"amount"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// OrderConsumer proyecta los eventos order.* a un modelo de lectura.
// El inbox filtra duplicados: con entrega at-least-once el mismo evento puede
// llegar más de una vez.
type OrderConsumer struct {
	inbox sharedDomain.Inbox
	log   *zap.Logger

	mu    sync.RWMutex
	views map[string]*OrderView
}

func NewOrderConsumer(inbox sharedDomain.Inbox, log *zap.Logger) *OrderConsumer {
	return &OrderConsumer{
		inbox: inbox,
		log:   log,
		views: make(map[string]*OrderView),
	}
}

// Register suscribe el consumidor a los eventos de pedido en el bus.
func (c *OrderConsumer) Register(bus sharedBus.EventBus) {
	bus.Subscribe(orderDomain.OrderCreated, c.HandleEvent)
	bus.Subscribe(orderDomain.OrderConfirmed, c.HandleEvent)
	bus.Subscribe(orderDomain.OrderCancelled, c.HandleEvent)
}

// HandleEvent cumple el contrato de handler del bus.
func (c *OrderConsumer) HandleEvent(ctx context.Context, evt sharedEvents.Event) error {
	// Idempotencia: comprobar y registrar el id del evento antes de tocar la proyección.
	if c.inbox != nil {
		dup, err := c.inbox.Seen(ctx, evt.ID)
		if err != nil {
			return err
		}
		if dup {
			c.log.Info("Evento duplicado ignorado", zap.String("event_id", evt.ID.String()))
			return nil
		}
	}

	switch evt.Type {
	case orderDomain.OrderCreated:
		sharedUtils.UnmarshalAndHandle[orderDomain.OrderCreatedEvent](c.log, json.RawMessage(evt.Payload), func(e orderDomain.OrderCreatedEvent) {
			c.upsert(e.OrderID, func(v *OrderView) {
				v.CustomerID = e.CustomerID
				v.Amount = e.Amount
				v.Status = orderDomain.StatusPending
				v.UpdatedAt = evt.Timestamp
			})
		})
	case orderDomain.OrderConfirmed:
		sharedUtils.UnmarshalAndHandle[orderDomain.OrderConfirmedEvent](c.log, json.RawMessage(evt.Payload), func(e orderDomain.OrderConfirmedEvent) {
			c.upsert(e.OrderID, func(v *OrderView) {
				v.Status = orderDomain.StatusConfirmed
				v.UpdatedAt = evt.Timestamp
			})
		})
	case orderDomain.OrderCancelled:
		sharedUtils.UnmarshalAndHandle[orderDomain.OrderCancelledEvent](c.log, json.RawMessage(evt.Payload), func(e orderDomain.OrderCancelledEvent) {
			c.upsert(e.OrderID, func(v *OrderView) {
				v.Status = orderDomain.StatusCancelled
				v.UpdatedAt = evt.Timestamp
			})
		})
	default:
		c.log.Warn("Unknown event type", zap.String("type", evt.Type))
	}
	return nil
}

// GetView devuelve la proyección de un pedido, si existe.
func (c *OrderConsumer) GetView(orderID string) (OrderView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[orderID]
	if !ok {
		return OrderView{}, false
	}
	return *v, true
}

func (c *OrderConsumer) upsert(orderID string, mutate func(*OrderView)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[orderID]
	if !ok {
		v = &OrderView{OrderID: orderID}
		c.views[orderID] = v
	}
	mutate(v)
}
