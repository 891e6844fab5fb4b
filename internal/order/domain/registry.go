package domain

import (
	"reflect"

	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
)

// Las constantes de los tipos de evento se definen aquí, como valores string.
const (
	OrderCreated   = "order.created"
	OrderConfirmed = "order.confirmed"
	OrderCancelled = "order.cancelled"
)

const OrderTopic = "order"

func NewEventRegistry() map[string]sharedEvents.EventMetadata {
	return map[string]sharedEvents.EventMetadata{
		OrderCreated: {
			Type:  reflect.TypeOf(OrderCreatedEvent{}),
			Topic: OrderTopic,
		},
		OrderConfirmed: {
			Type:  reflect.TypeOf(OrderConfirmedEvent{}),
			Topic: OrderTopic,
		},
		OrderCancelled: {
			Type:  reflect.TypeOf(OrderCancelledEvent{}),
			Topic: OrderTopic,
		},
	}
}
