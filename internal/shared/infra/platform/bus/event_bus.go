package bus

import (
	"context"

	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
)

// Wildcard suscribe a todos los tipos de evento.
const Wildcard = "*"

// Handler procesa un evento entregado por el bus.
type Handler func(ctx context.Context, evt sharedEvents.Event) error

// Subscription representa una suscripción activa; Unsubscribe la retira.
// (En Go las funciones no son comparables, así que la baja se hace por
// token de suscripción en lugar de por handler.)
type Subscription interface {
	Unsubscribe()
}

// EventBus despacha eventos de dominio a los handlers suscritos.
// La semántica de topic/nombre y formato del payload la decides en los adapters.
type EventBus interface {
	// Publish entrega el evento a todos los handlers de su tipo más los
	// wildcard, best-effort: el error de un handler se loguea y no bloquea
	// la entrega al resto.
	Publish(ctx context.Context, evt sharedEvents.Event) error

	// PublishBatch publica secuencialmente preservando el orden.
	PublishBatch(ctx context.Context, evts []sharedEvents.Event) error

	// Subscribe registra un handler para un tipo de evento (o Wildcard).
	Subscribe(eventType string, h Handler) Subscription
}

// EventPublisher es el puerto mínimo de salida hacia un broker externo.
type EventPublisher interface {
	Publish(ctx context.Context, evt sharedEvents.Event) error
}
