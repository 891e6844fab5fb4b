package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent representa un evento pendiente de publicar en el broker.
// Se encola en la misma transacción lógica que el cambio de estado de
// negocio que lo produjo (write-ahead).
type OutboxEvent struct {
	ID            uuid.UUID   `json:"id"`
	AggregateType string      `json:"aggregate_type"` // ej. "order", "saga"
	AggregateID   string      `json:"aggregate_id"`
	EventType     string      `json:"event_type"` // ej. "order.created"
	Payload       interface{} `json:"payload"`    // JSON serializable
	CreatedAt     time.Time   `json:"created_at"`
	Processed     bool        `json:"processed"` // si ya se publicó
}

// OutboxRepository define el contrato para acceder a la tabla outbox.
// La entrega es at-least-once: una caída entre Drain y la publicación
// posterior se recupera releyendo lo pendiente, por eso Drain marca cada
// entrada de forma atómica al entregarla.
type OutboxRepository interface {
	// Enqueue añade el evento a la cola durable.
	Enqueue(ctx context.Context, evt OutboxEvent) error

	// FetchPendingOutbox obtiene los eventos no procesados, hasta un máximo.
	FetchPendingOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)

	// MarkOutboxProcessed marca un evento como procesado.
	MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error

	// Drain extrae hasta batch entradas en orden FIFO, marcándolas como
	// procesadas en la misma operación.
	Drain(ctx context.Context, batch int) ([]OutboxEvent, error)
}

// Inbox registra los ids de eventos ya vistos para hacer idempotente el
// consumo. Combinado con la entrega at-least-once del outbox, el efecto de
// negocio resultante es effectively-once.
type Inbox interface {
	// Seen comprueba y registra el id de forma atómica. Devuelve true si ya
	// estaba (duplicado: saltar), false la primera vez (procesar).
	Seen(ctx context.Context, eventID uuid.UUID) (bool, error)
}
