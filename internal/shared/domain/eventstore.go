package domain

import (
	"context"
	"errors"
	"fmt"

	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
)

// ---------- Errores del event store ----------
var (
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrAggregateNotFound   = errors.New("aggregate not found")
)

// ConcurrencyError detalla un conflicto de concurrencia optimista:
// la versión del evento no es exactamente la última almacenada + 1.
type ConcurrencyError struct {
	AggregateID     string
	ExpectedVersion int
	ActualVersion   int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %s: expected version %d, got %d",
		e.AggregateID, e.ExpectedVersion, e.ActualVersion)
}

// Is permite que errors.Is(err, ErrConcurrencyConflict) funcione.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// EventStore define la persistencia append-only de eventos por agregado.
// La concurrencia se controla de forma optimista sobre la versión:
// cada evento debe llevar exactamente la última versión almacenada + 1.
// El store nunca reintenta por su cuenta; recargar y reintentar es
// responsabilidad del caller.
type EventStore interface {
	// Append añade un evento. Devuelve *ConcurrencyError si la versión no encaja.
	Append(ctx context.Context, evt sharedEvents.Event) error

	// AppendBatch añade varios eventos del mismo agregado de forma atómica.
	AppendBatch(ctx context.Context, evts []sharedEvents.Event) error

	// GetEvents devuelve los eventos del agregado con version >= fromVersion,
	// en orden ascendente de versión. fromVersion=0 devuelve el histórico completo.
	GetEvents(ctx context.Context, aggregateID string, fromVersion int) ([]sharedEvents.Event, error)

	// GetEventsByType devuelve hasta limit eventos de un tipo, en orden de inserción.
	GetEventsByType(ctx context.Context, eventType string, limit int) ([]sharedEvents.Event, error)

	// GetEventsByCorrelation devuelve todos los eventos de una operación de negocio
	// (trazado de sagas).
	GetEventsByCorrelation(ctx context.Context, correlationID string) ([]sharedEvents.Event, error)
}
