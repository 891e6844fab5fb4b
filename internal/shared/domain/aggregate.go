package domain

import (
	"context"

	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
)

// Applier actualiza el estado en memoria del agregado a partir de un evento.
type Applier interface {
	ApplyEvent(evt sharedEvents.Event) error
}

// Aggregate es el contrato que debe cumplir todo aggregate root event-sourced.
// El ciclo de vida típico:
//  1. Se construye vacío o se rehidrata con LoadFromHistory.
//  2. Los métodos de negocio validan invariantes y llaman a Emit.
//  3. El Repository persiste los eventos no confirmados y llama a ClearEvents.
//
// La instancia pertenece en exclusiva al código que procesa un comando;
// no se comparte entre peticiones concurrentes.
type Aggregate interface {
	Applier

	AggregateID() string
	AggregateType() string
	CurrentVersion() int
	setVersion(v int)

	UncommittedEvents() []sharedEvents.Event
	ClearEvents()
}

// BaseAggregate es el helper embebible que lleva id, versión, contexto de
// correlación y la lista de eventos no confirmados.
type BaseAggregate struct {
	id            string
	typ           string
	version       int
	correlationID string
	causationID   string
	uncommitted   []sharedEvents.Event
}

func NewBaseAggregate(id, aggregateType string) BaseAggregate {
	return BaseAggregate{id: id, typ: aggregateType}
}

func (b *BaseAggregate) AggregateID() string   { return b.id }
func (b *BaseAggregate) AggregateType() string { return b.typ }
func (b *BaseAggregate) CurrentVersion() int   { return b.version }
func (b *BaseAggregate) setVersion(v int)      { b.version = v }

// SetCorrelation fija el contexto de correlación que heredarán los eventos emitidos.
func (b *BaseAggregate) SetCorrelation(correlationID, causationID string) {
	b.correlationID = correlationID
	b.causationID = causationID
}

func (b *BaseAggregate) UncommittedEvents() []sharedEvents.Event {
	out := make([]sharedEvents.Event, len(b.uncommitted))
	copy(out, b.uncommitted)
	return out
}

func (b *BaseAggregate) ClearEvents() { b.uncommitted = nil }

// Emit incrementa la versión, construye el evento heredando el contexto de
// correlación, lo añade a la lista de no confirmados y lo aplica inmediatamente
// para que el estado en memoria y el histórico emitido nunca diverjan.
func (b *BaseAggregate) Emit(a Applier, eventType string, payload interface{}, meta *sharedEvents.Metadata) error {
	evt, err := sharedEvents.New(eventType, b.id, b.typ, payload, b.version+1)
	if err != nil {
		return err
	}
	if b.correlationID != "" {
		evt = evt.WithCorrelation(b.correlationID, b.causationID)
	}
	evt.Metadata = meta

	b.version++
	b.uncommitted = append(b.uncommitted, evt)
	return a.ApplyEvent(evt)
}

// LoadFromHistory rehidrata el agregado reproduciendo el histórico en orden,
// aplicando cada evento y avanzando la versión.
func (b *BaseAggregate) LoadFromHistory(a Applier, history []sharedEvents.Event) error {
	for _, evt := range history {
		if err := a.ApplyEvent(evt); err != nil {
			return err
		}
		b.version = evt.Version
	}
	return nil
}

// Repository persiste agregados contra el EventStore.
type Repository struct {
	store EventStore
}

func NewRepository(store EventStore) *Repository {
	return &Repository{store: store}
}

// Load carga el histórico del agregado y lo rehidrata.
// Devuelve ErrAggregateNotFound si no hay eventos.
func (r *Repository) Load(ctx context.Context, agg Aggregate) error {
	history, err := r.store.GetEvents(ctx, agg.AggregateID(), 0)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return ErrAggregateNotFound
	}
	for _, evt := range history {
		if err := agg.ApplyEvent(evt); err != nil {
			return err
		}
		agg.setVersion(evt.Version)
	}
	return nil
}

// Save añade al store los eventos no confirmados y los limpia.
// Es no-op si no hay nada pendiente: esta es la frontera de "commit"
// desde el punto de vista del agregado.
func (r *Repository) Save(ctx context.Context, agg Aggregate) error {
	pending := agg.UncommittedEvents()
	if len(pending) == 0 {
		return nil
	}
	if err := r.store.AppendBatch(ctx, pending); err != nil {
		return err
	}
	agg.ClearEvents()
	return nil
}
