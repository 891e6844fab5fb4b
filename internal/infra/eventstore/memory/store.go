package memory

import (
	"context"
	"sync"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
)

// EventStoreMemory es un event store en memoria con concurrencia optimista.
// Pensado para tests y desarrollo local; la variante durable está en
// internal/infra/eventstore/sqlite.
type EventStoreMemory struct {
	mu      sync.RWMutex
	streams map[string][]sharedEvents.Event // aggregate_id -> eventos en orden de versión
	all     []sharedEvents.Event            // orden global de inserción
}

func NewEventStoreMemory() *EventStoreMemory {
	return &EventStoreMemory{
		streams: make(map[string][]sharedEvents.Event),
	}
}

func (s *EventStoreMemory) Append(ctx context.Context, evt sharedEvents.Event) error {
	return s.AppendBatch(ctx, []sharedEvents.Event{evt})
}

// AppendBatch valida todo el lote contra la última versión almacenada antes
// de escribir nada, para que el append sea atómico.
func (s *EventStoreMemory) AppendBatch(_ context.Context, evts []sharedEvents.Event) error {
	if len(evts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Validar versiones: cada evento debe ser exactamente última+1.
	last := make(map[string]int)
	for _, evt := range evts {
		cur, ok := last[evt.AggregateID]
		if !ok {
			cur = len(s.streams[evt.AggregateID])
		}
		if evt.Version != cur+1 {
			return &sharedDomain.ConcurrencyError{
				AggregateID:     evt.AggregateID,
				ExpectedVersion: cur + 1,
				ActualVersion:   evt.Version,
			}
		}
		last[evt.AggregateID] = evt.Version
	}

	// 2. Escribir.
	for _, evt := range evts {
		s.streams[evt.AggregateID] = append(s.streams[evt.AggregateID], evt)
		s.all = append(s.all, evt)
	}
	return nil
}

func (s *EventStoreMemory) GetEvents(_ context.Context, aggregateID string, fromVersion int) ([]sharedEvents.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []sharedEvents.Event
	for _, evt := range s.streams[aggregateID] {
		if evt.Version >= fromVersion {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (s *EventStoreMemory) GetEventsByType(_ context.Context, eventType string, limit int) ([]sharedEvents.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []sharedEvents.Event
	for _, evt := range s.all {
		if evt.Type != eventType {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *EventStoreMemory) GetEventsByCorrelation(_ context.Context, correlationID string) ([]sharedEvents.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []sharedEvents.Event
	for _, evt := range s.all {
		if evt.CorrelationID == correlationID {
			out = append(out, evt)
		}
	}
	return out, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.EventStore = (*EventStoreMemory)(nil)
