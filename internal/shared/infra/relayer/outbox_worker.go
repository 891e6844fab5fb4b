package relayer

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
	sharedBus "github.com/davicafu/sagalab/internal/shared/infra/platform/bus"
)

// Worker procesa eventos pendientes de la tabla outbox de forma genérica y
// los reenvía al bus de eventos. La entrega es at-least-once: si publicar
// falla, la entrada queda pendiente y se reintenta en el siguiente ciclo.
type Worker struct {
	repo          sharedDomain.OutboxRepository
	publisher     sharedBus.EventPublisher
	eventRegistry map[string]sharedEvents.EventMetadata
	interval      time.Duration
	batchSize     int
	log           *zap.Logger
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	publisher sharedBus.EventPublisher,
	registry map[string]sharedEvents.EventMetadata,
	interval time.Duration,
	batchSize int,
	log *zap.Logger,
) *Worker {
	return &Worker{
		repo:          repo,
		publisher:     publisher,
		eventRegistry: registry,
		interval:      interval,
		batchSize:     batchSize,
		log:           log,
	}
}

// Start inicia el bucle de polling del worker.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("🚀 Outbox worker iniciado", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Outbox worker detenido.")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

func (w *Worker) ProcessBatch(ctx context.Context) {
	events, err := w.repo.FetchPendingOutbox(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("⚠️ Error al obtener eventos pendientes", zap.Error(err))
		return
	}
	if len(events) > 0 {
		w.log.Info(fmt.Sprintf("📬 %d eventos encontrados para procesar", len(events)))
	}

	for _, evt := range events {
		w.publishAndMark(ctx, evt)
	}
}

func (w *Worker) publishAndMark(ctx context.Context, evt sharedDomain.OutboxEvent) {
	// 1. Comprobar que el tipo de evento está registrado (el registro fija el
	// topic y el struct del payload para los consumidores).
	metadata, ok := w.eventRegistry[evt.EventType]
	if !ok {
		w.log.Error("Tipo de evento desconocido en registro", zap.String("event_type", evt.EventType))
		// No se marca como procesado: queda visible para diagnóstico.
		return
	}

	domainEvent, err := toDomainEvent(evt, metadata)
	if err != nil {
		w.log.Error("Error al decodificar payload del evento",
			zap.String("event_id", evt.ID.String()), zap.Error(err))
		return
	}

	// 2. Publicar el sobre completo en el bus.
	if err := w.publisher.Publish(ctx, domainEvent); err != nil {
		w.log.Warn("⚠️ No se pudo publicar evento",
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
		return // No lo marcamos como procesado para que se reintente
	}

	// 3. Marcar como procesado en la DB.
	if err := w.repo.MarkOutboxProcessed(ctx, evt.ID); err != nil {
		w.log.Warn("⚠️ No se pudo marcar evento como procesado",
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
	} else {
		w.log.Info("✅ Evento publicado y marcado", zap.String("event_id", evt.ID.String()))
	}
}

// toDomainEvent reconstruye el sobre de evento de dominio a partir de la
// entrada del outbox. Si el payload ya era un sobre completo (eventos emitidos
// por agregados) se respeta tal cual; un payload suelto se valida contra el
// struct registrado antes de envolverlo.
func toDomainEvent(evt sharedDomain.OutboxEvent, metadata sharedEvents.EventMetadata) (sharedEvents.Event, error) {
	payloadBytes, err := json.Marshal(evt.Payload)
	if err != nil {
		return sharedEvents.Event{}, err
	}

	var envelope sharedEvents.Event
	if err := json.Unmarshal(payloadBytes, &envelope); err == nil && envelope.Type != "" {
		return envelope, nil
	}

	target := reflect.New(metadata.Type).Interface()
	if err := json.Unmarshal(payloadBytes, target); err != nil {
		return sharedEvents.Event{}, fmt.Errorf("payload does not match registered type %s: %w", metadata.Type.Name(), err)
	}

	return sharedEvents.Event{
		ID:            evt.ID,
		Type:          evt.EventType,
		AggregateID:   evt.AggregateID,
		AggregateType: evt.AggregateType,
		Payload:       payloadBytes,
		Timestamp:     evt.CreatedAt,
	}, nil
}
