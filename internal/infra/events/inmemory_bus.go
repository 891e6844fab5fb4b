package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
	sharedBus "github.com/davicafu/sagalab/internal/shared/infra/platform/bus"
)

// InMemoryEventBus implementa un bus de eventos por tipo dentro del proceso.
// La entrega es síncrona y best-effort: el error (o panic) de un handler se
// loguea y no impide la entrega al resto.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[string]map[int]sharedBus.Handler // tipo de evento -> token -> handler
	nextID   int
	log      *zap.Logger
}

// Verifica en tiempo de compilación que cumple la interfaz.
var _ sharedBus.EventBus = (*InMemoryEventBus)(nil)

func NewInMemoryEventBus(log *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		handlers: make(map[string]map[int]sharedBus.Handler),
		log:      log,
	}
}

type subscription struct {
	bus       *InMemoryEventBus
	eventType string
	id        int
}

func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if hs, ok := s.bus.handlers[s.eventType]; ok {
		delete(hs, s.id)
	}
}

// Subscribe registra un handler para un tipo de evento concreto o para
// bus.Wildcard. Devuelve el token para darse de baja.
func (b *InMemoryEventBus) Subscribe(eventType string, h sharedBus.Handler) sharedBus.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int]sharedBus.Handler)
	}
	b.nextID++
	b.handlers[eventType][b.nextID] = h
	return &subscription{bus: b, eventType: eventType, id: b.nextID}
}

// Publish entrega el evento a los handlers de su tipo más los wildcard.
func (b *InMemoryEventBus) Publish(ctx context.Context, evt sharedEvents.Event) error {
	b.mu.RLock()
	var targets []sharedBus.Handler
	for _, h := range b.handlers[evt.Type] {
		targets = append(targets, h)
	}
	for _, h := range b.handlers[sharedBus.Wildcard] {
		targets = append(targets, h)
	}
	b.mu.RUnlock()

	for _, h := range targets {
		b.dispatch(ctx, h, evt)
	}
	return nil
}

// PublishBatch publica secuencialmente preservando el orden.
func (b *InMemoryEventBus) PublishBatch(ctx context.Context, evts []sharedEvents.Event) error {
	for _, evt := range evts {
		if err := b.Publish(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// dispatch aísla cada handler: su error o panic no afecta a los demás.
func (b *InMemoryEventBus) dispatch(ctx context.Context, h sharedBus.Handler, evt sharedEvents.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("⚠️ Handler panicked",
				zap.String("event_type", evt.Type),
				zap.String("event_id", evt.ID.String()),
				zap.Any("panic", r),
			)
		}
	}()

	if err := h(ctx, evt); err != nil {
		b.log.Warn("⚠️ Handler failed",
			zap.String("event_type", evt.Type),
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
	}
}
