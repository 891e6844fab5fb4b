package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
	sharedBus "github.com/davicafu/sagalab/internal/shared/infra/platform/bus"
)

func busEvent(t *testing.T, eventType string) sharedEvents.Event {
	t.Helper()
	evt, err := sharedEvents.New(eventType, "o-1", "order", map[string]string{}, 1)
	require.NoError(t, err)
	return evt
}

func TestInMemoryEventBus_FanOutByType(t *testing.T) {
	// ARRANGE
	bus := NewInMemoryEventBus(zap.NewNop())
	var created, confirmed int

	bus.Subscribe("order.created", func(ctx context.Context, evt sharedEvents.Event) error {
		created++
		return nil
	})
	bus.Subscribe("order.created", func(ctx context.Context, evt sharedEvents.Event) error {
		created++
		return nil
	})
	bus.Subscribe("order.confirmed", func(ctx context.Context, evt sharedEvents.Event) error {
		confirmed++
		return nil
	})

	// ACT
	require.NoError(t, bus.Publish(context.Background(), busEvent(t, "order.created")))

	// ASSERT: ambos suscriptores del tipo reciben el evento, el otro tipo no.
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, confirmed)
}

func TestInMemoryEventBus_Wildcard(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	var all []string

	bus.Subscribe(sharedBus.Wildcard, func(ctx context.Context, evt sharedEvents.Event) error {
		all = append(all, evt.Type)
		return nil
	})

	require.NoError(t, bus.PublishBatch(context.Background(), []sharedEvents.Event{
		busEvent(t, "order.created"),
		busEvent(t, "saga.completed"),
	}))

	assert.Equal(t, []string{"order.created", "saga.completed"}, all)
}

func TestInMemoryEventBus_HandlerFailureDoesNotBlockOthers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	delivered := 0

	bus.Subscribe("order.created", func(ctx context.Context, evt sharedEvents.Event) error {
		return errors.New("handler roto")
	})
	bus.Subscribe("order.created", func(ctx context.Context, evt sharedEvents.Event) error {
		panic("handler con pánico")
	})
	bus.Subscribe("order.created", func(ctx context.Context, evt sharedEvents.Event) error {
		delivered++
		return nil
	})

	err := bus.Publish(context.Background(), busEvent(t, "order.created"))

	require.NoError(t, err, "la entrega es best-effort: el bus no propaga fallos de handlers")
	assert.Equal(t, 1, delivered)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	delivered := 0

	sub := bus.Subscribe("order.created", func(ctx context.Context, evt sharedEvents.Event) error {
		delivered++
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), busEvent(t, "order.created")))
	sub.Unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), busEvent(t, "order.created")))

	assert.Equal(t, 1, delivered, "tras darse de baja no llegan más eventos")
}

func TestTopicMapping_IsReversible(t *testing.T) {
	tests := []string{"order.created", "saga.step.completed", "saga.failed"}
	for _, eventType := range tests {
		topic := TopicForType(eventType)
		assert.Equal(t, TopicPrefix+eventType, topic)

		back, ok := TypeForTopic(topic)
		require.True(t, ok)
		assert.Equal(t, eventType, back)
	}

	_, ok := TypeForTopic("otro-servicio.order.created")
	assert.False(t, ok, "topics fuera del namespace no se mapean")
}
