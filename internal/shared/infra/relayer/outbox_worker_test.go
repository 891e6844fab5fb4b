package relayer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	orderDomain "github.com/davicafu/sagalab/internal/order/domain"
	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
	"github.com/davicafu/sagalab/tests/mocks"
)

func pendingEvent(eventType string, payload interface{}) sharedDomain.OutboxEvent {
	return sharedDomain.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   "o-1",
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestOutboxWorker_ProcessBatch(t *testing.T) {
	ctx := context.Background()
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)

	evt := pendingEvent(orderDomain.OrderCreated, map[string]interface{}{"order_id": "o-1"})

	// Configurar expectativas del mock
	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxEvent{evt}, nil).Once()
	repo.On("MarkOutboxProcessed", mock.Anything, evt.ID).Return(nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e sharedEvents.Event) bool {
		return e.Type == orderDomain.OrderCreated && e.AggregateID == "o-1"
	})).Return(nil).Once()

	worker := NewOutboxWorker(repo, publisher, orderDomain.NewEventRegistry(), 10*time.Millisecond, 10, zap.NewNop())

	// Ejecutar directamente un ciclo del worker
	worker.ProcessBatch(ctx)

	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestOutboxWorker_UnknownEventTypeStaysPending(t *testing.T) {
	ctx := context.Background()
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)

	evt := pendingEvent("order.inventado", nil)
	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxEvent{evt}, nil).Once()

	worker := NewOutboxWorker(repo, publisher, orderDomain.NewEventRegistry(), 10*time.Millisecond, 10, zap.NewNop())
	worker.ProcessBatch(ctx)

	// Ni se publica ni se marca: queda visible para diagnóstico.
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkOutboxProcessed", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestOutboxWorker_MalformedPayloadStaysPending(t *testing.T) {
	// Un payload suelto que no casa con el struct registrado no debe llegar
	// al bus: se detecta al decodificar contra el registro.
	ctx := context.Background()
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)

	evt := pendingEvent(orderDomain.OrderCreated, map[string]interface{}{"quantity": "dos"})
	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxEvent{evt}, nil).Once()

	worker := NewOutboxWorker(repo, publisher, orderDomain.NewEventRegistry(), 10*time.Millisecond, 10, zap.NewNop())
	worker.ProcessBatch(ctx)

	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkOutboxProcessed", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestOutboxWorker_PublishFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)

	evt := pendingEvent(orderDomain.OrderCreated, map[string]interface{}{"order_id": "o-1"})
	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxEvent{evt}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker caído")).Once()

	worker := NewOutboxWorker(repo, publisher, orderDomain.NewEventRegistry(), 10*time.Millisecond, 10, zap.NewNop())
	worker.ProcessBatch(ctx)

	// No se marca como procesado: lo reintentará el siguiente ciclo.
	repo.AssertNotCalled(t, "MarkOutboxProcessed", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestOutboxWorker_PreservesAggregateEnvelope(t *testing.T) {
	// Los eventos emitidos por agregados se encolan como sobre completo:
	// el worker debe publicarlos tal cual, sin regenerar id ni versión.
	ctx := context.Background()
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)

	envelope, err := sharedEvents.New(orderDomain.OrderCreated, "o-1", "order", map[string]string{"k": "v"}, 7)
	if err != nil {
		t.Fatal(err)
	}
	evt := pendingEvent(orderDomain.OrderCreated, envelope)

	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxEvent{evt}, nil).Once()
	repo.On("MarkOutboxProcessed", mock.Anything, evt.ID).Return(nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e sharedEvents.Event) bool {
		return e.ID == envelope.ID && e.Version == 7
	})).Return(nil).Once()

	worker := NewOutboxWorker(repo, publisher, orderDomain.NewEventRegistry(), 10*time.Millisecond, 10, zap.NewNop())
	worker.ProcessBatch(ctx)

	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}
