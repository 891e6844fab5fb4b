package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
)

// MockOutboxRepository simula la tabla outbox
type MockOutboxRepository struct {
	mock.Mock
}

var _ sharedDomain.OutboxRepository = (*MockOutboxRepository)(nil)

func (m *MockOutboxRepository) Enqueue(ctx context.Context, evt sharedDomain.OutboxEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockOutboxRepository) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]sharedDomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) Drain(ctx context.Context, batch int) ([]sharedDomain.OutboxEvent, error) {
	args := m.Called(ctx, batch)
	return args.Get(0).([]sharedDomain.OutboxEvent), args.Error(1)
}

// MockPublisher simula un publisher del bus de eventos
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evt sharedEvents.Event) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

// MockInbox simula el registro de eventos ya vistos
type MockInbox struct {
	mock.Mock
}

var _ sharedDomain.Inbox = (*MockInbox)(nil)

func (m *MockInbox) Seen(ctx context.Context, eventID uuid.UUID) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}
