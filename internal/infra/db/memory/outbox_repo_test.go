package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
)

func enqueueN(t *testing.T, repo *OutboxRepoMemory, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, repo.Enqueue(context.Background(), sharedDomain.OutboxEvent{
			ID:            id,
			AggregateType: "order",
			AggregateID:   fmt.Sprintf("o-%d", i),
			EventType:     "order.created",
			Payload:       map[string]interface{}{"seq": i},
			CreatedAt:     time.Now().UTC(),
		}))
	}
	return ids
}

func TestOutboxRepoMemory_FetchAndMark(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepoMemory()
	ids := enqueueN(t, repo, 3)

	pending, err := repo.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, ids[0], pending[0].ID, "fetch respeta el orden de encolado")

	require.NoError(t, repo.MarkOutboxProcessed(ctx, ids[1]))

	pending, err = repo.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)
	assert.Equal(t, ids[2], pending[1].ID)

	assert.Error(t, repo.MarkOutboxProcessed(ctx, uuid.New()), "marcar un id inexistente falla")
}

func TestOutboxRepoMemory_DrainBatches(t *testing.T) {
	// Drain entrega lotes FIFO y marca en la misma operación: tres drenados
	// consecutivos agotan la cola sin repetir entradas.
	ctx := context.Background()
	repo := NewOutboxRepoMemory()
	ids := enqueueN(t, repo, 120)

	var drained []uuid.UUID
	for _, expected := range []int{50, 50, 20} {
		batch, err := repo.Drain(ctx, 50)
		require.NoError(t, err)
		require.Len(t, batch, expected)
		for _, evt := range batch {
			drained = append(drained, evt.ID)
		}
	}

	assert.Equal(t, ids, drained, "el orden global de drenado es el de encolado")

	batch, err := repo.Drain(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, batch)

	pending, err := repo.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInboxMemory_SeenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	inbox := NewInboxMemory()
	id := uuid.New()

	seen, err := inbox.Seen(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen, "la primera vez se procesa")

	seen, err = inbox.Seen(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen, "la segunda vez es un duplicado")

	seen, err = inbox.Seen(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, seen, "otro id no se ve afectado")
}
