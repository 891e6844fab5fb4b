package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	dbSqlite "github.com/davicafu/sagalab/internal/infra/db/sqlite"
	esSqlite "github.com/davicafu/sagalab/internal/infra/eventstore/sqlite"
	orderDomain "github.com/davicafu/sagalab/internal/order/domain"
	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, esSqlite.InitSchema(db))
	require.NoError(t, dbSqlite.InitSchema(db))
	return db
}

func TestEventStoreSQLiteIntegration_AppendAndReplay(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := esSqlite.NewEventStoreSQLite(db)
	repo := sharedDomain.NewRepository(store)

	// Guardar un pedido con dos eventos.
	order := orderDomain.NewOrder("o-1")
	require.NoError(t, order.Create("c-1", 2, 50))
	require.NoError(t, order.Confirm("pay-1"))
	require.NoError(t, repo.Save(ctx, order))

	// Rehidratar desde SQLite.
	reloaded := orderDomain.NewOrder("o-1")
	require.NoError(t, repo.Load(ctx, reloaded))
	assert.Equal(t, orderDomain.StatusConfirmed, reloaded.Status)
	assert.Equal(t, "pay-1", reloaded.PaymentID)
	assert.Equal(t, 2, reloaded.CurrentVersion())

	// Inexistente.
	missing := orderDomain.NewOrder("no-existe")
	assert.ErrorIs(t, repo.Load(ctx, missing), sharedDomain.ErrAggregateNotFound)
}

func TestEventStoreSQLiteIntegration_ConcurrencyConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := esSqlite.NewEventStoreSQLite(db)

	evt, err := sharedEvents.New("order.created", "o-1", "order", map[string]string{}, 1)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, evt))

	// Dos escritores cargaron la versión 0: el segundo append con versión 1
	// debe fallar con conflicto.
	dup, err := sharedEvents.New("order.created", "o-1", "order", map[string]string{}, 1)
	require.NoError(t, err)

	err = store.Append(ctx, dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, sharedDomain.ErrConcurrencyConflict)

	var cerr *sharedDomain.ConcurrencyError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 2, cerr.ExpectedVersion)
}

func TestEventStoreSQLiteIntegration_QueryByTypeAndCorrelation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := esSqlite.NewEventStoreSQLite(db)

	for i := 1; i <= 3; i++ {
		evt, err := sharedEvents.New("order.created", fmt.Sprintf("o-%d", i), "order", map[string]string{}, 1)
		require.NoError(t, err)
		if i == 2 {
			evt = evt.WithCorrelation("saga-1", "")
		}
		require.NoError(t, store.Append(ctx, evt))
	}

	byType, err := store.GetEventsByType(ctx, "order.created", 2)
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	byCorr, err := store.GetEventsByCorrelation(ctx, "saga-1")
	require.NoError(t, err)
	require.Len(t, byCorr, 1)
	assert.Equal(t, "o-2", byCorr[0].AggregateID)
}

func TestOutboxSQLiteIntegration_EnqueueFetchMarkDrain(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := dbSqlite.NewOutboxRepoSQLite(db)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		evt := sharedDomain.OutboxEvent{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   fmt.Sprintf("o-%d", i),
			EventType:     "order.created",
			Payload:       map[string]interface{}{"seq": i},
			CreatedAt:     time.Now().UTC(),
		}
		ids = append(ids, evt.ID)
		require.NoError(t, repo.Enqueue(ctx, evt))
	}

	pending, err := repo.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 5)
	assert.Equal(t, ids[0], pending[0].ID, "orden FIFO por rowid")

	require.NoError(t, repo.MarkOutboxProcessed(ctx, ids[0]))
	assert.Error(t, repo.MarkOutboxProcessed(ctx, uuid.New()))

	// Drain marca y devuelve en la misma transacción.
	batch, err := repo.Drain(ctx, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, ids[1], batch[0].ID)

	batch, err = repo.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, batch, 1, "solo queda la última entrada")

	pending, err = repo.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxSQLiteIntegration_EnqueueTxFollowsBusinessTx(t *testing.T) {
	// El evento de integración vive o muere con la transacción de negocio
	// que lo produjo.
	db := setupTestDB(t)
	ctx := context.Background()
	repo := dbSqlite.NewOutboxRepoSQLite(db)

	newEvt := func(aggID string) sharedDomain.OutboxEvent {
		return sharedDomain.OutboxEvent{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   aggID,
			EventType:     "order.created",
			Payload:       map[string]interface{}{"order_id": aggID},
			CreatedAt:     time.Now().UTC(),
		}
	}

	// Rollback: el evento desaparece con el negocio.
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, dbSqlite.EnqueueTx(ctx, tx, newEvt("o-rollback")))
	require.NoError(t, tx.Rollback())

	pending, err := repo.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Commit: el evento queda pendiente para el relayer.
	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	committed := newEvt("o-commit")
	require.NoError(t, dbSqlite.EnqueueTx(ctx, tx, committed))
	require.NoError(t, tx.Commit())

	pending, err = repo.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, committed.ID, pending[0].ID)
}

func TestInboxSQLiteIntegration_Seen(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	inbox := dbSqlite.NewInboxSQLite(db)
	id := uuid.New()

	seen, err := inbox.Seen(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = inbox.Seen(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen)
}
