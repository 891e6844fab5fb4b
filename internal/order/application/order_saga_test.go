package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	dbMemory "github.com/davicafu/sagalab/internal/infra/db/memory"
	esMemory "github.com/davicafu/sagalab/internal/infra/eventstore/memory"
	orderDomain "github.com/davicafu/sagalab/internal/order/domain"
	orderServices "github.com/davicafu/sagalab/internal/order/infra/outbound/services"
	sagaApp "github.com/davicafu/sagalab/internal/saga/application"
	sagaDomain "github.com/davicafu/sagalab/internal/saga/domain"
	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedCache "github.com/davicafu/sagalab/internal/shared/infra/platform/cache"
)

type sagaFixture struct {
	orchestrator *sagaApp.Orchestrator
	orders       *OrderService
	inventory    *orderServices.InventoryServiceMemory
	payment      *orderServices.PaymentServiceMemory
	outbox       *dbMemory.OutboxRepoMemory
}

// newSagaFixture monta la saga de creación de pedido contra implementaciones
// en memoria, con el stock y el saldo indicados.
func newSagaFixture(t *testing.T, stock int, balance float64) sagaFixture {
	t.Helper()
	log := zap.NewNop()

	store := esMemory.NewEventStoreMemory()
	outbox := dbMemory.NewOutboxRepoMemory()
	cache := sharedCache.NewInMemoryCache(time.Minute, time.Minute)
	t.Cleanup(cache.Stop)
	orders := NewOrderService(sharedDomain.NewRepository(store), cache, outbox, log)
	inventory := orderServices.NewInventoryServiceMemory(stock, log)
	payment := orderServices.NewPaymentServiceMemory(balance, log)

	orchestrator := sagaApp.NewOrchestrator(sagaApp.NewState(), log, sagaApp.WithOutbox(outbox))
	require.NoError(t, orchestrator.RegisterSaga(BuildOrderCreationSaga(orders, inventory, payment)))

	return sagaFixture{
		orchestrator: orchestrator,
		orders:       orders,
		inventory:    inventory,
		payment:      payment,
		outbox:       outbox,
	}
}

func (f sagaFixture) start(t *testing.T, orderID string, quantity int, amount float64) sagaDomain.Instance {
	t.Helper()
	id, err := f.orchestrator.StartSaga(context.Background(), OrderCreationSagaID, sagaDomain.Context{
		CtxOrderID:    orderID,
		CtxCustomerID: "c-1",
		CtxQuantity:   quantity,
		CtxAmount:     amount,
	})
	require.NoError(t, err)

	var snap sagaDomain.Instance
	require.Eventually(t, func() bool {
		s, err := f.orchestrator.GetSagaStatus(id)
		if err != nil {
			return false
		}
		snap = s
		return s.Finished()
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func TestOrderCreationSaga_HappyPath(t *testing.T) {
	// ARRANGE
	f := newSagaFixture(t, 10, 1000)

	// ACT
	snap := f.start(t, "o-1", 2, 100)

	// ASSERT
	assert.Equal(t, sagaDomain.StatusCompleted, snap.Status)

	order, err := f.orders.GetOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, orderDomain.StatusConfirmed, order.Status)
	assert.NotEmpty(t, order.PaymentID)
	assert.Equal(t, 8, f.inventory.Stock(), "el stock reservado no se devuelve")
}

func TestOrderCreationSaga_InsufficientFundsCompensates(t *testing.T) {
	// ARRANGE: saldo insuficiente hace fallar create-payment tras agotar los
	// reintentos; los pasos anteriores se deshacen en orden inverso.
	f := newSagaFixture(t, 10, 50)

	// ACT
	snap := f.start(t, "o-1", 2, 100)

	// ASSERT
	assert.Equal(t, sagaDomain.StatusFailed, snap.Status)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "create-payment", snap.Error.Step)
	assert.Contains(t, snap.Error.Message, orderDomain.ErrInsufficientFunds.Error())

	// reserve-inventory se deshizo: el stock vuelve a su valor inicial.
	assert.Equal(t, 10, f.inventory.Stock())

	// validate-order se deshizo: el pedido queda cancelado.
	order, err := f.orders.GetOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, orderDomain.StatusCancelled, order.Status)
	assert.Empty(t, order.PaymentID, "confirm-order nunca llegó a ejecutarse")
}

func TestOrderCreationSaga_OutOfStockCompensates(t *testing.T) {
	// ARRANGE: sin stock falla reserve-inventory; solo validate-order se deshace.
	f := newSagaFixture(t, 1, 1000)

	// ACT
	snap := f.start(t, "o-1", 5, 100)

	// ASSERT
	assert.Equal(t, sagaDomain.StatusFailed, snap.Status)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "reserve-inventory", snap.Error.Step)

	order, err := f.orders.GetOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, orderDomain.StatusCancelled, order.Status)
	assert.Equal(t, 1, f.inventory.Stock())
}

func TestOrderCreationSaga_InvalidContextFailsFirstStep(t *testing.T) {
	// ARRANGE
	f := newSagaFixture(t, 10, 1000)

	// ACT: sin order_id la saga falla en validate-order sin nada que compensar.
	id, err := f.orchestrator.StartSaga(context.Background(), OrderCreationSagaID, sagaDomain.Context{
		CtxCustomerID: "c-1",
		CtxQuantity:   1,
		CtxAmount:     10.0,
	})
	require.NoError(t, err)

	var snap sagaDomain.Instance
	require.Eventually(t, func() bool {
		s, err := f.orchestrator.GetSagaStatus(id)
		if err != nil {
			return false
		}
		snap = s
		return s.Finished()
	}, 5*time.Second, 10*time.Millisecond)

	// ASSERT
	assert.Equal(t, sagaDomain.StatusFailed, snap.Status)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "validate-order", snap.Error.Step)
	assert.Empty(t, snap.Completed)
}

func TestOrderCreationSaga_EmitsDomainAndLifecycleEvents(t *testing.T) {
	// ARRANGE
	f := newSagaFixture(t, 10, 1000)

	// ACT
	snap := f.start(t, "o-1", 1, 10)
	require.Equal(t, sagaDomain.StatusCompleted, snap.Status)

	// ASSERT: el outbox contiene tanto los eventos de dominio del pedido como
	// los de ciclo de vida de la saga.
	pending, err := f.outbox.FetchPendingOutbox(context.Background(), 100)
	require.NoError(t, err)

	types := make(map[string]int)
	for _, evt := range pending {
		types[evt.EventType]++
	}
	assert.Equal(t, 1, types[orderDomain.OrderCreated])
	assert.Equal(t, 1, types[orderDomain.OrderConfirmed])
	assert.Equal(t, 1, types[sagaDomain.SagaStarted])
	assert.Equal(t, 1, types[sagaDomain.SagaCompleted])
	assert.Equal(t, 4, types[sagaDomain.SagaStepCompleted])
}
