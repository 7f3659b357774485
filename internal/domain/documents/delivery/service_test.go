package delivery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	appctx "docflow/internal/core/context"
	"docflow/internal/core/id"
	"docflow/internal/core/numerator"
	"docflow/internal/core/types"
	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/domain/documents/delivery"
	"docflow/internal/domain/registers/stock"
	"docflow/internal/infrastructure/storage/memory"
)

type env struct {
	ctx     context.Context
	store   *memory.Store
	ledger  *stock.Ledger
	service *delivery.Service
	jkt     *warehouse.Warehouse
	apples  id.ID
	pears   id.ID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := appctx.WithActor(context.Background(), &appctx.Actor{UserID: "dispatcher"})
	store := memory.New()
	warehouses := warehouse.NewService(store.Warehouses())
	jkt := warehouse.New("JKT", "Jakarta", warehouse.TypeMain)
	require.NoError(t, warehouses.Create(ctx, jkt))

	clock := func() time.Time { return time.Date(2025, time.November, 3, 8, 0, 0, 0, time.UTC) }
	numbers := numerator.NewAllocator(store.Sequencer(), warehouses, numerator.WithClock(clock))
	ledger := stock.NewLedger(store.Stock(), store.TxManager())

	e := &env{
		ctx:     ctx,
		store:   store,
		ledger:  ledger,
		service: delivery.NewService(store.Deliveries(), store.Deliveries(), ledger, numbers, warehouses, store.Audit(), store.TxManager()),
		jkt:     jkt,
		apples:  id.New(),
		pears:   id.New(),
	}
	for _, p := range []id.ID{e.apples, e.pears} {
		_, err := ledger.Receive(ctx, p, jkt.ID, types.Units(100), stock.Reference{Type: "seed"})
		require.NoError(t, err)
	}
	return e
}

func (e *env) create(t *testing.T, reserve bool) *delivery.Order {
	t.Helper()
	o, err := e.service.Create(e.ctx, delivery.CreateInput{
		WarehouseID:     e.jkt.ID,
		ShippingAddress: "Jl. Sudirman 1",
		Items: []delivery.Line{
			{ProductID: e.apples, Quantity: types.Units(10)},
			{ProductID: e.pears, Quantity: types.Units(4)},
		},
		ReserveStock: reserve,
	})
	require.NoError(t, err)
	return o
}

func (e *env) readyToShip(t *testing.T, o *delivery.Order) {
	t.Helper()
	pl, err := e.service.CreatePickingList(e.ctx, e.jkt.ID)
	require.NoError(t, err)
	_, err = e.service.AttachPickingList(e.ctx, o.ID, pl.ID)
	require.NoError(t, err)
	_, err = e.service.SetPickingStatus(e.ctx, pl.ID, delivery.PickingCompleted)
	require.NoError(t, err)
	_, err = e.service.MarkReady(e.ctx, o.ID)
	require.NoError(t, err)
}

func (e *env) balance(t *testing.T, product id.ID) stock.Snapshot {
	t.Helper()
	snap, err := e.ledger.Get(e.ctx, product, e.jkt.ID)
	require.NoError(t, err)
	return snap
}

func TestDelivery_FullFlow(t *testing.T) {
	e := newEnv(t)

	o := e.create(t, true)
	assert.Equal(t, "DO-001/JKT/11-2025", o.Number)
	assert.Equal(t, delivery.StatusPreparing, o.Status)
	assert.Equal(t, types.Units(10), e.balance(t, e.apples).ReservedQuantity)
	assert.Equal(t, types.Units(4), e.balance(t, e.pears).ReservedQuantity)

	e.readyToShip(t, o)

	shipped, err := e.service.Ship(e.ctx, o.ID, nil, &delivery.Shipping{Method: "courier", Carrier: "JNE", TrackingNumber: "JNE123"})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusShipped, shipped.Status)
	require.NotNil(t, shipped.ShippedAt)
	apples := e.balance(t, e.apples)
	assert.Equal(t, types.Units(90), apples.Quantity)
	assert.Equal(t, types.Units(0), apples.ReservedQuantity)

	delivered, err := e.service.Deliver(e.ctx, o.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusDelivered, delivered.Status)
	for _, it := range delivered.Items {
		assert.Equal(t, delivery.ItemDelivered, it.Status)
		assert.Equal(t, it.Quantity, it.QuantityDelivered)
	}
	assert.Equal(t, types.Units(90), e.balance(t, e.apples).Quantity, "delivery moves no stock")

	for _, p := range []id.ID{e.apples, e.pears} {
		drift, err := e.ledger.Reconcile(e.ctx, p, e.jkt.ID)
		require.NoError(t, err)
		assert.True(t, drift.Consistent())
	}
}

func TestDelivery_PartialShipmentReleasesRemainder(t *testing.T) {
	e := newEnv(t)
	o := e.create(t, true)
	e.readyToShip(t, o)

	_, err := e.service.Ship(e.ctx, o.ID, []delivery.Line{
		{ProductID: e.apples, Quantity: types.Units(6)},
		{ProductID: e.pears, Quantity: types.Units(4)},
	}, &delivery.Shipping{Method: "pickup"})
	require.NoError(t, err)

	apples := e.balance(t, e.apples)
	assert.Equal(t, types.Units(94), apples.Quantity)
	assert.Equal(t, types.Units(0), apples.ReservedQuantity)
	assert.Equal(t, types.Units(94), apples.AvailableQuantity)

	delivered, err := e.service.Deliver(e.ctx, o.ID, []delivery.Line{
		{ProductID: e.apples, Quantity: types.Units(5)},
		{ProductID: e.pears, Quantity: types.Units(4)},
	})
	require.NoError(t, err)
	statuses := map[id.ID]delivery.ItemStatus{}
	for _, it := range delivered.Items {
		statuses[it.ProductID] = it.Status
	}
	assert.Equal(t, delivery.ItemPartial, statuses[e.apples])
	assert.Equal(t, delivery.ItemDelivered, statuses[e.pears])
}

func TestDelivery_ReadyRequiresCompletedPicking(t *testing.T) {
	e := newEnv(t)
	o := e.create(t, false)

	_, err := e.service.MarkReady(e.ctx, o.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "no picking list")

	pl, err := e.service.CreatePickingList(e.ctx, e.jkt.ID)
	require.NoError(t, err)
	assert.Equal(t, "PL-001/JKT/11-2025", pl.Number)
	_, err = e.service.AttachPickingList(e.ctx, o.ID, pl.ID)
	require.NoError(t, err)

	_, err = e.service.SetPickingStatus(e.ctx, pl.ID, delivery.PickingInProgress)
	require.NoError(t, err)
	_, err = e.service.MarkReady(e.ctx, o.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "picking in progress")

	done, err := e.service.SetPickingStatus(e.ctx, pl.ID, delivery.PickingCompleted)
	require.NoError(t, err)
	assert.NotNil(t, done.CompletedAt)
	_, err = e.service.SetPickingStatus(e.ctx, pl.ID, delivery.PickingPending)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	ready, err := e.service.MarkReady(e.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusReadyToShip, ready.Status)
}

func TestDelivery_ShipRequiresMethod(t *testing.T) {
	e := newEnv(t)
	o := e.create(t, true)
	e.readyToShip(t, o)

	_, err := e.service.Ship(e.ctx, o.ID, nil, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.Equal(t, types.Units(100), e.balance(t, e.apples).Quantity)

	_, err = e.service.SetShipping(e.ctx, o.ID, delivery.Shipping{Method: "truck"})
	require.NoError(t, err)
	shipped, err := e.service.Ship(e.ctx, o.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "truck", shipped.Shipping.Method)

	_, err = e.service.SetShipping(e.ctx, o.ID, delivery.Shipping{Method: "air"})
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))
}

func TestDelivery_ShipAgainstSalesOrderReservation(t *testing.T) {
	e := newEnv(t)

	o := e.create(t, false)
	assert.Equal(t, types.Units(0), e.balance(t, e.apples).ReservedQuantity)
	e.readyToShip(t, o)

	_, err := e.service.Ship(e.ctx, o.ID, nil, &delivery.Shipping{Method: "courier"})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock), "nothing reserved")

	ref := stock.Reference{Type: "sales_order", Number: "SO-001/JKT/11-2025"}
	_, err = e.ledger.Execute(e.ctx, ref,
		stock.Instruction{Op: stock.OpReserve, ProductID: e.apples, WarehouseID: e.jkt.ID, Quantity: types.Units(10)},
		stock.Instruction{Op: stock.OpReserve, ProductID: e.pears, WarehouseID: e.jkt.ID, Quantity: types.Units(4)},
	)
	require.NoError(t, err)

	_, err = e.service.Ship(e.ctx, o.ID, nil, &delivery.Shipping{Method: "courier"})
	require.NoError(t, err)
	assert.Equal(t, types.Units(90), e.balance(t, e.apples).Quantity)
	assert.Equal(t, types.Units(0), e.balance(t, e.apples).ReservedQuantity)
}

func TestDelivery_CancelReleasesOwnReservation(t *testing.T) {
	e := newEnv(t)

	own := e.create(t, true)
	cancelled, err := e.service.Cancel(e.ctx, own.ID, "customer withdrew")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCancelled, cancelled.Status)
	assert.Equal(t, types.Units(0), e.balance(t, e.apples).ReservedQuantity)
	assert.Equal(t, types.Units(100), e.balance(t, e.apples).AvailableQuantity)

	_, err = e.service.Cancel(e.ctx, own.ID, "again")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))
}

func TestDelivery_CannotCancelAfterShipping(t *testing.T) {
	e := newEnv(t)
	o := e.create(t, true)
	e.readyToShip(t, o)
	_, err := e.service.Ship(e.ctx, o.ID, nil, &delivery.Shipping{Method: "courier"})
	require.NoError(t, err)

	_, err = e.service.Cancel(e.ctx, o.ID, "late")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))
}

func TestDelivery_Delete(t *testing.T) {
	e := newEnv(t)

	reserved := e.create(t, true)
	err := e.service.Delete(e.ctx, reserved.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	plain := e.create(t, false)
	require.NoError(t, e.service.Delete(e.ctx, plain.ID))
	_, err = e.service.Get(e.ctx, plain.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestDelivery_CreateReservationFailureRollsBack(t *testing.T) {
	e := newEnv(t)

	_, err := e.service.Create(e.ctx, delivery.CreateInput{
		WarehouseID:     e.jkt.ID,
		ShippingAddress: "Jl. Sudirman 1",
		Items:           []delivery.Line{{ProductID: e.apples, Quantity: types.Units(101)}},
		ReserveStock:    true,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	// The number allocated inside the failed unit of work is reused.
	o := e.create(t, false)
	assert.Equal(t, "DO-001/JKT/11-2025", o.Number)
}

func TestDelivery_PickingListFromAnotherWarehouse(t *testing.T) {
	e := newEnv(t)
	bdg := warehouse.New("BDG", "Bandung", warehouse.TypeRetail)
	require.NoError(t, warehouse.NewService(e.store.Warehouses()).Create(e.ctx, bdg))

	pl, err := e.service.CreatePickingList(e.ctx, bdg.ID)
	require.NoError(t, err)
	o := e.create(t, false)

	_, err = e.service.AttachPickingList(e.ctx, o.ID, pl.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestDelivery_NumberFeedsReservationReference(t *testing.T) {
	e := newEnv(t)
	numbers := &numerator.MockGenerator{}
	svc := delivery.NewService(e.store.Deliveries(), e.store.Deliveries(), e.ledger, numbers,
		warehouse.NewService(e.store.Warehouses()), e.store.Audit(), e.store.TxManager())

	o, err := svc.Create(e.ctx, delivery.CreateInput{
		WarehouseID:     e.jkt.ID,
		ShippingAddress: "Jl. Sudirman 1",
		Items:           []delivery.Line{{ProductID: e.apples, Quantity: types.Units(3)}},
		ReserveStock:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "MOCK-001", o.Number)
	assert.Equal(t, 1, numbers.Calls())

	reserve := stock.MovementReserve
	movements, err := e.ledger.Movements(context.Background(), stock.MovementFilter{ReferenceID: &o.ID, Type: &reserve})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, "MOCK-001", movements[0].ReferenceNumber)
}

func TestDelivery_NumberingFailureCreatesNothing(t *testing.T) {
	e := newEnv(t)
	numbers := &numerator.MockGenerator{
		NextNumberFunc: func(context.Context, numerator.DocumentType, *id.ID) (string, error) {
			return "", apperror.NewContention(errors.New("sequence row locked"))
		},
	}
	svc := delivery.NewService(e.store.Deliveries(), e.store.Deliveries(), e.ledger, numbers,
		warehouse.NewService(e.store.Warehouses()), e.store.Audit(), e.store.TxManager())

	_, err := svc.Create(e.ctx, delivery.CreateInput{
		WarehouseID:     e.jkt.ID,
		ShippingAddress: "Jl. Sudirman 1",
		Items:           []delivery.Line{{ProductID: e.apples, Quantity: types.Units(3)}},
		ReserveStock:    true,
	})
	assert.True(t, apperror.IsRetryable(err), "got %v", err)

	orders, err := svc.List(e.ctx, delivery.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.True(t, e.balance(t, e.apples).ReservedQuantity.IsZero())
}

func TestDelivery_UnshippedLineStaysPending(t *testing.T) {
	e := newEnv(t)
	o := e.create(t, true)
	e.readyToShip(t, o)

	shipped, err := e.service.Ship(e.ctx, o.ID, []delivery.Line{
		{ProductID: e.apples, Quantity: types.Units(10)},
		{ProductID: e.pears, Quantity: types.Units(0)},
	}, &delivery.Shipping{Method: "courier"})
	require.NoError(t, err)

	statuses := map[id.ID]delivery.ItemStatus{}
	for _, it := range shipped.Items {
		statuses[it.ProductID] = it.Status
	}
	assert.Equal(t, delivery.ItemShipped, statuses[e.apples])
	assert.Equal(t, delivery.ItemPending, statuses[e.pears])
	assert.Equal(t, types.Units(100), e.balance(t, e.pears).Quantity, "pears never left the warehouse")
	assert.True(t, e.balance(t, e.pears).ReservedQuantity.IsZero(), "their reservation is released")

	delivered, err := e.service.Deliver(e.ctx, o.ID, nil)
	require.NoError(t, err)
	for _, it := range delivered.Items {
		statuses[it.ProductID] = it.Status
	}
	assert.Equal(t, delivery.ItemDelivered, statuses[e.apples])
	assert.Equal(t, delivery.ItemPending, statuses[e.pears])
}
