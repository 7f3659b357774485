package register_repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/registers/stock"
)

func TestMovementColumnsMatchValues(t *testing.T) {
	ref := id.New()
	m := stock.Movement{
		ID: id.New(), ProductID: id.New(), WarehouseID: id.New(),
		Type: stock.MovementIn, QuantityChange: types.Units(5), NewQuantity: types.Units(5),
		ActorID: "u1", ReferenceID: &ref, CreatedAt: time.Now(),
	}
	values := movementValues(m)
	require.Len(t, values, len(movementColumns))
	assert.Equal(t, "movement_type", movementColumns[3])
	assert.Equal(t, "IN", values[3])
	assert.Equal(t, int64(50000), values[4], "quantities are written as raw fixed-point integers")
	assert.Equal(t, "created_at", movementColumns[len(movementColumns)-1])
}

func TestBalancesQuery(t *testing.T) {
	r := NewStockRepo(nil)
	wh := id.New()

	sql, args, err := r.balancesQuery(wh, stock.BalanceFilter{ExcludeZero: true, Limit: 10, Offset: 20}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM product_stock WHERE warehouse_id = $1")
	assert.Contains(t, sql, "quantity <> 0 OR reserved_quantity <> 0")
	assert.Contains(t, sql, "ORDER BY product_id LIMIT 10 OFFSET 20")
	// squirrel.Eq resolves driver.Valuer, so UUIDs travel as strings.
	assert.Equal(t, []any{wh.String()}, args)
}

func TestMovementsQuery(t *testing.T) {
	r := NewStockRepo(nil)
	product := id.New()
	typ := stock.MovementReserve
	from := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := r.movementsQuery(stock.MovementFilter{ProductID: &product, Type: &typ, From: &from}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM stock_movements WHERE product_id = $1 AND movement_type = $2 AND created_at >= $3")
	assert.Contains(t, sql, "ORDER BY created_at, id")
	assert.Equal(t, []any{product.String(), "RESERVE", from}, args)
}

func TestLockRequiresTransaction(t *testing.T) {
	r := NewStockRepo(nil)
	_, err := r.Lock(context.Background(), stock.Key{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires transaction")
}
