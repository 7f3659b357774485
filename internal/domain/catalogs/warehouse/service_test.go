package warehouse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/infrastructure/storage/memory"
)

func TestService_CreateAndResolveCode(t *testing.T) {
	ctx := context.Background()
	svc := warehouse.NewService(memory.New().Warehouses())

	w := warehouse.New(" jkt ", "Jakarta", warehouse.TypeMain)
	require.NoError(t, svc.Create(ctx, w))
	assert.Equal(t, "JKT", w.Code)

	code, err := svc.CodeOf(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "JKT", code)

	_, err = svc.CodeOf(ctx, id.New())
	assert.True(t, apperror.IsNotFound(err))

	err = svc.Create(ctx, warehouse.New("JKT", "Jakarta 2", warehouse.TypeRetail))
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := warehouse.NewService(memory.New().Warehouses())

	cases := map[string]*warehouse.Warehouse{
		"reserved code": warehouse.New("GEN", "General", warehouse.TypeMain),
		"too short":     warehouse.New("JK", "Jakarta", warehouse.TypeMain),
		"too long":      warehouse.New("JAKAR", "Jakarta", warehouse.TypeMain),
		"digits":        warehouse.New("JK1", "Jakarta", warehouse.TypeMain),
		"no name":       warehouse.New("JKT", " ", warehouse.TypeMain),
		"bad type":      warehouse.New("JKT", "Jakarta", "depot"),
	}
	for name, w := range cases {
		assert.True(t, apperror.HasCode(svc.Create(ctx, w), apperror.CodeValidation), name)
	}
}

func TestService_DeactivateAndList(t *testing.T) {
	ctx := context.Background()
	svc := warehouse.NewService(memory.New().Warehouses())

	sby := warehouse.New("SBY", "Surabaya", warehouse.TypeDistribution)
	jkt := warehouse.New("JKT", "Jakarta", warehouse.TypeMain)
	require.NoError(t, svc.Create(ctx, sby))
	require.NoError(t, svc.Create(ctx, jkt))

	require.NoError(t, svc.Deactivate(ctx, sby.ID))
	_, err := svc.RequireActive(ctx, sby.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "JKT", all[0].Code)

	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, jkt.ID, active[0].ID)

	// Deactivated warehouses keep resolving for numbers already issued.
	code, err := svc.CodeOf(ctx, sby.ID)
	require.NoError(t, err)
	assert.Equal(t, "SBY", code)
}
