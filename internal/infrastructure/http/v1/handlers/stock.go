package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/registers/stock"
	"docflow/internal/infrastructure/http/v1/dto"
)

// StockHandler exposes the stock ledger.
type StockHandler struct {
	*BaseHandler
	ledger *stock.Ledger
}

// NewStockHandler creates a StockHandler.
func NewStockHandler(base *BaseHandler, ledger *stock.Ledger) *StockHandler {
	return &StockHandler{BaseHandler: base, ledger: ledger}
}

type ledgerOp func(ctx context.Context, req dto.StockOperationRequest) (stock.Snapshot, error)

func (h *StockHandler) operation(op ledgerOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.StockOperationRequest
		if !h.BindJSON(c, &req) {
			return
		}
		snap, err := op(c.Request.Context(), req)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, snap)
	}
}

// Receive handles POST /stock/receive.
func (h *StockHandler) Receive() gin.HandlerFunc {
	return h.operation(func(ctx context.Context, r dto.StockOperationRequest) (stock.Snapshot, error) {
		return h.ledger.Receive(ctx, r.ProductID, r.WarehouseID, r.Quantity, r.Reference)
	})
}

// Reserve handles POST /stock/reserve.
func (h *StockHandler) Reserve() gin.HandlerFunc {
	return h.operation(func(ctx context.Context, r dto.StockOperationRequest) (stock.Snapshot, error) {
		return h.ledger.Reserve(ctx, r.ProductID, r.WarehouseID, r.Quantity, r.Reference)
	})
}

// Release handles POST /stock/release.
func (h *StockHandler) Release() gin.HandlerFunc {
	return h.operation(func(ctx context.Context, r dto.StockOperationRequest) (stock.Snapshot, error) {
		return h.ledger.Release(ctx, r.ProductID, r.WarehouseID, r.Quantity, r.Reference)
	})
}

// Adjust handles POST /stock/adjust. Quantity is a signed delta.
func (h *StockHandler) Adjust() gin.HandlerFunc {
	return h.operation(func(ctx context.Context, r dto.StockOperationRequest) (stock.Snapshot, error) {
		return h.ledger.Adjust(ctx, r.ProductID, r.WarehouseID, r.Quantity, r.Reason, r.Reference)
	})
}

// Damage handles POST /stock/damage.
func (h *StockHandler) Damage() gin.HandlerFunc {
	return h.operation(func(ctx context.Context, r dto.StockOperationRequest) (stock.Snapshot, error) {
		return h.ledger.ReportDamage(ctx, r.ProductID, r.WarehouseID, r.Quantity, r.Reason, r.Reference)
	})
}

// CommitShipment handles POST /stock/commit-shipment.
func (h *StockHandler) CommitShipment() gin.HandlerFunc {
	return h.operation(func(ctx context.Context, r dto.StockOperationRequest) (stock.Snapshot, error) {
		return h.ledger.CommitShipment(ctx, r.ProductID, r.WarehouseID, r.Quantity, r.Reference)
	})
}

// Reconcile handles POST /stock/reconcile.
func (h *StockHandler) Reconcile(c *gin.Context) {
	var req dto.StockKeyRequest
	if !h.BindJSON(c, &req) {
		return
	}
	drift, err := h.ledger.Reconcile(c.Request.Context(), req.ProductID, req.WarehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDrift(drift))
}

// Get handles GET /stock?product_id=&warehouse_id=.
func (h *StockHandler) Get(c *gin.Context) {
	productID, ok := h.QueryID(c, "product_id")
	if !ok {
		return
	}
	warehouseID, ok := h.QueryID(c, "warehouse_id")
	if !ok {
		return
	}
	if productID == nil || warehouseID == nil {
		h.Error(c, apperror.NewValidation("product_id and warehouse_id are required"))
		return
	}
	snap, err := h.ledger.Get(c.Request.Context(), *productID, *warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, snap)
}

// ListByWarehouse handles GET /stock/warehouses/:id.
func (h *StockHandler) ListByWarehouse(c *gin.Context) {
	warehouseID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	limit, offset := h.Page(c)
	filter := stock.BalanceFilter{
		ExcludeZero: c.Query("exclude_zero") == "true",
		Limit:       limit,
		Offset:      offset,
	}
	for _, raw := range c.QueryArray("product_id") {
		pid, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid product_id").WithDetail("value", raw))
			return
		}
		filter.ProductIDs = append(filter.ProductIDs, pid)
	}

	items, err := h.ledger.ListByWarehouse(c.Request.Context(), warehouseID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, limit, offset))
}

// Movements handles GET /stock/movements.
func (h *StockHandler) Movements(c *gin.Context) {
	limit, offset := h.Page(c)
	filter := stock.MovementFilter{Limit: limit, Offset: offset}

	var ok bool
	if filter.ProductID, ok = h.QueryID(c, "product_id"); !ok {
		return
	}
	if filter.WarehouseID, ok = h.QueryID(c, "warehouse_id"); !ok {
		return
	}
	if filter.ReferenceID, ok = h.QueryID(c, "reference_id"); !ok {
		return
	}
	if raw := c.Query("type"); raw != "" {
		mt := stock.MovementType(raw)
		filter.Type = &mt
	}
	if filter.From, ok = h.queryTime(c, "from"); !ok {
		return
	}
	if filter.To, ok = h.queryTime(c, "to"); !ok {
		return
	}

	items, err := h.ledger.Movements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, limit, offset))
}

func (h *StockHandler) queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid "+name+", expected RFC3339").WithDetail("field", name))
		return nil, false
	}
	return &t, true
}
