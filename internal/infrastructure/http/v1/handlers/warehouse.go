package handlers

import (
	"github.com/gin-gonic/gin"

	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/infrastructure/http/v1/dto"
)

// WarehouseHandler manages the warehouse directory.
type WarehouseHandler struct {
	*BaseHandler
	service *warehouse.Service
}

// NewWarehouseHandler creates a WarehouseHandler.
func NewWarehouseHandler(base *BaseHandler, service *warehouse.Service) *WarehouseHandler {
	return &WarehouseHandler{BaseHandler: base, service: service}
}

// Create handles POST /warehouses.
func (h *WarehouseHandler) Create(c *gin.Context) {
	var req dto.CreateWarehouseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	w := req.ToWarehouse()
	if err := h.service.Create(c.Request.Context(), w); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, w)
}

// Get handles GET /warehouses/:id.
func (h *WarehouseHandler) Get(c *gin.Context) {
	warehouseID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	w, err := h.service.Get(c.Request.Context(), warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, w)
}

// List handles GET /warehouses?active=true.
func (h *WarehouseHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, len(items), 0))
}

// Deactivate handles POST /warehouses/:id/deactivate.
func (h *WarehouseHandler) Deactivate(c *gin.Context) {
	warehouseID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Deactivate(c.Request.Context(), warehouseID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
