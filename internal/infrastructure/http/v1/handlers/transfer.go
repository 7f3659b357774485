package handlers

import (
	"github.com/gin-gonic/gin"

	"docflow/internal/core/id"
	"docflow/internal/domain/documents/transfer"
	"docflow/internal/infrastructure/http/v1/dto"
)

// TransferHandler exposes warehouse transfers.
type TransferHandler struct {
	*BaseHandler
	service *transfer.Service
}

// NewTransferHandler creates a TransferHandler.
func NewTransferHandler(base *BaseHandler, service *transfer.Service) *TransferHandler {
	return &TransferHandler{BaseHandler: base, service: service}
}

// Create handles POST /transfers.
func (h *TransferHandler) Create(c *gin.Context) {
	var in transfer.CreateInput
	if !h.BindJSON(c, &in) {
		return
	}
	t, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, t)
}

// Get handles GET /transfers/:id.
func (h *TransferHandler) Get(c *gin.Context) {
	transferID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	t, err := h.service.Get(c.Request.Context(), transferID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// List handles GET /transfers?warehouse_id=&status=.
func (h *TransferHandler) List(c *gin.Context) {
	limit, offset := h.Page(c)
	filter := transfer.ListFilter{Limit: limit, Offset: offset}
	var ok bool
	if filter.WarehouseID, ok = h.QueryID(c, "warehouse_id"); !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		st := transfer.Status(raw)
		filter.Status = &st
	}
	items, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, limit, offset))
}

// Approve handles POST /transfers/:id/approve.
func (h *TransferHandler) Approve(c *gin.Context) {
	h.respond(c, func(transferID id.ID) (*transfer.Transfer, error) {
		return h.service.Approve(c.Request.Context(), transferID)
	})
}

// Deliver handles POST /transfers/:id/deliver.
func (h *TransferHandler) Deliver(c *gin.Context) {
	var req dto.TransferLinesRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	h.respond(c, func(transferID id.ID) (*transfer.Transfer, error) {
		return h.service.Deliver(c.Request.Context(), transferID, req.Lines)
	})
}

// Receive handles POST /transfers/:id/receive.
func (h *TransferHandler) Receive(c *gin.Context) {
	var req dto.TransferLinesRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	h.respond(c, func(transferID id.ID) (*transfer.Transfer, error) {
		return h.service.Receive(c.Request.Context(), transferID, req.Lines)
	})
}

// Cancel handles POST /transfers/:id/cancel.
func (h *TransferHandler) Cancel(c *gin.Context) {
	var req dto.ReasonRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	h.respond(c, func(transferID id.ID) (*transfer.Transfer, error) {
		return h.service.Cancel(c.Request.Context(), transferID, req.Reason)
	})
}

// Delete handles DELETE /transfers/:id.
func (h *TransferHandler) Delete(c *gin.Context) {
	transferID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), transferID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

func (h *TransferHandler) respond(c *gin.Context, fn func(id.ID) (*transfer.Transfer, error)) {
	transferID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	t, err := fn(transferID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}
