package handlers

import (
	"github.com/gin-gonic/gin"

	"docflow/internal/core/id"
	"docflow/internal/domain/documents/delivery"
	"docflow/internal/infrastructure/http/v1/dto"
)

// DeliveryHandler exposes delivery orders and picking lists.
type DeliveryHandler struct {
	*BaseHandler
	service *delivery.Service
}

// NewDeliveryHandler creates a DeliveryHandler.
func NewDeliveryHandler(base *BaseHandler, service *delivery.Service) *DeliveryHandler {
	return &DeliveryHandler{BaseHandler: base, service: service}
}

// Create handles POST /deliveries.
func (h *DeliveryHandler) Create(c *gin.Context) {
	var in delivery.CreateInput
	if !h.BindJSON(c, &in) {
		return
	}
	o, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, o)
}

// Get handles GET /deliveries/:id.
func (h *DeliveryHandler) Get(c *gin.Context) {
	h.respond(c, func(orderID id.ID) (*delivery.Order, error) {
		return h.service.Get(c.Request.Context(), orderID)
	})
}

// List handles GET /deliveries?warehouse_id=&status=.
func (h *DeliveryHandler) List(c *gin.Context) {
	limit, offset := h.Page(c)
	filter := delivery.ListFilter{Limit: limit, Offset: offset}
	var ok bool
	if filter.WarehouseID, ok = h.QueryID(c, "warehouse_id"); !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		st := delivery.Status(raw)
		filter.Status = &st
	}
	items, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, limit, offset))
}

// AttachPickingList handles POST /deliveries/:id/picking-list.
func (h *DeliveryHandler) AttachPickingList(c *gin.Context) {
	var req dto.AttachPickingListRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.respond(c, func(orderID id.ID) (*delivery.Order, error) {
		return h.service.AttachPickingList(c.Request.Context(), orderID, req.PickingListID)
	})
}

// SetShipping handles PUT /deliveries/:id/shipping.
func (h *DeliveryHandler) SetShipping(c *gin.Context) {
	var req delivery.Shipping
	if !h.BindJSON(c, &req) {
		return
	}
	h.respond(c, func(orderID id.ID) (*delivery.Order, error) {
		return h.service.SetShipping(c.Request.Context(), orderID, req)
	})
}

// Ready handles POST /deliveries/:id/ready.
func (h *DeliveryHandler) Ready(c *gin.Context) {
	h.respond(c, func(orderID id.ID) (*delivery.Order, error) {
		return h.service.MarkReady(c.Request.Context(), orderID)
	})
}

// Ship handles POST /deliveries/:id/ship.
func (h *DeliveryHandler) Ship(c *gin.Context) {
	var req dto.ShipRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	h.respond(c, func(orderID id.ID) (*delivery.Order, error) {
		return h.service.Ship(c.Request.Context(), orderID, req.Lines, req.Shipping)
	})
}

// Deliver handles POST /deliveries/:id/deliver.
func (h *DeliveryHandler) Deliver(c *gin.Context) {
	var req dto.DeliveryLinesRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	h.respond(c, func(orderID id.ID) (*delivery.Order, error) {
		return h.service.Deliver(c.Request.Context(), orderID, req.Lines)
	})
}

// Cancel handles POST /deliveries/:id/cancel.
func (h *DeliveryHandler) Cancel(c *gin.Context) {
	var req dto.ReasonRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	h.respond(c, func(orderID id.ID) (*delivery.Order, error) {
		return h.service.Cancel(c.Request.Context(), orderID, req.Reason)
	})
}

// Delete handles DELETE /deliveries/:id.
func (h *DeliveryHandler) Delete(c *gin.Context) {
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), orderID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// CreatePickingList handles POST /picking-lists.
func (h *DeliveryHandler) CreatePickingList(c *gin.Context) {
	var req dto.CreatePickingListRequest
	if !h.BindJSON(c, &req) {
		return
	}
	pl, err := h.service.CreatePickingList(c.Request.Context(), req.WarehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, pl)
}

// SetPickingStatus handles POST /picking-lists/:id/status.
func (h *DeliveryHandler) SetPickingStatus(c *gin.Context) {
	pickingListID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.PickingStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}
	pl, err := h.service.SetPickingStatus(c.Request.Context(), pickingListID, req.Status)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, pl)
}

func (h *DeliveryHandler) respond(c *gin.Context, fn func(id.ID) (*delivery.Order, error)) {
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	o, err := fn(orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, o)
}
