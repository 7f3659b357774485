package handlers

import (
	"github.com/gin-gonic/gin"

	"docflow/internal/core/numerator"
	"docflow/internal/infrastructure/http/v1/dto"
)

// NumberHandler allocates document numbers for documents the engine does
// not own (quotations, sales orders, invoices).
type NumberHandler struct {
	*BaseHandler
	numbers numerator.Generator
}

// NewNumberHandler creates a NumberHandler.
func NewNumberHandler(base *BaseHandler, numbers numerator.Generator) *NumberHandler {
	return &NumberHandler{BaseHandler: base, numbers: numbers}
}

// Next handles POST /numbers.
func (h *NumberHandler) Next(c *gin.Context) {
	var req dto.NextNumberRequest
	if !h.BindJSON(c, &req) {
		return
	}
	number, err := h.numbers.NextNumber(c.Request.Context(), req.Type(), req.WarehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromNumber(number))
}
