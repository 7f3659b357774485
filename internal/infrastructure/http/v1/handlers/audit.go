package handlers

import (
	"github.com/gin-gonic/gin"

	"docflow/internal/domain/audit"
	"docflow/internal/infrastructure/http/v1/dto"
)

// AuditHandler reads the audit trail of one document.
type AuditHandler struct {
	*BaseHandler
	recorder audit.Recorder
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(base *BaseHandler, recorder audit.Recorder) *AuditHandler {
	return &AuditHandler{BaseHandler: base, recorder: recorder}
}

// History handles GET /audit/:entity_type/:id.
func (h *AuditHandler) History(c *gin.Context) {
	entityID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	limit, _ := h.Page(c)
	entries, err := h.recorder.History(c.Request.Context(), c.Param("entity_type"), entityID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries, limit, 0))
}
