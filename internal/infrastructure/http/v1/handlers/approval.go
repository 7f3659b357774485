package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/approval"
	"docflow/internal/infrastructure/http/v1/dto"
	"docflow/pkg/logger"
)

// RuleStore reads and writes approval configuration.
type RuleStore interface {
	AllRules(ctx context.Context) ([]approval.Rule, error)
	AllLevels(ctx context.Context) ([]approval.Level, error)
	PutLevel(ctx context.Context, l approval.Level) error
	PutRule(ctx context.Context, r approval.Rule) error
}

// Reloader refreshes a rule cache after a configuration write.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ApprovalHandler exposes approval chains and their configuration.
type ApprovalHandler struct {
	*BaseHandler
	service *approval.Service
	rules   RuleStore
	cache   Reloader
}

// NewApprovalHandler creates an ApprovalHandler. cache may be nil.
func NewApprovalHandler(base *BaseHandler, service *approval.Service, rules RuleStore, cache Reloader) *ApprovalHandler {
	return &ApprovalHandler{BaseHandler: base, service: service, rules: rules, cache: cache}
}

// Submit handles POST /approvals/submit.
func (h *ApprovalHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.Submit(c.Request.Context(), req.ToDocument())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Advance handles POST /approvals/:id/advance.
func (h *ApprovalHandler) Advance(c *gin.Context) {
	approvalID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.AdvanceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.Advance(c.Request.Context(), approvalID, req.Decision, req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Cancel handles POST /approvals/cancel.
func (h *ApprovalHandler) Cancel(c *gin.Context) {
	var req dto.ApprovableRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := h.service.Cancel(c.Request.Context(), req.ApprovableType, req.ApprovableID, req.Reason); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Status handles GET /approvals?approvable_type=&approvable_id=.
func (h *ApprovalHandler) Status(c *gin.Context) {
	approvableID, ok := h.QueryID(c, "approvable_id")
	if !ok {
		return
	}
	req := dto.ApprovableRequest{ApprovableType: c.Query("approvable_type")}
	if approvableID != nil {
		req.ApprovableID = *approvableID
	}
	if err := req.Validate(); err != nil {
		h.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	rows, err := h.service.Status(ctx, req.ApprovableType, req.ApprovableID)
	if err != nil {
		h.Error(c, err)
		return
	}
	approved, err := h.service.IsApproved(ctx, req.ApprovableType, req.ApprovableID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if rows == nil {
		rows = []*approval.Approval{}
	}
	h.OK(c, dto.StatusResponse{
		ApprovableType: req.ApprovableType,
		ApprovableID:   req.ApprovableID,
		Approved:       approved,
		Approvals:      rows,
	})
}

// ListRules handles GET /approvals/rules. Ambiguous rule pairs are reported
// alongside the rules.
func (h *ApprovalHandler) ListRules(c *gin.Context) {
	ctx := c.Request.Context()
	rules, err := h.rules.AllRules(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}
	levels, err := h.rules.AllLevels(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{
		"rules":       rules,
		"levels":      levels,
		"ambiguities": approval.DetectAmbiguity(rules),
	})
}

// PutLevel handles PUT /approvals/levels.
func (h *ApprovalHandler) PutLevel(c *gin.Context) {
	var level approval.Level
	if !h.BindJSON(c, &level) {
		return
	}
	if id.IsNil(level.ID) {
		level.ID = id.New()
	}
	if strings.TrimSpace(level.Role) == "" {
		h.Error(c, apperror.NewValidation("role is required").WithDetail("field", "role"))
		return
	}
	if err := h.rules.PutLevel(c.Request.Context(), level); err != nil {
		h.Error(c, err)
		return
	}
	h.reload(c)
	h.OK(c, level)
}

// PutRule handles PUT /approvals/rules.
func (h *ApprovalHandler) PutRule(c *gin.Context) {
	var rule approval.Rule
	if !h.BindJSON(c, &rule) {
		return
	}
	if id.IsNil(rule.ID) {
		rule.ID = id.New()
	}
	rule.DocumentType = strings.ToUpper(strings.TrimSpace(rule.DocumentType))
	if err := rule.Validate(); err != nil {
		h.Error(c, apperror.NewValidation(err.Error()))
		return
	}
	if err := h.rules.PutRule(c.Request.Context(), rule); err != nil {
		h.Error(c, err)
		return
	}
	h.reload(c)
	h.OK(c, rule)
}

// reload refreshes the cache in-process. In postgres mode the NOTIFY
// trigger also reaches every other instance.
func (h *ApprovalHandler) reload(c *gin.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Reload(c.Request.Context()); err != nil {
		logger.Warn(c.Request.Context(), "approval rule cache reload failed", "error", err)
	}
}
