package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/numerator"
	"docflow/internal/core/types"
	"docflow/internal/domain/approval"
	"docflow/internal/domain/audit"
	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/domain/documents/delivery"
	"docflow/internal/domain/documents/transfer"
	"docflow/internal/domain/registers/stock"
	v1 "docflow/internal/infrastructure/http/v1"
	"docflow/internal/infrastructure/http/v1/dto"
	"docflow/internal/infrastructure/http/v1/middleware"
	"docflow/internal/infrastructure/storage/memory"
	"docflow/pkg/logger"
)

type server struct {
	t        *testing.T
	router   *gin.Engine
	jkt, sby *warehouse.Warehouse
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	txm := store.TxManager()

	warehouses := warehouse.NewService(store.Warehouses())
	jkt := warehouse.New("JKT", "Jakarta", warehouse.TypeMain)
	sby := warehouse.New("SBY", "Surabaya", warehouse.TypeDistribution)
	require.NoError(t, warehouses.Create(ctx, jkt))
	require.NoError(t, warehouses.Create(ctx, sby))

	clock := func() time.Time { return time.Date(2025, time.November, 14, 9, 0, 0, 0, time.UTC) }
	numbers := numerator.NewAllocator(store.Sequencer(), warehouses, numerator.WithClock(clock))
	ledger := stock.NewLedger(store.Stock(), txm)

	conditions, err := approval.NewConditions()
	require.NoError(t, err)
	approvals := approval.NewService(
		approval.NewResolver(store.Approvals(), conditions),
		store.Approvals(),
		approval.StaticApprovers{"supervisor": "sue"},
		store.Audit(),
		txm,
	)

	router := v1.NewRouter(v1.RouterConfig{
		Logger:      logger.Wrap(zap.NewNop()),
		Numbers:     numbers,
		Ledger:      ledger,
		Approvals:   approvals,
		Rules:       store.Approvals(),
		Transfers:   transfer.NewService(store.Transfers(), ledger, numbers, warehouses, store.Audit(), txm),
		Deliveries:  delivery.NewService(store.Deliveries(), store.Deliveries(), ledger, numbers, warehouses, store.Audit(), txm),
		Warehouses:  warehouses,
		Audit:       store.Audit(),
		Idempotency: store.Idempotency(time.Hour),
	})
	return &server{t: t, router: router, jkt: jkt, sby: sby}
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func (s *server) do(r request) *httptest.ResponseRecorder {
	s.t.Helper()
	var body *bytes.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(s.t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[middleware.ErrorResponse](t, rec).Code
}

func clerk() map[string]string {
	return map[string]string{middleware.HeaderActorID: "clerk"}
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	rec := s.do(request{method: http.MethodGet, path: "/health/live"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(request{method: http.MethodGet, path: "/health/ready"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "memory")
}

func TestNumbers(t *testing.T) {
	s := newServer(t)

	rec := s.do(request{method: http.MethodPost, path: "/api/v1/numbers", body: map[string]any{
		"document_type": "quotation",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[dto.NumberResponse](t, rec)
	assert.Equal(t, "PQ-001/GEN/11-2025", first.Number)
	assert.Equal(t, "GEN", first.WarehouseCode)
	assert.Equal(t, "11-2025", first.Period)

	rec = s.do(request{method: http.MethodPost, path: "/api/v1/numbers", body: map[string]any{
		"document_type": "DELIVERY_ORDER",
		"warehouse_id":  s.jkt.ID,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "DO-001/JKT/11-2025", decode[dto.NumberResponse](t, rec).Number)

	rec = s.do(request{method: http.MethodPost, path: "/api/v1/numbers", body: map[string]any{
		"document_type": "CREDIT_NOTE",
	}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperror.CodeUnknownDocumentType, errorCode(t, rec))

	rec = s.do(request{method: http.MethodPost, path: "/api/v1/numbers", body: map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStockOperations(t *testing.T) {
	s := newServer(t)
	product := id.New()
	op := func(path string, qty string) *httptest.ResponseRecorder {
		return s.do(request{method: http.MethodPost, path: "/api/v1/stock/" + path, headers: clerk(), body: map[string]any{
			"product_id":   product,
			"warehouse_id": s.jkt.ID,
			"quantity":     qty,
			"reason":       "cycle count",
		}})
	}

	rec := op("receive", "10")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, types.Units(10), decode[stock.Snapshot](t, rec).AvailableQuantity)

	rec = op("reserve", "15")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, apperror.CodeInsufficientStock, errorCode(t, rec))

	rec = op("reserve", "4")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[stock.Snapshot](t, rec)
	assert.Equal(t, types.Units(4), snap.ReservedQuantity)
	assert.Equal(t, types.Units(6), snap.AvailableQuantity)

	rec = op("release", "5")
	assert.Equal(t, apperror.CodeInvalidRelease, errorCode(t, rec))

	rec = op("commit-shipment", "4")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.Units(6), decode[stock.Snapshot](t, rec).Quantity)

	rec = op("damage", "1")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = op("adjust", "-2.5")
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[stock.Snapshot](t, rec)
	assert.Equal(t, "2.5", snap.AvailableQuantity.String())

	rec = s.do(request{method: http.MethodGet,
		path: "/api/v1/stock?product_id=" + product.String() + "&warehouse_id=" + s.jkt.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snap, decode[stock.Snapshot](t, rec))

	rec = s.do(request{method: http.MethodGet, path: "/api/v1/stock/movements?product_id=" + product.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	movements := decode[dto.ListResponse[stock.Movement]](t, rec).Items
	require.Len(t, movements, 5)
	assert.Equal(t, stock.MovementIn, movements[0].Type)
	assert.Equal(t, "clerk", movements[0].ActorID)

	rec = s.do(request{method: http.MethodPost, path: "/api/v1/stock/reconcile", body: map[string]any{
		"product_id":   product,
		"warehouse_id": s.jkt.ID,
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	drift := decode[dto.DriftResponse](t, rec)
	assert.True(t, drift.Consistent)
	assert.Equal(t, 5, drift.Movements)

	rec = s.do(request{method: http.MethodGet, path: "/api/v1/stock/warehouses/" + s.jkt.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.ListResponse[stock.Snapshot]](t, rec).Items, 1)
}

func TestStockValidation(t *testing.T) {
	s := newServer(t)

	rec := s.do(request{method: http.MethodPost, path: "/api/v1/stock/reserve", body: map[string]any{
		"warehouse_id": s.jkt.ID,
		"quantity":     "1",
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, errorCode(t, rec))

	rec = s.do(request{method: http.MethodGet, path: "/api/v1/stock/warehouses/not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(request{method: http.MethodGet, path: "/api/v1/stock/movements?from=yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransferLifecycle(t *testing.T) {
	s := newServer(t)
	product := id.New()
	rec := s.do(request{method: http.MethodPost, path: "/api/v1/stock/receive", body: map[string]any{
		"product_id": product, "warehouse_id": s.jkt.ID, "quantity": 20,
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(request{method: http.MethodPost, path: "/api/v1/transfers", headers: clerk(), body: map[string]any{
		"source_warehouse_id":      s.jkt.ID,
		"destination_warehouse_id": s.sby.ID,
		"items":                    []map[string]any{{"product_id": product, "quantity": 8}},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tr := decode[transfer.Transfer](t, rec)
	assert.Equal(t, "WT-001/JKT/11-2025", tr.Number)
	assert.Equal(t, transfer.StatusRequested, tr.Status)
	base := "/api/v1/transfers/" + tr.ID.String()

	rec = s.do(request{method: http.MethodPost, path: base + "/approve", headers: clerk()})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	head := map[string]string{
		middleware.HeaderActorID:          "head",
		middleware.HeaderActorPermissions: transfer.PermissionApprove,
		middleware.HeaderActorWarehouses:  s.jkt.ID.String(),
	}
	rec = s.do(request{method: http.MethodPost, path: base + "/approve", headers: head})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(request{method: http.MethodPost, path: base + "/receive", headers: clerk()})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperror.CodeInvalidTransition, errorCode(t, rec))

	rec = s.do(request{method: http.MethodPost, path: base + "/deliver", headers: clerk()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(request{method: http.MethodPost, path: base + "/receive", headers: clerk(), body: dto.TransferLinesRequest{
		Lines: []transfer.Line{{ProductID: product, Quantity: types.Units(7)}},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tr = decode[transfer.Transfer](t, rec)
	assert.Equal(t, transfer.StatusReceived, tr.Status)
	assert.True(t, tr.HasShortfall())

	rec = s.do(request{method: http.MethodGet,
		path: "/api/v1/stock?product_id=" + product.String() + "&warehouse_id=" + s.sby.ID.String()})
	assert.Equal(t, types.Units(7), decode[stock.Snapshot](t, rec).Quantity)

	rec = s.do(request{method: http.MethodGet, path: "/api/v1/transfers?warehouse_id=" + s.sby.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.ListResponse[transfer.Transfer]](t, rec).Items, 1)

	rec = s.do(request{method: http.MethodDelete, path: base})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(request{method: http.MethodGet, path: "/api/v1/audit/" + transfer.EntityType + "/" + tr.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[dto.ListResponse[audit.Entry]](t, rec).Items
	require.NotEmpty(t, entries)
	var partial bool
	for _, e := range entries {
		partial = partial || e.HasFlag(transfer.FlagPartialReceipt)
	}
	assert.True(t, partial)
}

func TestDeliveryLifecycle(t *testing.T) {
	s := newServer(t)
	product := id.New()
	rec := s.do(request{method: http.MethodPost, path: "/api/v1/stock/receive", body: map[string]any{
		"product_id": product, "warehouse_id": s.jkt.ID, "quantity": 5,
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(request{method: http.MethodPost, path: "/api/v1/picking-lists", headers: clerk(), body: map[string]any{
		"warehouse_id": s.jkt.ID,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pl := decode[delivery.PickingList](t, rec)
	assert.Equal(t, "PL-001/JKT/11-2025", pl.Number)

	rec = s.do(request{method: http.MethodPost, path: "/api/v1/picking-lists/" + pl.ID.String() + "/status", body: map[string]any{
		"status": delivery.PickingCompleted,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(request{method: http.MethodPost, path: "/api/v1/deliveries", headers: clerk(), body: map[string]any{
		"picking_list_id":  pl.ID,
		"warehouse_id":     s.jkt.ID,
		"shipping_address": "Jl. Sudirman 1",
		"shipping":         map[string]any{"method": "courier"},
		"reserve_stock":    true,
		"items":            []map[string]any{{"product_id": product, "quantity": 3}},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[delivery.Order](t, rec)
	assert.Equal(t, "DO-001/JKT/11-2025", order.Number)
	base := "/api/v1/deliveries/" + order.ID.String()

	for _, step := range []string{"/ready", "/ship", "/deliver"} {
		rec = s.do(request{method: http.MethodPost, path: base + step, headers: clerk()})
		require.Equal(t, http.StatusOK, rec.Code, step+": "+rec.Body.String())
	}
	order = decode[delivery.Order](t, rec)
	assert.Equal(t, delivery.StatusDelivered, order.Status)

	rec = s.do(request{method: http.MethodGet,
		path: "/api/v1/stock?product_id=" + product.String() + "&warehouse_id=" + s.jkt.ID.String()})
	snap := decode[stock.Snapshot](t, rec)
	assert.Equal(t, types.Units(2), snap.Quantity)
	assert.True(t, snap.ReservedQuantity.IsZero())

	rec = s.do(request{method: http.MethodPost, path: base + "/cancel", body: dto.ReasonRequest{Reason: "late"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApprovalFlow(t *testing.T) {
	s := newServer(t)
	admin := map[string]string{
		middleware.HeaderActorID:    "root",
		middleware.HeaderActorRoles: v1.RoleApprovalAdmin,
	}
	level := approval.Level{ID: id.New(), Name: "Supervisor", Role: "supervisor", IsActive: true}

	rec := s.do(request{method: http.MethodPut, path: "/api/v1/approvals/levels", headers: clerk(), body: level})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(request{method: http.MethodPut, path: "/api/v1/approvals/levels", headers: admin, body: level})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rule := approval.Rule{
		Name:         "quotations",
		DocumentType: "quotation",
		MinAmount:    types.MustMoney("1000"),
		LevelIDs:     []id.ID{level.ID},
		IsActive:     true,
	}
	rec = s.do(request{method: http.MethodPut, path: "/api/v1/approvals/rules", headers: admin, body: rule})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	bad := rule
	bad.LevelIDs = nil
	rec = s.do(request{method: http.MethodPut, path: "/api/v1/approvals/rules", headers: admin, body: bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, errorCode(t, rec), "a failed Validate is a validation error, not an internal one")

	nameless := level
	nameless.ID, nameless.Role = id.New(), ""
	rec = s.do(request{method: http.MethodPut, path: "/api/v1/approvals/levels", headers: admin, body: nameless})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, errorCode(t, rec))

	docID := id.New()
	rec = s.do(request{method: http.MethodPost, path: "/api/v1/approvals/submit", headers: clerk(), body: map[string]any{
		"document_type": "QUOTATION",
		"document_id":   docID,
		"number":        "PQ-001/GEN/11-2025",
		"amount":        "2500",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decode[approval.SubmitResult](t, rec)
	require.True(t, submitted.Required)
	require.NotNil(t, submitted.Pending)
	assert.Equal(t, "sue", *submitted.Pending.NextApprover)

	sue := map[string]string{
		middleware.HeaderActorID:    "sue",
		middleware.HeaderActorRoles: "supervisor",
	}
	path := "/api/v1/approvals/" + submitted.Pending.ID.String() + "/advance"
	rec = s.do(request{method: http.MethodPost, path: path, headers: sue, body: map[string]any{"decision": "maybe"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(request{method: http.MethodPost, path: path, headers: clerk(), body: map[string]any{"decision": "approve"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(request{method: http.MethodPost, path: path, headers: sue, body: map[string]any{"decision": "approve"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, approval.WorkflowApproved, decode[approval.AdvanceResult](t, rec).WorkflowStatus)

	rec = s.do(request{method: http.MethodPost, path: path, headers: sue, body: map[string]any{"decision": "approve"}})
	assert.Equal(t, apperror.CodeAlreadyResolved, errorCode(t, rec))

	rec = s.do(request{method: http.MethodGet,
		path: "/api/v1/approvals?approvable_type=quotation&approvable_id=" + docID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[dto.StatusResponse](t, rec)
	assert.True(t, status.Approved)
	assert.Len(t, status.Approvals, 1)
}

func TestPanicIsRenderedAsInternalError(t *testing.T) {
	s := newServer(t)
	s.router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	rec := s.do(request{method: http.MethodGet, path: "/boom"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperror.CodeInternal, errorCode(t, rec))
	assert.False(t, strings.Contains(rec.Body.String(), "kaboom"))
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
}

func TestIdempotentNumberAllocation(t *testing.T) {
	s := newServer(t)
	headers := map[string]string{middleware.HeaderIdempotencyKey: "req-1"}
	body := map[string]any{"document_type": "DELIVERY_ORDER", "warehouse_id": s.jkt.ID}

	first := s.do(request{method: http.MethodPost, path: "/api/v1/numbers", body: body, headers: headers})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	again := s.do(request{method: http.MethodPost, path: "/api/v1/numbers", body: body, headers: headers})
	require.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "true", again.Header().Get(middleware.HeaderIdempotentReplay))
	assert.JSONEq(t, first.Body.String(), again.Body.String(), "replay must not allocate a second number")

	next := s.do(request{method: http.MethodPost, path: "/api/v1/numbers", body: body})
	assert.Equal(t, "DO-002/JKT/11-2025", decode[dto.NumberResponse](t, next).Number)

	body["document_type"] = "QUOTATION"
	reused := s.do(request{method: http.MethodPost, path: "/api/v1/numbers", body: body, headers: headers})
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)
	assert.Equal(t, apperror.CodeIdempotencyMismatch, errorCode(t, reused))
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	s := newServer(t)
	headers := map[string]string{middleware.HeaderIdempotencyKey: "req-2"}

	bad := s.do(request{method: http.MethodPost, path: "/api/v1/numbers", body: map[string]any{"document_type": "CREDIT_NOTE"}, headers: headers})
	require.Equal(t, http.StatusInternalServerError, bad.Code)

	ok := s.do(request{method: http.MethodPost, path: "/api/v1/numbers", body: map[string]any{"document_type": "CREDIT_NOTE"}, headers: headers})
	assert.Empty(t, ok.Header().Get(middleware.HeaderIdempotentReplay))
	assert.Equal(t, apperror.CodeUnknownDocumentType, errorCode(t, ok), "failed request is executed again, not replayed")
}
