// Package v1 is the HTTP adapter of the engine. The surrounding application
// authenticates callers and forwards the actor in X-Actor-* headers.
package v1

import (
	"github.com/gin-gonic/gin"

	"docflow/internal/core/idempotency"
	"docflow/internal/core/numerator"
	"docflow/internal/domain/approval"
	"docflow/internal/domain/audit"
	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/domain/documents/delivery"
	"docflow/internal/domain/documents/transfer"
	"docflow/internal/domain/registers/stock"
	"docflow/internal/infrastructure/http/v1/handlers"
	"docflow/internal/infrastructure/http/v1/middleware"
	"docflow/pkg/logger"
)

// RoleApprovalAdmin may edit approval levels and rules.
const RoleApprovalAdmin = "approval_admin"

// RouterConfig carries the wired core services.
type RouterConfig struct {
	Logger *logger.Logger
	// DB is pinged by the readiness probe; nil in memory mode.
	DB handlers.Pinger

	Numbers    numerator.Generator
	Ledger     *stock.Ledger
	Approvals  *approval.Service
	Rules      handlers.RuleStore
	RuleCache  handlers.Reloader
	Transfers  *transfer.Service
	Deliveries *delivery.Service
	Warehouses *warehouse.Service
	Audit      audit.Recorder

	// Idempotency enables X-Idempotency-Key on POST routes when set.
	Idempotency idempotency.Store

	Debug bool
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	health := handlers.NewHealthHandler(cfg.DB)
	router.GET("/health/live", health.Live)
	router.GET("/health/ready", health.Ready)

	api := router.Group("/api/v1")
	api.Use(middleware.Actor())
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerNumberRoutes(api, base, cfg)
	registerWarehouseRoutes(api, base, cfg)
	registerStockRoutes(api, base, cfg)
	registerApprovalRoutes(api, base, cfg)
	registerTransferRoutes(api, base, cfg)
	registerDeliveryRoutes(api, base, cfg)

	auditH := handlers.NewAuditHandler(base, cfg.Audit)
	api.GET("/audit/:entity_type/:id", auditH.History)

	return router
}

func registerNumberRoutes(api *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewNumberHandler(base, cfg.Numbers)
	api.POST("/numbers", h.Next)
}

func registerWarehouseRoutes(api *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewWarehouseHandler(base, cfg.Warehouses)
	g := api.Group("/warehouses")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.POST("/:id/deactivate", h.Deactivate)
}

func registerStockRoutes(api *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewStockHandler(base, cfg.Ledger)
	g := api.Group("/stock")
	g.GET("", h.Get)
	g.GET("/warehouses/:id", h.ListByWarehouse)
	g.GET("/movements", h.Movements)
	g.POST("/receive", h.Receive())
	g.POST("/reserve", h.Reserve())
	g.POST("/release", h.Release())
	g.POST("/adjust", h.Adjust())
	g.POST("/damage", h.Damage())
	g.POST("/commit-shipment", h.CommitShipment())
	g.POST("/reconcile", h.Reconcile)
}

func registerApprovalRoutes(api *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewApprovalHandler(base, cfg.Approvals, cfg.Rules, cfg.RuleCache)
	g := api.Group("/approvals")
	g.GET("", h.Status)
	g.POST("/submit", h.Submit)
	g.POST("/cancel", h.Cancel)
	g.POST("/:id/advance", h.Advance)

	g.GET("/rules", h.ListRules)
	admin := g.Group("", middleware.RequireRole(RoleApprovalAdmin))
	admin.PUT("/levels", h.PutLevel)
	admin.PUT("/rules", h.PutRule)
}

func registerTransferRoutes(api *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewTransferHandler(base, cfg.Transfers)
	g := api.Group("/transfers")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/deliver", h.Deliver)
	g.POST("/:id/receive", h.Receive)
	g.POST("/:id/cancel", h.Cancel)
}

func registerDeliveryRoutes(api *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewDeliveryHandler(base, cfg.Deliveries)
	g := api.Group("/deliveries")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/picking-list", h.AttachPickingList)
	g.PUT("/:id/shipping", h.SetShipping)
	g.POST("/:id/ready", h.Ready)
	g.POST("/:id/ship", h.Ship)
	g.POST("/:id/deliver", h.Deliver)
	g.POST("/:id/cancel", h.Cancel)

	pl := api.Group("/picking-lists")
	pl.POST("", h.CreatePickingList)
	pl.POST("/:id/status", h.SetPickingStatus)
}
