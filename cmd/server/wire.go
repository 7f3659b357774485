package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docflow/internal/core/idempotency"
	"docflow/internal/core/numerator"
	"docflow/internal/core/tx"
	"docflow/internal/domain/approval"
	"docflow/internal/domain/audit"
	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/domain/documents/delivery"
	"docflow/internal/domain/documents/transfer"
	"docflow/internal/domain/registers/stock"
	"docflow/internal/infrastructure/cache"
	"docflow/internal/infrastructure/config"
	"docflow/internal/infrastructure/http/v1/handlers"
	infranum "docflow/internal/infrastructure/numerator"
	"docflow/internal/infrastructure/storage/memory"
	"docflow/internal/infrastructure/storage/postgres"
	"docflow/internal/infrastructure/storage/postgres/approval_repo"
	"docflow/internal/infrastructure/storage/postgres/catalog_repo"
	"docflow/internal/infrastructure/storage/postgres/document_repo"
	"docflow/internal/infrastructure/storage/postgres/register_repo"
	"docflow/pkg/logger"
)

// core holds the wired services for one storage backend.
type core struct {
	DB         handlers.Pinger
	Numbers    numerator.Generator
	Ledger     *stock.Ledger
	Approvals  *approval.Service
	Rules      handlers.RuleStore
	RuleCache  handlers.Reloader
	Transfers  *transfer.Service
	Deliveries *delivery.Service
	Warehouses *warehouse.Service
	Audit      audit.Recorder
	Keys       idempotency.Store

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (c *core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// ruleStore is served by both backends' approval repositories.
type ruleStore interface {
	approval.RuleSource
	handlers.RuleStore
}

// storage is what a backend contributes before services are built.
type storage struct {
	txm        tx.Manager
	sequencer  numerator.Sequencer
	warehouses warehouse.Repository
	stock      stock.Repository
	approvals  approval.Repository
	rules      ruleStore
	transfers  transfer.Repository
	deliveries delivery.Repository
	picking    delivery.PickingLists
	audit      audit.Recorder
	keys       idempotency.Store
}

func build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*core, error) {
	c := &core{}
	var st storage

	switch cfg.App.Storage {
	case config.StorageMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		mem := memory.New()
		st = storage{
			txm:        mem.TxManager(),
			sequencer:  mem.Sequencer(),
			warehouses: mem.Warehouses(),
			stock:      mem.Stock(),
			approvals:  mem.Approvals(),
			rules:      mem.Approvals(),
			transfers:  mem.Transfers(),
			deliveries: mem.Deliveries(),
			picking:    mem.Deliveries(),
			audit:      mem.Audit(),
			keys:       mem.Idempotency(cfg.HTTP.IdempotencyTTL),
		}
	default:
		pg, err := openPostgres(ctx, cfg, log, c)
		if err != nil {
			c.Close()
			return nil, err
		}
		st = pg
	}

	var ruleSource approval.RuleSource = st.rules
	if cfg.Approval.CacheRules {
		rc := cache.NewRuleCache(st.rules, rawPool(c.DB))
		rc.OnInvalidation(func(channel, payload string) {
			log.Infow("approval rules reloaded", "channel", channel, "table", payload)
		})
		if err := rc.Start(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("start approval rule cache: %w", err)
		}
		c.closers = append(c.closers, rc.Stop)
		ruleSource = rc
		c.RuleCache = rc
	}

	conditions, err := approval.NewConditions()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init rule conditions: %w", err)
	}

	c.Warehouses = warehouse.NewService(st.warehouses)
	c.Numbers = numerator.NewAllocator(st.sequencer, c.Warehouses, cfg.AllocatorOptions()...)
	c.Ledger = stock.NewLedger(st.stock, st.txm)
	c.Approvals = approval.NewService(
		approval.NewResolver(ruleSource, conditions),
		st.approvals,
		cfg.Approvers(),
		st.audit,
		st.txm,
	)
	if len(cfg.Approval.Approvers) == 0 {
		log.Warn("approval.approvers is empty, pending approvals will have no next approver")
	}
	c.Transfers = transfer.NewService(st.transfers, c.Ledger, c.Numbers, c.Warehouses, st.audit, st.txm)
	c.Deliveries = delivery.NewService(st.deliveries, st.picking, c.Ledger, c.Numbers, c.Warehouses, st.audit, st.txm)
	c.Rules = st.rules
	c.Audit = st.audit
	if cfg.HTTP.IdempotencyTTL > 0 {
		c.Keys = st.keys
		go cleanupKeys(ctx, st.keys, cfg.HTTP.IdempotencyCleanupInterval, log)
	}
	return c, nil
}

// cleanupKeys drops expired idempotency keys until ctx is cancelled.
func cleanupKeys(ctx context.Context, keys idempotency.Store, every time.Duration, log *logger.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := keys.CleanupExpired(ctx)
			if err != nil {
				log.Warnw("idempotency cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debugw("expired idempotency keys removed", "count", n)
			}
		}
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger, c *core) (storage, error) {
	if cfg.Database.MigrateOnStart {
		m, err := postgres.NewMigrator(cfg.Database.DSN, log.Desugar())
		if err != nil {
			return storage{}, err
		}
		err = m.Up()
		closeErr := m.Close()
		if err != nil {
			return storage{}, fmt.Errorf("migrate: %w", err)
		}
		if closeErr != nil {
			log.Warnw("close migrator", "error", closeErr)
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.PoolConfig())
	if err != nil {
		return storage{}, fmt.Errorf("connect database: %w", err)
	}
	c.closers = append(c.closers, pool.Close)
	c.DB = pool
	log.Infow("database connected", "max_conns", cfg.Database.MaxConns)

	txm := postgres.NewTxManager(pool, cfg.TxOptions())
	auditSvc, err := postgres.NewAuditService(txm)
	if err != nil {
		return storage{}, err
	}
	deliveries := document_repo.NewDeliveryRepo(txm)
	approvals := approval_repo.NewRepo(txm)
	return storage{
		txm:        txm,
		sequencer:  infranum.NewSequencer(txm),
		warehouses: catalog_repo.NewWarehouseRepo(txm),
		stock:      register_repo.NewStockRepo(txm),
		approvals:  approvals,
		rules:      approvals,
		transfers:  document_repo.NewTransferRepo(txm),
		deliveries: deliveries,
		picking:    deliveries,
		keys:       postgres.NewIdempotencyStore(txm, cfg.HTTP.IdempotencyTTL),
		audit:      auditSvc,
	}, nil
}

// rawPool returns the pgx pool behind db, or nil in memory mode.
func rawPool(db handlers.Pinger) *pgxpool.Pool {
	if p, ok := db.(*postgres.Pool); ok {
		return p.Unwrap()
	}
	return nil
}
