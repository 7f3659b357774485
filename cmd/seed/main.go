// Package main seeds reference data: warehouses, approval levels and
// approval rules. Running it twice is safe.
package main

import (
	"context"
	"fmt"
	"os"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/approval"
	"docflow/internal/domain/catalogs/warehouse"
	"docflow/internal/infrastructure/config"
	"docflow/internal/infrastructure/storage/postgres"
	"docflow/internal/infrastructure/storage/postgres/approval_repo"
	"docflow/internal/infrastructure/storage/postgres/catalog_repo"
	"docflow/pkg/logger"
)

var (
	levelSupervisor = id.MustParse("0190f5c2-0000-7000-8000-000000000001")
	levelManager    = id.MustParse("0190f5c2-0000-7000-8000-000000000002")
	levelDirector   = id.MustParse("0190f5c2-0000-7000-8000-000000000003")
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "database.dsn (DOCFLOW_DATABASE_DSN) is required")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)

	pool, err := postgres.NewPool(ctx, cfg.PoolConfig())
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool, cfg.TxOptions())

	if err := seedWarehouses(ctx, catalog_repo.NewWarehouseRepo(txm), log); err != nil {
		log.Fatalw("failed to seed warehouses", "error", err)
	}
	if err := seedApproval(ctx, approval_repo.NewRepo(txm), log); err != nil {
		log.Fatalw("failed to seed approval rules", "error", err)
	}

	log.Info("seeding completed successfully")
}

func seedWarehouses(ctx context.Context, repo *catalog_repo.WarehouseRepo, log *logger.Logger) error {
	seed := []*warehouse.Warehouse{
		warehouse.New("GEN", "General", warehouse.TypeMain),
		warehouse.New("JKT", "Jakarta Main", warehouse.TypeMain),
		warehouse.New("SBY", "Surabaya Distribution", warehouse.TypeDistribution),
		warehouse.New("BDG", "Bandung Retail", warehouse.TypeRetail),
		warehouse.New("TRN", "In Transit", warehouse.TypeTransit),
	}

	for _, w := range seed {
		_, err := repo.GetByCode(ctx, w.Code)
		switch {
		case err == nil:
			log.Debugw("warehouse exists", "code", w.Code)
			continue
		case !apperror.IsNotFound(err):
			return err
		}
		if err := repo.Create(ctx, w); err != nil {
			return fmt.Errorf("create warehouse %s: %w", w.Code, err)
		}
		log.Infow("warehouse created", "code", w.Code, "id", w.ID)
	}
	return nil
}

func seedApproval(ctx context.Context, repo *approval_repo.Repo, log *logger.Logger) error {
	levels := []approval.Level{
		{ID: levelSupervisor, Name: "Supervisor", Role: "supervisor", IsActive: true},
		{ID: levelManager, Name: "Finance manager", Role: "finance_manager", IsActive: true},
		{ID: levelDirector, Name: "Director", Role: "director", MinAmount: money("50000000"), IsActive: true},
	}
	for _, l := range levels {
		if err := repo.PutLevel(ctx, l); err != nil {
			return fmt.Errorf("level %s: %w", l.Name, err)
		}
	}

	rules := []approval.Rule{
		{
			ID:           id.MustParse("0190f5c2-0000-7000-8000-000000000101"),
			Name:         "Purchase orders up to 10M",
			DocumentType: "PURCHASE_ORDER",
			MinAmount:    types.ZeroMoney(),
			MaxAmount:    money("10000000"),
			LevelIDs:     []id.ID{levelSupervisor},
			IsActive:     true,
		},
		{
			ID:           id.MustParse("0190f5c2-0000-7000-8000-000000000102"),
			Name:         "Purchase orders from 10M",
			DocumentType: "PURCHASE_ORDER",
			MinAmount:    types.MustMoney("10000000"),
			LevelIDs:     []id.ID{levelSupervisor, levelManager, levelDirector},
			IsActive:     true,
		},
		{
			ID:           id.MustParse("0190f5c2-0000-7000-8000-000000000103"),
			Name:         "Discounted quotations",
			DocumentType: "QUOTATION",
			MinAmount:    types.ZeroMoney(),
			LevelIDs:     []id.ID{levelManager},
			Condition:    `"discount_percent" in attributes && double(attributes.discount_percent) > 15.0`,
			IsActive:     true,
		},
	}
	for _, r := range rules {
		if err := repo.PutRule(ctx, r); err != nil {
			return fmt.Errorf("rule %s: %w", r.Name, err)
		}
	}

	all, err := repo.AllRules(ctx)
	if err != nil {
		return err
	}
	for _, a := range approval.DetectAmbiguity(all) {
		log.Warnw("overlapping approval rules", "detail", a.String())
	}
	log.Infow("approval rules seeded", "levels", len(levels), "rules", len(rules))
	return nil
}

func money(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}
