// Package main applies and inspects database schema migrations.
//
// Usage:
//
//	migrate up
//	migrate down
//	migrate steps N
//	migrate force VERSION
//	migrate version
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"docflow/internal/infrastructure/config"
	"docflow/internal/infrastructure/storage/postgres"
	"docflow/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

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

	if err := run(cfg.Database.DSN, log, os.Args[1:]); err != nil {
		log.Errorw("migration failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(dsn string, log *logger.Logger, args []string) error {
	m, err := postgres.NewMigrator(dsn, log.Desugar())
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "force":
		v, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Force(v)
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Infow("schema version", "version", v, "dirty", dirty)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, errors.New(args[0] + " requires a numeric argument")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", args[0], err)
	}
	return n, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate up|down|version|steps N|force VERSION")
}
