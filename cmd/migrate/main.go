package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/logging"
)

func main() {
	steps := flag.Int("steps", 1, "number of migrations to revert with down")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [-steps n] up|down\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if flag.NArg() != 1 || cfg.DatabaseURL == "" {
		flag.Usage()
		os.Exit(2)
	}

	db, err := store.ConnectPostgres(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "up":
		err = store.RunMigrations(db, cfg.MigrationsPath)
	case "down":
		err = store.RollbackMigrations(db, cfg.MigrationsPath, *steps)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("migrate "+flag.Arg(0), zap.Error(err))
	}
	logger.Info("migrations applied", zap.String("direction", flag.Arg(0)), zap.String("path", cfg.MigrationsPath))
}
