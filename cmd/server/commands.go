package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/example/catalog/internal/config"
	"github.com/example/catalog/internal/database"
	"github.com/example/catalog/internal/logger"
	"github.com/example/catalog/internal/repositories"
	"github.com/example/catalog/internal/routes"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer closeDB(db)
		log.Info("migrations applied")
		return nil
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Inspect or repair the category tree",
}

var treeCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the nested-set bounds of every category",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer closeDB(db)

		if err := repositories.NewCategoryTree(db).Check(cmd.Context()); err != nil {
			return err
		}
		log.Info("category tree is consistent")
		return nil
	},
}

var treeRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute category bounds from parent links",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer closeDB(db)

		tree := repositories.NewCategoryTree(db)
		if err := tree.Rebuild(cmd.Context()); err != nil {
			return err
		}
		return tree.Check(cmd.Context())
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeDB(db)

	app := routes.NewApp(db, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on :%s", cfg.AppPort)
		errCh <- app.Listen(":" + cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fiber.Listen error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func bootstrap() (*config.Config, *logrus.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// bootLog is usable before configuration has been read.
func bootLog() *logrus.Logger {
	return logger.L()
}
