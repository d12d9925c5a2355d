package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"organizer/config"
	"organizer/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if cfg.StorageConnectionString == "" && cfg.DatabaseURL == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING or DATABASE_URL")
	}

	if cfg.StorageConnectionString != "" {
		tables, err := storage.NewTables(cfg.StorageConnectionString, cfg.ItemsTable, cfg.FoldersTable)
		if err != nil {
			log.Fatalf("tables client: %v", err)
		}
		if err := tables.EnsureTables(ctx); err != nil {
			log.Fatalf("create tables: %v", err)
		}
		log.WithFields(log.Fields{"items": cfg.ItemsTable, "folders": cfg.FoldersTable}).Info("tables ready")
	}

	if cfg.DatabaseURL != "" {
		db, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		if err := storage.ApplyMigrations(ctx, db); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		log.Info("schema ready")
	}

	log.Info("storage init complete")
}
