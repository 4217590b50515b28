package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"kanban-sync/config"
	"kanban-sync/storage"
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
	ctx := context.Background()

	if cfg.Backend == config.BackendSQLite {
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		log.WithField("path", cfg.SQLitePath).Info("sqlite schema ready")
	}

	if cfg.StorageConnectionString == "" {
		if cfg.Backend == config.BackendTable || cfg.JournalQueue != "" {
			log.Fatal("missing STORAGE_CONNECTION_STRING")
		}
		log.Info("storage init complete")
		return
	}

	if err := storage.CreateTables(ctx, cfg.StorageConnectionString, []string{cfg.BoardTable}); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if err := storage.CreateQueues(ctx, cfg.StorageConnectionString, []string{cfg.JournalQueue}); err != nil {
		log.Fatalf("create queues: %v", err)
	}

	log.Info("storage init complete")
}
