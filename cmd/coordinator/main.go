package main

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-sync/config"
	"kanban-sync/coordinator"
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
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	var rc *redis.Client
	if cfg.RedisConnectionString != "" {
		redisOpts, err := storage.ParseRedisOptions(cfg.RedisConnectionString)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(redisOpts)
		defer rc.Close()
	}

	store, closeStore, err := openStore(cfg, rc)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	opts := coordinator.Options{
		BoardID: cfg.BoardID,
		Store:   store,
		Logger:  log.StandardLogger(),
	}
	if rc != nil {
		opts.Deduper = coordinator.NewRedisDeduper(rc, cfg.DeduperTTL)
		if cfg.Backend != config.BackendRedis || cfg.UpdatesChannel != "" {
			opts.Relay = storage.NewRelay(rc, cfg.UpdatesChannel)
		}
	} else {
		opts.Deduper = coordinator.NewMemoryDeduper(cfg.DeduperTTL)
	}
	if cfg.JournalQueue != "" {
		journal, err := storage.NewJournal(cfg.StorageConnectionString, cfg.JournalQueue)
		if err != nil {
			log.Fatalf("journal: %v", err)
		}
		opts.Journal = journal
	}

	coord, err := coordinator.New(ctx, opts)
	if err != nil {
		log.Fatalf("coordinator: %v", err)
	}
	log.WithFields(log.Fields{
		"board":   cfg.BoardID,
		"backend": cfg.Backend,
		"version": coord.Snapshot().Version,
	}).Info("coordinator ready")

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	coordinator.Register(e, coord)

	e.Logger.Fatal(e.Start(":" + cfg.CoordinatorPort))
}

func openStore(cfg *config.Config, rc *redis.Client) (coordinator.Store, func(), error) {
	var (
		store   coordinator.Store
		closeFn = func() {}
	)
	switch cfg.Backend {
	case config.BackendRedis:
		store = storage.NewRedis(rc)
	case config.BackendSQLite:
		s, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store = s
		closeFn = func() {
			if err := s.Close(); err != nil {
				log.WithError(err).Error("close sqlite")
			}
		}
	case config.BackendTable:
		t, err := storage.NewTable(cfg.StorageConnectionString, cfg.BoardTable)
		if err != nil {
			return nil, nil, err
		}
		store = t
	default:
		store = storage.NewMemory()
	}
	if cfg.BoardCacheTTL > 0 && cfg.Backend != config.BackendRedis {
		store = storage.NewCache(store, rc, cfg.BoardCacheTTL)
	}
	return store, closeFn, nil
}
