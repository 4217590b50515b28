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
	"kanban-sync/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.RedisConnectionString == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := storage.ParseRedisOptions(cfg.RedisConnectionString)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := coordinator.NewHub()
	if cfg.Backend == config.BackendRedis {
		snap, ok, err := storage.NewRedis(rc).Load(ctx, cfg.BoardID)
		if err != nil {
			log.WithError(err).Warn("initial board load failed")
		} else if ok {
			hub.Publish(snap)
		}
	}

	logger := log.StandardLogger()
	go stream.SubscribeUpdates(ctx, logger, rc, cfg.Channel(), stream.Forward(hub, logger))

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	stream.Register(e, hub)

	e.Logger.Fatal(e.Start(":" + cfg.StreamServicePort))
}
