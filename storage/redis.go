package storage

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
)

// Redis stores the canonical snapshot as JSON and publishes every saved
// snapshot on the board's updates channel so stream services can relay it.
// Publishing is best effort: once the SET succeeds the snapshot is stored.
type Redis struct {
	client *redis.Client
	log    *log.Logger
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, log: log.StandardLogger()}
}

// WithLogger sets the logger used for publish failures.
func (r *Redis) WithLogger(logger *log.Logger) *Redis {
	if logger != nil {
		r.log = logger
	}
	return r
}

func BoardKey(boardID string) string {
	return "board:" + boardID
}

// UpdatesChannel is the pub/sub channel carrying snapshots of one board.
func UpdatesChannel(boardID string) string {
	return "board-updates:" + boardID
}

func (r *Redis) Load(ctx context.Context, boardID string) (domain.Snapshot, bool, error) {
	data, err := r.client.Get(ctx, BoardKey(boardID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, false, nil
		}
		return domain.Snapshot{}, false, fmt.Errorf("failed to read board from Redis: %w", err)
	}
	var s domain.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("failed to decode board %s: %w", boardID, err)
	}
	return s, true, nil
}

func (r *Redis) Save(ctx context.Context, boardID string, s domain.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode board %s: %w", boardID, err)
	}
	if err := r.client.Set(ctx, BoardKey(boardID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write board to Redis: %w", err)
	}
	if err := r.client.Publish(ctx, UpdatesChannel(boardID), data).Err(); err != nil {
		r.log.WithError(err).WithFields(log.Fields{
			"board":   boardID,
			"version": s.Version,
		}).Warn("failed to publish board update")
	}
	return nil
}

// Relay publishes snapshots on an updates channel without storing them.
// It lets non-redis backends feed the stream service. An empty channel
// means the board's UpdatesChannel.
type Relay struct {
	client  *redis.Client
	channel string
}

func NewRelay(client *redis.Client, channel string) *Relay {
	return &Relay{client: client, channel: channel}
}

func (r *Relay) Publish(ctx context.Context, boardID string, s domain.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode board %s: %w", boardID, err)
	}
	channel := r.channel
	if channel == "" {
		channel = UpdatesChannel(boardID)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish board update: %w", err)
	}
	return nil
}

// ParseRedisOptions accepts either a redis:// URL or the Azure style
// "host:port,password=...,ssl=true" connection string.
func ParseRedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
