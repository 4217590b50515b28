package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-sync/coordinator"
	"kanban-sync/domain"
)

const resubscribeDelay = time.Second

// SubscribeUpdates listens for snapshots published on channel and hands each
// decoded snapshot to publish. It resubscribes when the pub/sub connection
// drops and returns when ctx ends.
func SubscribeUpdates(
	ctx context.Context,
	logger *log.Logger,
	rc *redis.Client,
	channel string,
	publish func(domain.Snapshot),
) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var snap domain.Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					logger.WithError(err).WithField("channel", channel).Error("unable to parse update")
					continue
				}
				publish(snap)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.WithField("channel", channel).Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

// Forward returns a publish callback for SubscribeUpdates that feeds hub.
// A version lower than the hub's latest means the coordinator restarted, so
// the hub is replaced instead of ignoring every snapshot until it catches up.
func Forward(hub *coordinator.Hub, logger *log.Logger) func(domain.Snapshot) {
	return func(s domain.Snapshot) {
		if latest, ok := hub.Latest(); ok && s.Version < latest.Version {
			logger.WithFields(log.Fields{
				"version":  s.Version,
				"previous": latest.Version,
			}).Warn("board version went backwards, resetting stream")
			hub.Replace(s)
			return
		}
		if hub.Publish(s) {
			logger.WithField("version", s.Version).Debug("board update relayed")
		}
	}
}
