package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/playsync/internal/service/relay"
)

const (
	channelPrefix = "room:"
	channelSuffix = ":bus"
)

var (
	ErrAlreadySubscribed  = errors.New("already subscribed")
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// Envelope carries deliveries for connections terminated on other instances.
type Envelope struct {
	InstanceID string           `json:"instance_id"`
	RoomID     string           `json:"room_id"`
	Deliveries []relay.Delivery `json:"deliveries"`
}

// Fanout shares room deliveries between relay instances over redis pub/sub.
type Fanout struct {
	rc         *redis.Client
	instanceID string
	subscribed atomic.Bool
	logger     *slog.Logger
}

func NewFanout(rc *redis.Client, instanceID string, logger *slog.Logger) *Fanout {
	return &Fanout{
		rc:         rc,
		instanceID: instanceID,
		logger:     logger,
	}
}

func channel(roomID string) string {
	return channelPrefix + roomID + channelSuffix
}

func (f *Fanout) Publish(ctx context.Context, roomID string, deliveries []relay.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	data, err := json.Marshal(Envelope{
		InstanceID: f.instanceID,
		RoomID:     roomID,
		Deliveries: deliveries,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := f.rc.Publish(ctx, channel(roomID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}

	return nil
}

// Subscribe calls handler for every envelope published by another instance
// until ctx is done. onReady, if not nil, runs once the subscription is
// active.
func (f *Fanout) Subscribe(ctx context.Context, onReady func(), handler func(context.Context, Envelope)) error {
	if !f.subscribed.CompareAndSwap(false, true) {
		return ErrAlreadySubscribed
	}
	defer f.subscribed.Store(false)

	pubsub := f.rc.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if onReady != nil {
		onReady()
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrSubscriptionClosed
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				f.logger.WarnContext(ctx, "failed to unmarshal envelope", "channel", msg.Channel, "error", err)
				continue
			}

			if env.InstanceID == f.instanceID {
				continue
			}
			if env.RoomID == "" {
				env.RoomID = strings.TrimSuffix(strings.TrimPrefix(msg.Channel, channelPrefix), channelSuffix)
			}

			handler(ctx, env)
		}
	}
}
