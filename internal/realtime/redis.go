package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisRelay publishes events on a Redis pub/sub channel and feeds events
// received on that channel into a local Broker, so every server instance
// delivers every event to its own subscribers.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   *Broker
}

// NewRedisRelay connects to the Redis server at url (redis://...).
func NewRedisRelay(ctx context.Context, url, channel string, local *Broker) (*RedisRelay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return &RedisRelay{client: client, channel: channel, local: local}, nil
}

// Publish sends e to every instance, this one included. Failures are logged
// and the event is dropped.
func (r *RedisRelay) Publish(e Event) {
	buf, err := msgpack.Marshal(&e)
	if err != nil {
		log.Error().Err(err).Str("event", e.Name).Msg("could not encode event for redis")
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, buf).Err(); err != nil {
		log.Warn().Err(err).Str("event", e.Name).Msg("could not publish event to redis")
	}
}

// Run forwards events from the Redis channel to the local broker until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("could not subscribe to %s: %w", r.channel, err)
	}
	log.Info().Str("channel", r.channel).Msg("relaying events through redis")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var e Event
			if err := msgpack.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Warn().Err(err).Msg("discarding malformed event from redis")
				continue
			}
			r.local.Publish(e)
		}
	}
}

// Close releases the Redis connection.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
