package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/classpoll/livepoll/internal/models"
)

// RedisConfig holds configuration for the Redis broadcaster.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	Key             string
	Channel         string
	RefreshInterval time.Duration
	OpTimeout       time.Duration
}

// DefaultRedisConfig returns the default Redis broadcaster configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:            "localhost:6379",
		Key:             "livepoll:session:state",
		Channel:         "livepoll:session:updates",
		RefreshInterval: 2 * time.Second,
		OpTimeout:       5 * time.Second,
	}
}

// Redis propagates snapshots through a shared Redis key plus a pub/sub
// nudge. Publish stores the snapshot and notifies subscribers; the refresh
// loop re-reads the key every cycle regardless, so a replica that missed the
// nudge converges on the next tick.
type Redis struct {
	client     *redis.Client
	config     RedisConfig
	clock      clockwork.Clock
	instanceID string
	onReceive  Receiver
}

// NewRedis connects to Redis and verifies connectivity.
func NewRedis(ctx context.Context, config RedisConfig, clock clockwork.Clock, onReceive Receiver) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{
		client:     client,
		config:     config,
		clock:      clock,
		instanceID: uuid.NewString(),
		onReceive:  onReceive,
	}, nil
}

// Publish stores the snapshot under the shared key and nudges subscribers.
func (b *Redis) Publish(ctx context.Context, state models.SessionState) error {
	data, err := encodeEnvelope(b.instanceID, b.clock.Now().UnixMilli(), state)
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, b.config.OpTimeout)
	defer cancel()
	if err := b.client.Set(opCtx, b.config.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if err := b.client.Publish(opCtx, b.config.Channel, data).Err(); err != nil {
		return fmt.Errorf("notify subscribers: %w", err)
	}
	return nil
}

// Start subscribes to update nudges and runs the refresh loop until the
// context is cancelled.
func (b *Redis) Start(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, b.config.Channel)
	defer pubsub.Close()
	messages := pubsub.Channel()

	// Seed from whatever snapshot is already stored.
	b.refresh(ctx)

	ticker := b.clock.NewTicker(b.config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("redis broadcaster shutting down")
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.install([]byte(msg.Payload))
		case <-ticker.Chan():
			b.refresh(ctx)
		}
	}
}

// Close releases the Redis connection.
func (b *Redis) Close() error {
	return b.client.Close()
}

// refresh re-reads the shared key. Transient errors are logged and the loop
// keeps ticking.
func (b *Redis) refresh(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, b.config.OpTimeout)
	defer cancel()
	data, err := b.client.Get(opCtx, b.config.Key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Error().Err(err).Msg("snapshot refresh failed")
		}
		return
	}
	b.install(data)
}

func (b *Redis) install(data []byte) {
	sender, state, err := decodeEnvelope(data)
	if err != nil {
		log.Error().Err(err).Msg("discarding undecodable snapshot")
		return
	}
	if sender == b.instanceID {
		return
	}
	b.onReceive(state)
}
