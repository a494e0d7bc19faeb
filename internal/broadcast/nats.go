package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/classpoll/livepoll/internal/models"
)

// NATSConfig holds configuration for the NATS broadcaster.
type NATSConfig struct {
	URL             string
	Subject         string
	RefreshInterval time.Duration
	MaxReconnects   int
	ReconnectWait   time.Duration
}

// DefaultNATSConfig returns the default NATS broadcaster configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:             nats.DefaultURL,
		Subject:         "livepoll.session.state",
		RefreshInterval: 2 * time.Second,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
	}
}

// NATS propagates snapshots over a NATS subject. Each commit is published to
// every replica; replicas that joined late or missed a delivery catch up
// through periodic sync requests answered by any replica holding state.
type NATS struct {
	nc         *nats.Conn
	config     NATSConfig
	clock      clockwork.Clock
	instanceID string
	onReceive  Receiver
	source     StateSource
}

// NewNATS connects to NATS and subscribes to the session subject. Inbound
// snapshots are handed to onReceive; sync requests are answered from source.
func NewNATS(config NATSConfig, clock clockwork.Clock, onReceive Receiver, source StateSource) (*NATS, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := &NATS{
		nc:         nc,
		config:     config,
		clock:      clock,
		instanceID: uuid.NewString(),
		onReceive:  onReceive,
		source:     source,
	}

	if _, err := nc.Subscribe(config.Subject, b.handleSnapshot); err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", config.Subject, err)
	}
	if _, err := nc.Subscribe(b.syncSubject(), b.handleSyncRequest); err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.syncSubject(), err)
	}

	return b, nil
}

// Publish broadcasts a committed snapshot to the other replicas.
func (b *NATS) Publish(_ context.Context, state models.SessionState) error {
	data, err := encodeEnvelope(b.instanceID, b.clock.Now().UnixMilli(), state)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(b.config.Subject, data); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Start runs the periodic refresh loop until the context is cancelled. Each
// cycle requests the latest snapshot from whichever replica answers first,
// masking missed or out-of-order deliveries.
func (b *NATS) Start(ctx context.Context) {
	b.requestSync()

	ticker := b.clock.NewTicker(b.config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("NATS broadcaster shutting down")
			return
		case <-ticker.Chan():
			b.requestSync()
		}
	}
}

// Close drains the connection.
func (b *NATS) Close() {
	b.nc.Close()
}

func (b *NATS) syncSubject() string {
	return b.config.Subject + ".sync"
}

func (b *NATS) handleSnapshot(msg *nats.Msg) {
	sender, state, err := decodeEnvelope(msg.Data)
	if err != nil {
		log.Error().Err(err).Msg("discarding undecodable snapshot")
		return
	}
	if sender == b.instanceID {
		return
	}
	b.onReceive(state)
}

func (b *NATS) handleSyncRequest(msg *nats.Msg) {
	if msg.Reply == "" || b.source == nil {
		return
	}
	data, err := encodeEnvelope(b.instanceID, b.clock.Now().UnixMilli(), b.source())
	if err != nil {
		log.Error().Err(err).Msg("failed to encode sync reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Error().Err(err).Msg("failed to answer sync request")
	}
}

func (b *NATS) requestSync() {
	msg, err := b.nc.Request(b.syncSubject(), nil, b.config.ReconnectWait)
	if err != nil {
		// No peer is up yet, or the request timed out. The next cycle
		// retries.
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrTimeout) {
			return
		}
		log.Error().Err(err).Msg("sync request failed")
		return
	}
	sender, state, err := decodeEnvelope(msg.Data)
	if err != nil {
		log.Error().Err(err).Msg("discarding undecodable sync reply")
		return
	}
	if sender == b.instanceID {
		return
	}
	b.onReceive(state)
}
