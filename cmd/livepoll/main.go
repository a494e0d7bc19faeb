package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classpoll/livepoll/internal/archive"
	"github.com/classpoll/livepoll/internal/broadcast"
	"github.com/classpoll/livepoll/internal/config"
	"github.com/classpoll/livepoll/internal/expiry"
	"github.com/classpoll/livepoll/internal/gateway"
	"github.com/classpoll/livepoll/internal/models"
	"github.com/classpoll/livepoll/internal/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("could not load .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clock := clockwork.NewRealClock()
	store := session.NewStore()
	hub := gateway.NewHub(gateway.DefaultHubConfig(), store.Read)

	// Inbound snapshots are authoritative: install them directly and let the
	// hub repaint local observers.
	onReceive := func(state models.SessionState) {
		store.Replace(state)
		if err := hub.Publish(ctx, state); err != nil {
			log.Error().Err(err).Msg("failed to push snapshot to observers")
		}
	}

	external, err := setupBroadcaster(ctx, cfg.Broadcast, clock, onReceive, store.Read)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up broadcaster")
	}

	engine := session.NewEngine(store, clock, broadcast.Multi(hub, external))

	repo := setupArchive(ctx, cfg.Archive, store)
	if repo != nil {
		defer repo.Close()
		go runArchiveLoop(ctx, clock, cfg.Archive, repo, store)
	}

	go hub.Start(ctx)
	go expiry.New(engine, clock, time.Duration(cfg.Expiry.TickSec)*time.Second).Run(ctx)

	server := setupServer(cfg.Server, gateway.NewHandler(engine, hub))
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("livepoll server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if repo != nil {
		if err := repo.SaveSnapshot(shutdownCtx, store.Read()); err != nil {
			log.Error().Err(err).Msg("final snapshot save failed")
		}
	}
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
}

// setupBroadcaster wires the configured propagation backend. The returned
// publisher is nil for the in-process backend: a single replica has nobody
// to converge with.
func setupBroadcaster(ctx context.Context, cfg config.BroadcastConfig, clock clockwork.Clock, onReceive broadcast.Receiver, source broadcast.StateSource) (broadcast.Publisher, error) {
	refresh := time.Duration(cfg.RefreshIntervalSec) * time.Second

	switch cfg.Backend {
	case "nats":
		natsCfg := broadcast.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Subject = cfg.NATS.Subject
		if refresh > 0 {
			natsCfg.RefreshInterval = refresh
		}
		b, err := broadcast.NewNATS(natsCfg, clock, onReceive, source)
		if err != nil {
			return nil, err
		}
		go b.Start(ctx)
		return b, nil

	case "redis":
		redisCfg := broadcast.DefaultRedisConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.Key = cfg.Redis.Key
		redisCfg.Channel = cfg.Redis.Channel
		if refresh > 0 {
			redisCfg.RefreshInterval = refresh
		}
		b, err := broadcast.NewRedis(ctx, redisCfg, clock, onReceive)
		if err != nil {
			return nil, err
		}
		go b.Start(ctx)
		return b, nil

	case "", "memory":
		log.Info().Msg("running single-process, no external broadcaster")
		return nil, nil

	default:
		return nil, errors.New("unknown broadcast backend: " + cfg.Backend)
	}
}

// setupArchive restores the last persisted snapshot when an archive DSN is
// configured.
func setupArchive(ctx context.Context, cfg config.ArchiveConfig, store *session.Store) *archive.Repository {
	if cfg.DSN == "" {
		return nil
	}
	repo, err := archive.NewRepository(ctx, cfg.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open snapshot archive")
	}
	state, err := repo.LoadLatest(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load archived snapshot, starting empty")
		return repo
	}
	store.Replace(state)
	log.Info().Int("polls", len(state.Polls)).Int("students", len(state.Students)).Msg("session restored from archive")
	return repo
}

func runArchiveLoop(ctx context.Context, clock clockwork.Clock, cfg config.ArchiveConfig, repo *archive.Repository, store *session.Store) {
	interval := time.Duration(cfg.SaveIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := repo.SaveSnapshot(ctx, store.Read()); err != nil {
				log.Error().Err(err).Msg("periodic snapshot save failed")
			}
		}
	}
}
