package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"guidechat/internal/config"
	"guidechat/internal/conversation"
	"guidechat/internal/health"
	"guidechat/internal/models"
	"guidechat/internal/redis"
	"guidechat/internal/render"
	"guidechat/internal/storage"
	"guidechat/internal/transport"
)

// session wires one conversation: transport, health monitor, controller and
// the configured event sinks.
type session struct {
	cfg        *config.Config
	logger     zerolog.Logger
	client     *transport.Client
	monitor    *health.Monitor
	controller *conversation.Controller
	store      *storage.TurnStore

	done    chan struct{}
	cancel  context.CancelFunc
	closers []func()
}

func newSession(cfg *config.Config, logger zerolog.Logger, renderers ...conversation.Renderer) (*session, error) {
	s := &session{cfg: cfg, logger: logger}
	s.client = transport.NewClient(cfg.BackendURL(), transport.WithLogger(logger))
	s.monitor = health.NewMonitor(s.client, logger)

	sinks := append([]conversation.Renderer{}, renderers...)
	sinks = append(sinks, render.Metrics{})

	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		publisher := render.NewPublisher(rdb, cfg.BasicConfig.EventBufferSize, cfg.BasicConfig.PreviewLengthChars, logger)
		sinks = append(sinks, publisher)
		s.closers = append(s.closers, publisher.Close, func() { rdb.Close() })
		logger.Info().Str("channel", rdb.Channel()).Msg("publishing session events to redis")
	}

	if cfg.Journal.Enabled {
		store, closeDB, err := openJournal(cfg)
		if err != nil {
			s.close()
			return nil, err
		}
		s.store = store
		journal := render.NewJournal(store, logger)
		sinks = append(sinks, journal)
		s.closers = append(s.closers, journal.Close, closeDB)
		logger.Info().Str("driver", cfg.Journal.Driver).Msg("turn journal enabled")
	}

	s.controller = conversation.NewController(
		conversation.NewState(),
		s.client,
		render.NewMulti(sinks...),
		conversation.WithTurnTimeout(cfg.TurnTimeout()),
		conversation.WithLogger(logger),
	)
	return s, nil
}

func openJournal(cfg *config.Config) (*storage.TurnStore, func(), error) {
	db, err := storage.Open(cfg.Journal.Driver, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal database: %w", err)
	}
	if err := storage.Migrate(db, cfg.Journal.Driver); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate journal database: %w", err)
	}
	return storage.NewTurnStore(db), func() { db.Close() }, nil
}

// start runs the controller loop in the background.
func (s *session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.controller.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("conversation controller stopped")
		}
	}()
}

// refresh performs one status check and applies it to the controller.
func (s *session) refresh(ctx context.Context) (models.SystemStatus, error) {
	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout())
	defer cancel()
	status := s.monitor.Evaluate(checkCtx)
	return status, s.controller.ApplyStatus(ctx, status)
}

// close stops the controller, then flushes and closes the sinks.
func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	for _, fn := range s.closers {
		fn()
	}
	s.closers = nil
}
