// Package app assembles the process-wide services and hands them to modules
// through a samber/do injector.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/do/v2"

	"github.com/nfrund/hexarena/internal/broadcast"
	"github.com/nfrund/hexarena/internal/config"
	"github.com/nfrund/hexarena/internal/database"
	"github.com/nfrund/hexarena/internal/decision"
	"github.com/nfrund/hexarena/internal/decision/scripts"
	"github.com/nfrund/hexarena/internal/pubsub"
	"github.com/nfrund/hexarena/internal/session"
	"github.com/nfrund/hexarena/internal/sponsor"
	"github.com/nfrund/hexarena/internal/storage"
	"github.com/nfrund/hexarena/internal/telemetry"
	"github.com/nfrund/hexarena/internal/topics"
)

// BundledScriptPrefix selects a script shipped with the binary, as in
// DECISION_SCRIPT=bundled:hunter.
const BundledScriptPrefix = "bundled:"

// ScriptReloaded is published when the decision script changes on disk.
type ScriptReloaded struct {
	Path    string `json:"path"`
	Version int    `json:"version"`
}

var scriptReloadedEvent = pubsub.NewEvent[ScriptReloaded](topics.BattleDecisionScript)

// Container owns the injector and the teardown of everything it built.
type Container struct {
	Injector do.Injector
	closers  []func(context.Context) error
}

// New builds the shared services from configuration. On error everything
// already started is torn down.
func New(ctx context.Context, cfg config.Provider, logger *slog.Logger) (_ *Container, err error) {
	c := &Container{Injector: do.New()}
	defer func() {
		if err != nil {
			_ = c.Shutdown(context.Background())
		}
	}()
	i := c.Injector
	do.ProvideValue(i, cfg)
	do.ProvideValue(i, logger)

	tracer, shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.GetTracingEnabled(),
		ServiceName: cfg.GetTracingServiceName(),
		ZipkinURL:   cfg.GetTracingZipkinURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	c.onShutdown(shutdownTracing)
	do.ProvideValue(i, tracer)

	bus := pubsub.NewWatermillBus(pubsub.WithTracer(tracer), pubsub.WithLogger(logger))
	c.onShutdown(func(context.Context) error { return bus.Close() })
	do.ProvideValue[pubsub.Bus](i, bus)

	store, err := c.snapshotStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	do.ProvideValue(i, store)

	decisions, err := c.decisionProvider(cfg, bus, logger)
	if err != nil {
		return nil, err
	}

	sponsors := sponsor.NewQueue()
	do.ProvideValue(i, sponsors)

	battles := session.NewRegistry(session.Options{
		Countdown:       cfg.GetCountdown(),
		EpochInterval:   cfg.GetEpochInterval(),
		DecisionTimeout: cfg.GetDecisionTimeout(),
		RetryDelay:      cfg.GetRetryDelay(),
	}, session.Deps{
		Store:     store,
		Decisions: decisions,
		Sponsors:  sponsors,
		Observers: func(battleID string) []broadcast.Observer {
			return []broadcast.Observer{broadcast.NewBusObserver(battleID, bus)}
		},
		Hooks:  []session.CompletionHook{session.PublishCompletion(bus)},
		Tracer: tracer,
		Logger: logger,
	})
	c.onShutdown(func(context.Context) error {
		battles.Close()
		return nil
	})
	do.ProvideValue(i, battles)
	return c, nil
}

func (c *Container) onShutdown(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Shutdown tears services down in reverse order of construction.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	for n := len(c.closers) - 1; n >= 0; n-- {
		if err := c.closers[n](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) snapshotStore(ctx context.Context, cfg config.Provider, logger *slog.Logger) (storage.SnapshotStore, error) {
	switch cfg.GetSnapshotBackend() {
	case config.BackendSurreal:
		conn := database.NewConnection(cfg)
		if err := conn.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect snapshot database: %w", err)
		}
		conn.StartMonitoring()
		c.onShutdown(conn.Close)
		logger.Info("Using SurrealDB snapshot store", "namespace", cfg.GetDBNs(), "database", cfg.GetDBDb())
		return database.NewSurrealStore(conn), nil
	default:
		store, err := storage.NewOsFileStore(cfg.GetSnapshotDir())
		if err != nil {
			return nil, fmt.Errorf("open snapshot dir: %w", err)
		}
		logger.Info("Using file snapshot store", "dir", cfg.GetSnapshotDir())
		return store, nil
	}
}

// decisionProvider returns nil for the default bots, which are then seeded
// per battle.
func (c *Container) decisionProvider(cfg config.Provider, pub pubsub.Publisher, logger *slog.Logger) (decision.Provider, error) {
	path := cfg.GetDecisionScript()
	if path == "" {
		logger.Info("Using built-in bots for decisions")
		return nil, nil
	}
	if name, ok := strings.CutPrefix(path, BundledScriptPrefix); ok {
		src, ok := scripts.Bundled()[name]
		if !ok {
			return nil, fmt.Errorf("no bundled decision script %q", name)
		}
		p, err := decision.NewScriptProvider(name, []byte(src))
		if err != nil {
			return nil, err
		}
		logger.Info("Using bundled decision script", "script", name)
		return p, nil
	}

	p, err := decision.NewScriptProviderFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load decision script: %w", err)
	}
	p.OnReload = func(path string, version int) {
		if err := pubsub.Publish(context.Background(), pub, scriptReloadedEvent, "", ScriptReloaded{Path: path, Version: version}); err != nil {
			logger.Warn("Failed to announce script reload", "path", path, "error", err)
		}
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	c.onShutdown(func(context.Context) error {
		cancel()
		return nil
	})
	if err := p.Watch(watchCtx); err != nil {
		return nil, fmt.Errorf("watch decision script: %w", err)
	}
	logger.Info("Using scripted decisions", "path", path, "version", p.Version())
	return p, nil
}
