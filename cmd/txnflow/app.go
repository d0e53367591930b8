package main

import (
	"context"
	"fmt"

	"github.com/Veraticus/txnflow/internal/config"
	"github.com/Veraticus/txnflow/internal/consumer"
	"github.com/Veraticus/txnflow/internal/dispatch"
	"github.com/Veraticus/txnflow/internal/metrics"
	"github.com/Veraticus/txnflow/internal/monitor"
	"github.com/Veraticus/txnflow/internal/objectstore"
	"github.com/Veraticus/txnflow/internal/pattern"
	"github.com/Veraticus/txnflow/internal/producer"
	"github.com/Veraticus/txnflow/internal/storage"
	"go.uber.org/zap"
)

// app bundles the shared dependencies of every pipeline command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *storage.SQLStorage
	objects objectstore.ObjectStore
	metrics *metrics.Metrics
}

// openStorage connects to the configured database and applies migrations.
func openStorage(ctx context.Context, c *config.Config) (*storage.SQLStorage, error) {
	store, err := storage.Open(ctx, storage.Options{
		Driver:          c.Database.Driver,
		DSN:             c.Database.DSN,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// newApp opens the store and the object store. Either failing aborts before
// any worker starts.
func newApp(ctx context.Context, c *config.Config, l *zap.Logger) (*app, error) {
	store, err := openStorage(ctx, c)
	if err != nil {
		return nil, err
	}

	objects, err := objectstore.New(ctx, c.ObjectStore, l)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	return &app{
		cfg:     c,
		logger:  l,
		store:   store,
		objects: objects,
		metrics: metrics.New(),
	}, nil
}

func (a *app) Close() {
	if err := a.objects.Close(); err != nil {
		a.logger.Warn("failed to close object store", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
}

func (a *app) newProducer() *producer.ChunkProducer {
	return producer.New(a.store, a.objects, a.metrics, a.logger, producer.Config{
		InputPrefix:       a.cfg.ObjectStore.InputPrefix,
		ChunkSize:         a.cfg.Pipeline.ChunkSize,
		Interval:          a.cfg.Pipeline.ProduceInterval,
		StopWhenExhausted: a.cfg.Pipeline.StopWhenExhausted,
	})
}

func (a *app) newConsumer() *consumer.ChunkConsumer {
	detector := pattern.NewDetector(a.store, pattern.RulesFromConfig(a.cfg.Rules), a.metrics, a.logger)
	dispatcher := dispatch.New(a.store, a.objects, a.metrics, a.logger, dispatch.Config{
		Location:     a.cfg.DisplayLocation(),
		OutputPrefix: a.cfg.ObjectStore.OutputPrefix,
		BatchSize:    a.cfg.Pipeline.DetectionBatchSize,
	})
	return consumer.New(a.store, a.objects, detector, dispatcher, a.metrics, a.logger, consumer.Config{
		InputPrefix:     a.cfg.ObjectStore.InputPrefix,
		PollInterval:    a.cfg.Pipeline.PollInterval,
		StartDelay:      a.cfg.Pipeline.ConsumerStartDelay,
		StageRetryDelay: a.cfg.Pipeline.StageRetryDelay,
	})
}

func (a *app) monitorOptions() monitor.Options {
	return monitor.Options{
		InputPrefix:  a.cfg.ObjectStore.InputPrefix,
		OutputPrefix: a.cfg.ObjectStore.OutputPrefix,
		RecentLimit:  a.cfg.Pipeline.MonitorRecentLimit,
	}
}

// statusServer returns the status server, or nil when metrics are disabled.
func (a *app) statusServer(status monitor.StatusFunc) *monitor.Server {
	if !a.cfg.Metrics.Enabled {
		return nil
	}
	return monitor.NewServer(a.cfg.Metrics.Address, a.store, a.objects, a.metrics, status, a.monitorOptions(), a.logger)
}
