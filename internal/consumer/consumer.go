// Package consumer ingests chunk objects into the relational store and drives
// pattern detection and detection upload in a single sequential cycle.
package consumer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Veraticus/txnflow/internal/chunk"
	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/metrics"
	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/objectstore"
	"github.com/Veraticus/txnflow/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stage is a step of the consumer cycle.
type Stage string

// Cycle stages, in execution order.
const (
	StagePolling     Stage = "POLLING"
	StageIngesting   Stage = "INGESTING"
	StageDetecting   Stage = "DETECTING"
	StageDispatching Stage = "DISPATCHING"
)

// Detector evaluates every pattern rule and persists new detections.
type Detector interface {
	Detect(ctx context.Context, runStart time.Time) (int, error)
}

// Dispatcher uploads pending detections in batches.
type Dispatcher interface {
	DispatchPendingBatches(ctx context.Context) (int, error)
}

// Config holds the consumer knobs.
type Config struct {
	InputPrefix     string
	PollInterval    time.Duration
	StartDelay      time.Duration
	StageRetryDelay time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		InputPrefix:     model.DefaultInputPrefix,
		PollInterval:    time.Second,
		StartDelay:      2 * time.Second,
		StageRetryDelay: time.Second,
	}
}

// IngestResult summarizes one PollAndIngest call.
type IngestResult struct {
	Objects  int
	Inserted int
	Skipped  int
}

// StageError reports the cycle stage a failure happened in.
type StageError struct {
	Err   error
	Stage Stage
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ChunkConsumer polls the input prefix and keeps a process-local record of
// the objects it has fully ingested.
type ChunkConsumer struct {
	store      service.TransactionStore
	objects    objectstore.ObjectStore
	detector   Detector
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time

	seen     map[string]struct{}
	runStart time.Time
	runID    string
	config   Config
	stage    Stage
	// dirty is set when rows were inserted since the last successful detection.
	dirty bool
	mu    sync.RWMutex
}

// New creates a consumer. The detector and dispatcher may be nil, in which
// case the corresponding stages are skipped.
func New(store service.TransactionStore, objects objectstore.ObjectStore, detector Detector, dispatcher Dispatcher, m *metrics.Metrics, logger *zap.Logger, config Config) *ChunkConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.StageRetryDelay <= 0 {
		config.StageRetryDelay = config.PollInterval
	}
	runID := uuid.NewString()
	return &ChunkConsumer{
		store:      store,
		objects:    objects,
		detector:   detector,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.Named("consumer").With(zap.String("run_id", runID)),
		now:        time.Now,
		seen:       make(map[string]struct{}),
		runID:      runID,
		config:     config,
		stage:      StagePolling,
		dirty:      true,
	}
}

// RunID identifies this consumer instance in logs.
func (c *ChunkConsumer) RunID() string {
	return c.runID
}

// Stage returns the stage the current or last cycle is in.
func (c *ChunkConsumer) Stage() Stage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stage
}

func (c *ChunkConsumer) setStage(s Stage) {
	c.mu.Lock()
	c.stage = s
	c.mu.Unlock()
}

// Seen reports whether key has been fully ingested by this process.
func (c *ChunkConsumer) Seen(key string) bool {
	_, ok := c.seen[key]
	return ok
}

// PollAndIngest lists the input prefix and ingests every object not seen
// before, in key order. A key is recorded as seen only after its rows were
// committed, so a failure leaves it to be retried on the next poll. Objects
// that are listed but not yet readable are left for the next poll as well.
func (c *ChunkConsumer) PollAndIngest(ctx context.Context) (IngestResult, error) {
	var result IngestResult

	c.setStage(StagePolling)
	keys, err := c.objects.List(ctx, c.config.InputPrefix)
	if err != nil {
		return result, &StageError{Stage: StagePolling, Err: common.Transient("list chunks", err)}
	}

	c.setStage(StageIngesting)
	for _, key := range keys {
		if c.Seen(key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		body, err := c.objects.Get(ctx, key)
		if errors.Is(err, common.ErrNotFound) {
			c.logger.Debug("listed object not readable yet", zap.String("key", key))
			continue
		}
		if err != nil {
			return result, &StageError{Stage: StageIngesting, Err: common.Transient("read chunk "+key, err)}
		}

		res, err := chunk.Decode(bytes.NewReader(body), chunk.DecodeOptions{})
		if err != nil {
			// The object itself is unreadable; retrying cannot fix it.
			c.logger.Error("skipping malformed chunk", zap.String("key", key), zap.Error(err))
			c.metrics.Error("decode")
			c.seen[key] = struct{}{}
			continue
		}
		for _, skipped := range res.Skipped {
			c.logger.Debug("skipping malformed row", zap.String("key", key), zap.Error(skipped))
		}

		inserted := 0
		if len(res.Rows) > 0 {
			inserted, err = c.store.InsertTransactions(ctx, res.Rows)
			if err != nil {
				return result, &StageError{Stage: StageIngesting, Err: common.Transient("insert chunk "+key, err)}
			}
		}

		c.seen[key] = struct{}{}
		if inserted > 0 {
			c.dirty = true
		}
		result.Objects++
		result.Inserted += inserted
		result.Skipped += len(res.Skipped)
		c.metrics.ObjectIngested(inserted, len(res.Skipped))

		c.logger.Info("ingested chunk",
			zap.String("key", key),
			zap.Int("rows", len(res.Rows)),
			zap.Int("inserted", inserted),
			zap.Int("skipped", len(res.Skipped)))
	}

	return result, nil
}

// RunCycle performs one POLLING, INGESTING, DETECTING, DISPATCHING pass.
// Detection only runs when rows were inserted since the last successful
// detection. Dispatch runs every cycle so earlier failed uploads drain.
func (c *ChunkConsumer) RunCycle(ctx context.Context) error {
	if c.runStart.IsZero() {
		c.runStart = c.now()
	}
	started := time.Now()
	defer func() {
		c.metrics.ObserveCycle(time.Since(started).Seconds())
		c.setStage(StagePolling)
	}()

	if _, err := c.PollAndIngest(ctx); err != nil {
		return err
	}

	if c.detector != nil && c.dirty {
		c.setStage(StageDetecting)
		n, err := c.detector.Detect(ctx, c.runStart)
		if err != nil {
			return &StageError{Stage: StageDetecting, Err: common.Transient("detect patterns", err)}
		}
		c.dirty = false
		if n > 0 {
			c.logger.Info("recorded new detections", zap.Int("count", n))
		}
	}

	if c.dispatcher != nil {
		c.setStage(StageDispatching)
		n, err := c.dispatcher.DispatchPendingBatches(ctx)
		if err != nil {
			return &StageError{Stage: StageDispatching, Err: common.Transient("dispatch detections", err)}
		}
		if n > 0 {
			c.logger.Info("uploaded detection batches", zap.Int("batches", n))
		}
	}

	return nil
}

// Run waits the start delay and then runs cycles until ctx is canceled. A
// failed stage is logged and the next cycle starts after the retry delay.
func (c *ChunkConsumer) Run(ctx context.Context) error {
	c.runStart = c.now()
	c.logger.Info("consumer started",
		zap.String("prefix", c.config.InputPrefix),
		zap.Duration("start_delay", c.config.StartDelay))

	if !sleep(ctx, c.config.StartDelay) {
		return nil
	}

	for {
		delay := c.config.PollInterval
		if err := c.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			stage := StagePolling
			var stageErr *StageError
			if errors.As(err, &stageErr) {
				stage = stageErr.Stage
			}
			c.metrics.Error(string(stage))
			c.logger.Warn("consumer cycle failed, retrying",
				zap.String("stage", string(stage)),
				zap.Duration("delay", c.config.StageRetryDelay),
				zap.Error(err))
			delay = c.config.StageRetryDelay
		}

		if !sleep(ctx, delay) {
			break
		}
	}

	c.logger.Info("consumer stopped", zap.Int("objects_seen", len(c.seen)))
	return nil
}

// sleep waits for d and reports false if ctx was canceled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
