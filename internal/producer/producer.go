// Package producer streams the source dataset into the object store as
// fixed-size chunk objects, advancing a persisted cursor after each write.
package producer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Veraticus/txnflow/internal/chunk"
	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/metrics"
	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/objectstore"
	"github.com/Veraticus/txnflow/internal/service"
	"github.com/Veraticus/txnflow/internal/source"
	"go.uber.org/zap"
)

// State is the producer lifecycle state.
type State string

// Producer states, in lifecycle order.
const (
	StateIdle      State = "IDLE"
	StateLoading   State = "LOADING"
	StateStreaming State = "STREAMING"
	StateDone      State = "DONE"
)

var allStates = []string{string(StateIdle), string(StateLoading), string(StateStreaming), string(StateDone)}

// ErrNotLoaded is returned when chunks are requested before the dataset is loaded.
var ErrNotLoaded = errors.New("dataset not loaded")

// Store is the persistence the producer needs.
type Store interface {
	service.CheckpointStore
	UpsertCustomerImportance(ctx context.Context, weights []model.CustomerImportance) error
}

// Config holds the producer knobs.
type Config struct {
	InputPrefix       string
	ChunkSize         int
	Interval          time.Duration
	StopWhenExhausted bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		InputPrefix:       model.DefaultInputPrefix,
		ChunkSize:         10000,
		Interval:          time.Second,
		StopWhenExhausted: true,
	}
}

// Chunk describes one written chunk object.
type Chunk struct {
	Key   string
	Range model.ChunkRange
	Seq   int
	Total int
}

// ChunkProducer owns the dataset and the producer cursor.
type ChunkProducer struct {
	store   Store
	objects objectstore.ObjectStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	dataset *source.Dataset
	now     func() time.Time

	// OnChunk, when set, is called after every committed chunk.
	OnChunk func(Chunk)

	config Config
	state  State
	mu     sync.RWMutex
}

// New creates a producer in the IDLE state.
func New(store Store, objects objectstore.ObjectStore, m *metrics.Metrics, logger *zap.Logger, config Config) *ChunkProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultConfig().ChunkSize
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &ChunkProducer{
		store:   store,
		objects: objects,
		metrics: m,
		logger:  logger.Named("producer"),
		now:     time.Now,
		config:  config,
		state:   StateIdle,
	}
}

// State returns the current lifecycle state.
func (p *ChunkProducer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *ChunkProducer) setState(s State) {
	p.mu.Lock()
	changed := p.state != s
	p.state = s
	p.mu.Unlock()

	if changed {
		p.logger.Info("producer state changed", zap.String("state", string(s)))
		p.metrics.SetProducerState(string(s), allStates...)
	}
}

// Total returns the number of dataset rows, or 0 before loading.
func (p *ChunkProducer) Total() int {
	if p.dataset == nil {
		return 0
	}
	return p.dataset.Len()
}

// SetDataset installs an already loaded dataset.
func (p *ChunkProducer) SetDataset(d *source.Dataset) {
	p.dataset = d
}

// Load reads the dataset from src once and upserts the customer importance
// table. The producer stays in LOADING until it returns.
func (p *ChunkProducer) Load(ctx context.Context, src source.Source) error {
	p.setState(StateLoading)

	dataset, err := source.LoadDataset(ctx, src, p.logger)
	if err != nil {
		return err
	}

	weights, err := source.LoadImportance(ctx, src, p.logger)
	if err != nil {
		return err
	}
	if len(weights) > 0 {
		if err := p.store.UpsertCustomerImportance(ctx, weights); err != nil {
			return common.Transient("upsert customer importance", err)
		}
	}

	p.dataset = dataset
	return nil
}

// ProduceNextChunk writes the rows at the cursor as one chunk object and only
// then advances the cursor. It returns common.ErrExhausted once every row has
// been produced. A failed write leaves the cursor where it was, so the next
// call reproduces the same range under a fresh key.
func (p *ChunkProducer) ProduceNextChunk(ctx context.Context) (Chunk, error) {
	if p.dataset == nil {
		return Chunk{}, ErrNotLoaded
	}

	cp, err := p.store.GetCheckpoint(ctx)
	if err != nil {
		return Chunk{}, common.Transient("read checkpoint", err)
	}

	total := p.dataset.Len()
	if cp.NextRow >= total {
		return Chunk{}, common.ErrExhausted
	}

	end := cp.NextRow + p.config.ChunkSize
	if end > total {
		end = total
	}
	c := Chunk{
		Key:   model.ChunkKey(p.config.InputPrefix, cp.NextChunkSeq, p.now()),
		Range: model.ChunkRange{Start: cp.NextRow, End: end},
		Seq:   cp.NextChunkSeq,
		Total: total,
	}

	body, err := chunk.Marshal(p.dataset.Slice(c.Range.Start, c.Range.End))
	if err != nil {
		return Chunk{}, fmt.Errorf("failed to encode chunk %s: %w", c.Range, err)
	}

	metadata := map[string]string{
		"start-row": strconv.Itoa(c.Range.Start),
		"end-row":   strconv.Itoa(c.Range.End),
	}
	if err := p.objects.Put(ctx, c.Key, body, metadata); err != nil {
		return Chunk{}, common.Transient("write chunk", err)
	}

	// The chunk is already written; move the cursor past it even if ctx was
	// canceled meanwhile.
	advanceCtx, cancel := common.Detached(ctx)
	err = p.store.AdvanceCheckpoint(advanceCtx, c.Range.Start, c.Range.End)
	cancel()
	if err != nil {
		return Chunk{}, common.Transient("advance checkpoint", err)
	}

	p.metrics.ChunkProduced(c.Range.Len(), c.Range.End)
	p.logger.Debug("produced chunk",
		zap.String("key", c.Key),
		zap.Stringer("range", c.Range),
		zap.Int("total", total))

	if p.OnChunk != nil {
		p.OnChunk(c)
	}
	return c, nil
}

// Run produces one chunk per interval until the dataset is exhausted or ctx
// is canceled. Failures are logged and retried on the next tick.
func (p *ChunkProducer) Run(ctx context.Context) error {
	if p.dataset == nil {
		return ErrNotLoaded
	}
	p.setState(StateStreaming)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		_, err := p.ProduceNextChunk(ctx)
		switch {
		case errors.Is(err, common.ErrExhausted):
			if p.State() != StateDone {
				p.setState(StateDone)
				p.logger.Info("all rows produced", zap.Int("total", p.dataset.Len()))
			}
			if p.config.StopWhenExhausted {
				return nil
			}
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			p.metrics.Error("produce")
			p.logger.Warn("failed to produce chunk, retrying next interval", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("producer stopped")
			return nil
		case <-ticker.C:
		}
	}
}
