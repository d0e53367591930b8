// Package dispatch uploads persisted detections to the output prefix in
// fixed-size CSV batches.
package dispatch

import (
	"context"
	"strconv"
	"time"

	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/metrics"
	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/objectstore"
	"github.com/Veraticus/txnflow/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the dispatcher knobs.
type Config struct {
	Location     *time.Location
	OutputPrefix string
	BatchSize    int
}

// UploadDispatcher drains pending detections.
type UploadDispatcher struct {
	store   service.DetectionStore
	objects objectstore.ObjectStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	lastKey time.Time
	config  Config
}

// New creates a dispatcher.
func New(store service.DetectionStore, objects objectstore.ObjectStore, m *metrics.Metrics, logger *zap.Logger, config Config) *UploadDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.OutputPrefix == "" {
		config.OutputPrefix = model.DefaultOutputPrefix
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &UploadDispatcher{
		store:   store,
		objects: objects,
		metrics: m,
		logger:  logger.Named("dispatcher"),
		now:     time.Now,
		config:  config,
	}
}

// DispatchPendingBatches writes pending detections, oldest first, one batch
// per object, and marks exactly the written ids uploaded after each write.
// It returns the number of batches uploaded. If a mark fails the batch stays
// pending and is written again by the next call, so a detection can be
// uploaded twice but never dropped.
func (d *UploadDispatcher) DispatchPendingBatches(ctx context.Context) (int, error) {
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return batches, err
		}

		pending, err := d.store.PendingDetections(ctx, d.config.BatchSize)
		if err != nil {
			return batches, common.Transient("fetch pending detections", err)
		}
		if len(pending) == 0 {
			return batches, nil
		}

		body, err := Marshal(pending, d.config.Location)
		if err != nil {
			return batches, err
		}

		key := model.DetectionBatchKey(d.config.OutputPrefix, d.keyTime())
		metadata := map[string]string{
			"batch-id":   uuid.NewString(),
			"detections": strconv.Itoa(len(pending)),
		}
		if err := d.objects.Put(ctx, key, body, metadata); err != nil {
			return batches, common.Transient("write detection batch", err)
		}

		ids := make([]int64, len(pending))
		for i, det := range pending {
			ids[i] = det.ID
		}
		// The batch is already written; finish the mark even if ctx was
		// canceled meanwhile.
		markCtx, cancel := common.Detached(ctx)
		err = d.store.MarkUploaded(markCtx, ids)
		cancel()
		if err != nil {
			d.logger.Warn("batch written but not marked, it will be written again",
				zap.String("key", key), zap.Int("detections", len(ids)))
			return batches, common.Transient("mark detections uploaded", err)
		}

		batches++
		d.metrics.BatchUploaded()
		d.logger.Info("uploaded detection batch",
			zap.String("key", key),
			zap.Int("detections", len(pending)))
	}
}

// keyTime returns a timestamp strictly after the previous key's, so batches
// written within the same clock tick get distinct keys.
func (d *UploadDispatcher) keyTime() time.Time {
	t := d.now()
	if !t.After(d.lastKey) {
		t = d.lastKey.Add(time.Nanosecond)
	}
	d.lastKey = t
	return t
}
