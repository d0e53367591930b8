// Package monitor collects read-only pipeline snapshots and serves them,
// together with the Prometheus metrics, over HTTP.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/objectstore"
	"github.com/Veraticus/txnflow/internal/service"
)

// Options selects what a snapshot includes.
type Options struct {
	InputPrefix  string
	OutputPrefix string
	RecentLimit  int
}

// PatternCount is the number of detections for one pattern.
type PatternCount struct {
	PatternID  model.PatternID  `json:"pattern_id"`
	ActionType model.ActionType `json:"action_type"`
	Count      int64            `json:"count"`
}

// Detection is the monitor view of a recorded detection.
type Detection struct {
	DetectionTime time.Time        `json:"detection_time"`
	PatternID     model.PatternID  `json:"pattern_id"`
	ActionType    model.ActionType `json:"action_type"`
	CustomerName  string           `json:"customer_name,omitempty"`
	MerchantID    string           `json:"merchant_id"`
	Uploaded      bool             `json:"uploaded"`
}

// Snapshot is a point-in-time view of the pipeline.
type Snapshot struct {
	TakenAt           time.Time         `json:"taken_at"`
	CheckpointUpdated time.Time         `json:"checkpoint_updated_at"`
	Workers           map[string]string `json:"workers,omitempty"`
	Patterns          []PatternCount    `json:"patterns"`
	RecentDetections  []Detection       `json:"recent_detections"`
	TotalTransactions int64             `json:"total_transactions"`
	UniqueCustomers   int64             `json:"unique_customers"`
	UniqueMerchants   int64             `json:"unique_merchants"`
	PendingUploads    int64             `json:"pending_uploads"`
	CheckpointRow     int               `json:"checkpoint_next_row"`
	ChunksProduced    int               `json:"chunks_produced"`
	InputObjects      int               `json:"input_objects"`
	OutputObjects     int               `json:"output_objects"`
}

// TotalDetections sums the per-pattern counts.
func (s *Snapshot) TotalDetections() int64 {
	var total int64
	for _, p := range s.Patterns {
		total += p.Count
	}
	return total
}

// Collect reads the store aggregates and counts the objects under both
// prefixes. objects may be nil, in which case object counts stay zero.
func Collect(ctx context.Context, stats service.StatsReader, objects objectstore.ObjectStore, opts Options) (*Snapshot, error) {
	st, err := stats.Stats(ctx, opts.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	snap := &Snapshot{
		TakenAt:           time.Now(),
		CheckpointUpdated: st.Checkpoint.UpdatedAt,
		TotalTransactions: st.TotalTransactions,
		UniqueCustomers:   st.UniqueCustomers,
		UniqueMerchants:   st.UniqueMerchants,
		PendingUploads:    st.PendingUploads,
		CheckpointRow:     st.Checkpoint.NextRow,
		ChunksProduced:    st.Checkpoint.NextChunkSeq,
		Patterns:          make([]PatternCount, 0, len(st.Patterns)),
		RecentDetections:  make([]Detection, 0, len(st.RecentDetections)),
	}
	for _, p := range st.Patterns {
		snap.Patterns = append(snap.Patterns, PatternCount(p))
	}
	for _, d := range st.RecentDetections {
		snap.RecentDetections = append(snap.RecentDetections, Detection{
			DetectionTime: d.DetectionTime,
			PatternID:     d.PatternID,
			ActionType:    d.ActionType,
			CustomerName:  d.CustomerName,
			MerchantID:    d.MerchantID,
			Uploaded:      d.Uploaded,
		})
	}

	if objects == nil {
		return snap, nil
	}
	if opts.InputPrefix != "" {
		keys, err := objects.List(ctx, opts.InputPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list input objects: %w", err)
		}
		snap.InputObjects = len(keys)
	}
	if opts.OutputPrefix != "" {
		keys, err := objects.List(ctx, opts.OutputPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list output objects: %w", err)
		}
		snap.OutputObjects = len(keys)
	}
	return snap, nil
}
