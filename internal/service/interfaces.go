// Package service defines the interfaces the pipeline workers depend on.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/shopspring/decimal"
)

// CheckpointStore persists the producer cursor.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context) (model.Checkpoint, error)
	// AdvanceCheckpoint moves the cursor from `from` to `to` and bumps the chunk
	// sequence. It fails when the stored cursor is not `from` or `to` <= `from`.
	AdvanceCheckpoint(ctx context.Context, from, to int) error
}

// TransactionStore persists ingested rows and reference data.
type TransactionStore interface {
	// InsertTransactions inserts rows, silently ignoring IDs that already exist.
	// It returns the number of rows actually inserted.
	InsertTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	UpsertCustomerImportance(ctx context.Context, weights []model.CustomerImportance) error
}

// PatternStore exposes the aggregates the detection rules are evaluated on.
type PatternStore interface {
	UpgradeCandidates(ctx context.Context, minMerchantTransactions int) ([]CustomerMerchantStat, error)
	ChildCandidates(ctx context.Context, minTransactions int, maxAverageAmount decimal.Decimal) ([]CustomerMerchantGroup, error)
	MerchantGenderCounts(ctx context.Context, minFemaleCustomers int) ([]MerchantGenderCount, error)
	// InsertDetectionIfAbsent inserts the detection unless one with the same
	// identity exists. It reports whether a row was inserted.
	InsertDetectionIfAbsent(ctx context.Context, detection *model.Detection) (bool, error)
}

// DetectionStore is the dispatcher's view of persisted detections.
type DetectionStore interface {
	PendingDetections(ctx context.Context, limit int) ([]model.Detection, error)
	MarkUploaded(ctx context.Context, ids []int64) error
}

// StatsReader serves the read-only monitoring queries.
type StatsReader interface {
	Stats(ctx context.Context, recentLimit int) (*Stats, error)
}

// Storage is the full persistence layer.
type Storage interface {
	CheckpointStore
	TransactionStore
	PatternStore
	DetectionStore
	StatsReader

	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

// CustomerMerchantStat aggregates one customer's activity at a high volume merchant.
type CustomerMerchantStat struct {
	CustomerID       string
	CustomerName     string
	MerchantID       string
	TransactionCount int64
	AverageWeight    float64
}

// CustomerMerchantGroup aggregates transactions by customer name and merchant.
type CustomerMerchantGroup struct {
	CustomerName     string
	MerchantID       string
	AverageAmount    decimal.Decimal
	TransactionCount int64
}

// MerchantGenderCount holds distinct customer counts per gender for a merchant.
type MerchantGenderCount struct {
	MerchantID string
	Female     int64
	Male       int64
}

// PatternCount is the number of detections recorded for a pattern.
type PatternCount struct {
	PatternID  model.PatternID
	ActionType model.ActionType
	Count      int64
}

// Stats is a point-in-time snapshot of the pipeline state.
type Stats struct {
	Checkpoint        model.Checkpoint
	Patterns          []PatternCount
	RecentDetections  []model.Detection
	TotalTransactions int64
	UniqueCustomers   int64
	UniqueMerchants   int64
	PendingUploads    int64
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
