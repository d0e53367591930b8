// Package source loads the bulk transaction dataset and the customer
// importance table the pipeline starts from.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Veraticus/txnflow/internal/chunk"
	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/config"
	"github.com/Veraticus/txnflow/internal/model"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrImportanceMissing is returned by Source.Importance when the dataset has
// no importance table. It is not fatal; missing weights count as 0.
var ErrImportanceMissing = errors.New("customer importance file not found")

// Source opens the raw dataset files.
type Source interface {
	Transactions(ctx context.Context) (io.ReadCloser, error)
	Importance(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// Dataset is the fully loaded, immutable source dataset.
type Dataset struct {
	rows    []model.Transaction
	skipped int
}

// NewDataset wraps already parsed rows.
func NewDataset(rows []model.Transaction) *Dataset {
	return &Dataset{rows: rows}
}

// Len returns the number of valid rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Skipped returns the number of malformed rows dropped while loading.
func (d *Dataset) Skipped() int {
	return d.skipped
}

// Slice returns rows [start, end), clamped to the dataset bounds.
func (d *Dataset) Slice(start, end int) []model.Transaction {
	if start < 0 {
		start = 0
	}
	if end > len(d.rows) {
		end = len(d.rows)
	}
	if start >= end {
		return nil
	}
	return d.rows[start:end]
}

// New builds the source selected by cfg.
func New(ctx context.Context, cfg config.DatasetConfig, logger *zap.Logger) (Source, error) {
	switch cfg.Type {
	case "file":
		return NewFileSource(afero.NewOsFs(), cfg.TransactionsPath, cfg.ImportancePath), nil
	case "drive":
		return NewDriveSource(ctx, cfg.Drive, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported dataset type %q", common.ErrInvalidConfig, cfg.Type)
	}
}

// LoadDataset reads and parses the whole transaction dataset.
func LoadDataset(ctx context.Context, src Source, logger *zap.Logger) (*Dataset, error) {
	rc, err := src.Transactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open transactions from %s: %w", src.Name(), err)
	}
	defer func() { _ = rc.Close() }()

	res, err := chunk.Decode(rc, chunk.DecodeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse transactions from %s: %w", src.Name(), err)
	}

	for _, skipped := range res.Skipped {
		logger.Debug("skipping malformed dataset row", zap.Error(skipped))
	}
	logger.Info("loaded dataset",
		zap.String("source", src.Name()),
		zap.Int("rows", len(res.Rows)),
		zap.Int("skipped", len(res.Skipped)))

	return &Dataset{rows: res.Rows, skipped: len(res.Skipped)}, nil
}

// LoadImportance reads the optional importance table. A missing table yields
// no weights and no error.
func LoadImportance(ctx context.Context, src Source, logger *zap.Logger) ([]model.CustomerImportance, error) {
	rc, err := src.Importance(ctx)
	if errors.Is(err, ErrImportanceMissing) {
		logger.Warn("no customer importance file, all weights default to 0", zap.String("source", src.Name()))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open importance from %s: %w", src.Name(), err)
	}
	defer func() { _ = rc.Close() }()

	weights, skipped, err := ParseImportance(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse importance from %s: %w", src.Name(), err)
	}
	logger.Info("loaded customer importance",
		zap.Int("records", len(weights)),
		zap.Int("skipped", len(skipped)))
	return weights, nil
}
