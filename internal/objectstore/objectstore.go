// Package objectstore provides the durable key/object transport between the
// producer and the consumer, and the destination of detection batches.
package objectstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/config"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ObjectStore is an eventually consistent key/object store. Objects are
// immutable once written; List may lag behind Put.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key under prefix in ascending lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Supported store types.
const (
	TypeFS = "fs"
	TypeS3 = "s3"
)

// New builds the store selected by cfg. Unreachable or misconfigured stores
// fail here, before any worker starts.
func New(ctx context.Context, cfg config.ObjectStoreConfig, logger *zap.Logger) (ObjectStore, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeFS:
		return NewFSStore(afero.NewOsFs(), cfg.BasePath)
	case TypeS3:
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretKey,
			ForcePathStyle:  cfg.PathStyle,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported object store type %q", common.ErrInvalidConfig, cfg.Type)
	}
}
