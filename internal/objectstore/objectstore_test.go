package objectstore

import (
	"context"
	"testing"

	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNew(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store, err := New(ctx, config.ObjectStoreConfig{Type: "fs", BasePath: t.TempDir()}, logger)
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, store)
	require.NoError(t, store.Close())

	_, err = New(ctx, config.ObjectStoreConfig{Type: "gcs"}, logger)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = New(ctx, config.ObjectStoreConfig{Type: "s3"}, logger)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
