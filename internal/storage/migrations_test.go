package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_Idempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	var applied int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, len(migrations), applied)
}

func TestMigrate_CreatesIndexes(t *testing.T) {
	store := createTestStorage(t)

	for _, name := range []string{
		"idx_transactions_customer",
		"idx_transactions_merchant",
		"idx_detections_uploaded",
		"idx_detections_identity",
	} {
		var count int
		err := store.db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, name,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "index %s", name)
	}
}

func TestSchemaVersion_FreshDatabase(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestReset(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.InsertTransactions(ctx, []model.Transaction{makeTransaction(1, "C1", "M1", "F", "food", 5)})
	require.NoError(t, err)
	require.NoError(t, store.AdvanceCheckpoint(ctx, 0, 1))
	_, err = store.InsertDetectionIfAbsent(ctx, &model.Detection{
		RunStartTime:  time.Now(),
		DetectionTime: time.Now(),
		PatternID:     model.PatternDEINeeded,
		MerchantID:    "M1",
	})
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	stats, err := store.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTransactions)
	assert.Empty(t, stats.Patterns)
	assert.Equal(t, 0, stats.Checkpoint.NextRow)
	assert.Equal(t, 1, stats.Checkpoint.NextChunkSeq)

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
}
