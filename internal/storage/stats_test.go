package storage

import (
	"context"
	"testing"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	insertAll(t, store, []model.Transaction{
		makeTransaction(1, "C1", "M1", "F", "food", 10),
		makeTransaction(2, "C1", "M2", "F", "food", 10),
		makeTransaction(3, "C2", "M1", "M", "food", 10),
	})
	require.NoError(t, store.AdvanceCheckpoint(ctx, 0, 3))

	for _, d := range []*model.Detection{
		newDetection(model.PatternChild, "a", "M1"),
		newDetection(model.PatternChild, "b", "M1"),
		newDetection(model.PatternDEINeeded, "", "M2"),
	} {
		_, err := store.InsertDetectionIfAbsent(ctx, d)
		require.NoError(t, err)
	}

	pending, err := store.PendingDetections(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.MarkUploaded(ctx, []int64{pending[0].ID}))

	stats, err := store.Stats(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalTransactions)
	assert.Equal(t, int64(2), stats.UniqueCustomers)
	assert.Equal(t, int64(2), stats.UniqueMerchants)
	assert.Equal(t, 3, stats.Checkpoint.NextRow)
	assert.Equal(t, int64(2), stats.PendingUploads)
	assert.Len(t, stats.RecentDetections, 2)

	require.Len(t, stats.Patterns, 2)
	assert.Equal(t, model.PatternChild, stats.Patterns[0].PatternID)
	assert.Equal(t, model.ActionChild, stats.Patterns[0].ActionType)
	assert.Equal(t, int64(2), stats.Patterns[0].Count)
	assert.Equal(t, model.PatternDEINeeded, stats.Patterns[1].PatternID)
	assert.Equal(t, int64(1), stats.Patterns[1].Count)
}

func TestStats_NoRecent(t *testing.T) {
	store := createTestStorage(t)

	stats, err := store.Stats(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, stats.RecentDetections)
	assert.Zero(t, stats.TotalTransactions)
}
