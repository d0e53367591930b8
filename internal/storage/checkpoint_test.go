package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCheckpoint_Initial(t *testing.T) {
	store := createTestStorage(t)

	cp, err := store.GetCheckpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, cp.NextRow)
	assert.Equal(t, 1, cp.NextChunkSeq)
}

func TestAdvanceCheckpoint(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fixedClock(store, start)

	require.NoError(t, store.AdvanceCheckpoint(ctx, 0, 10000))
	require.NoError(t, store.AdvanceCheckpoint(ctx, 10000, 15000))

	cp, err := store.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15000, cp.NextRow)
	assert.Equal(t, 3, cp.NextChunkSeq)
	assert.True(t, cp.UpdatedAt.Equal(start), "updated_at %v", cp.UpdatedAt)
}

func TestAdvanceCheckpoint_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
	}{
		{name: "stale from", from: 5, to: 10},
		{name: "backwards", from: 0, to: 0},
		{name: "negative step", from: 0, to: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := createTestStorage(t)
			ctx := context.Background()

			err := store.AdvanceCheckpoint(ctx, tt.from, tt.to)
			require.ErrorIs(t, err, ErrCheckpointConflict)

			cp, err := store.GetCheckpoint(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, cp.NextRow)
			assert.Equal(t, 1, cp.NextChunkSeq)
		})
	}
}

func TestAdvanceCheckpoint_ConcurrentSameFrom(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.AdvanceCheckpoint(ctx, 0, 100); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	cp, err := store.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, cp.NextRow)
	assert.Equal(t, 2, cp.NextChunkSeq)
}
