package consumer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/txnflow/internal/chunk"
	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/objectstore"
	"github.com/Veraticus/txnflow/internal/storage"
	"github.com/Veraticus/txnflow/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockTransactionStore struct {
	mock.Mock
}

func (m *mockTransactionStore) InsertTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	args := m.Called(ctx, transactions)
	return args.Int(0), args.Error(1)
}

func (m *mockTransactionStore) UpsertCustomerImportance(ctx context.Context, weights []model.CustomerImportance) error {
	return m.Called(ctx, weights).Error(0)
}

type fakeDetector struct {
	err      error
	calls    int
	runStart time.Time
}

func (f *fakeDetector) Detect(_ context.Context, runStart time.Time) (int, error) {
	f.calls++
	f.runStart = runStart
	return 1, f.err
}

type fakeDispatcher struct {
	err   error
	calls int
}

func (f *fakeDispatcher) DispatchPendingBatches(context.Context) (int, error) {
	f.calls++
	return 0, f.err
}

// notFoundStore hides one listed key from Get, as an eventually consistent
// store might.
type notFoundStore struct {
	objectstore.ObjectStore
	hidden string
}

func (s *notFoundStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == s.hidden {
		return nil, common.ErrNotFound
	}
	return s.ObjectStore.Get(ctx, key)
}

func newStore(t *testing.T) *storage.SQLStorage {
	t.Helper()
	return testutil.SetupTestDB(t).Storage
}

func newObjects(t *testing.T) *objectstore.FSStore {
	t.Helper()
	objects, err := objectstore.NewFSStore(afero.NewMemMapFs(), "/objects")
	require.NoError(t, err)
	return objects
}

func putChunk(t *testing.T, objects objectstore.ObjectStore, seq int, ids ...int) string {
	t.Helper()
	rows := make([]model.Transaction, len(ids))
	for i, id := range ids {
		rows[i] = model.Transaction{
			ID:           fmt.Sprintf("T%d", id),
			CustomerID:   "C1",
			CustomerName: "Alice",
			Gender:       "F",
			MerchantID:   "M1",
			Category:     "food",
			Amount:       decimal.NewFromInt(int64(id)),
		}
	}
	body, err := chunk.Marshal(rows)
	require.NoError(t, err)
	key := model.ChunkKey(model.DefaultInputPrefix, seq, time.Date(2024, 5, 1, 0, 0, seq, 0, time.UTC))
	require.NoError(t, objects.Put(context.Background(), key, body, nil))
	return key
}

func testConfig() Config {
	return Config{
		InputPrefix:     model.DefaultInputPrefix,
		PollInterval:    time.Millisecond,
		StageRetryDelay: time.Millisecond,
	}
}

func TestPollAndIngest(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	objects := newObjects(t)

	first := putChunk(t, objects, 0, 1, 2, 3)
	c := New(store, objects, nil, nil, nil, zaptest.NewLogger(t), testConfig())

	res, err := c.PollAndIngest(ctx)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Objects: 1, Inserted: 3}, res)
	assert.True(t, c.Seen(first))

	// Nothing new: the seen key is not downloaded again.
	res, err = c.PollAndIngest(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Objects)

	// A retried chunk repeating rows inserts only the new ones.
	putChunk(t, objects, 1, 3, 4)
	res, err = c.PollAndIngest(ctx)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Objects: 1, Inserted: 1}, res)

	count, err := store.GetTransactionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestPollAndIngest_SkipsMalformedRows(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	objects := newObjects(t)

	body := "TransactionId,CustomerId,CustomerName,Gender,MerchantId,TransactionType,TransactionAmount,TransactionDate\n" +
		"T1,C1,Alice,F,M1,food,10,\n" +
		"T2,C1,Alice,F,M1,food,not-a-number,\n" +
		"T3,,Alice,F,M1,food,5,\n" +
		"T4,C2,Bob,M,M1,food,7,\n"
	key := model.ChunkKey(model.DefaultInputPrefix, 0, time.Now())
	require.NoError(t, objects.Put(ctx, key, []byte(body), nil))

	c := New(store, objects, nil, nil, nil, zaptest.NewLogger(t), testConfig())
	res, err := c.PollAndIngest(ctx)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Objects: 1, Inserted: 2, Skipped: 2}, res)
}

func TestPollAndIngest_FailedInsertLeavesKeyUnseen(t *testing.T) {
	ctx := context.Background()
	objects := newObjects(t)
	key := putChunk(t, objects, 0, 1, 2)

	store := &mockTransactionStore{}
	store.On("InsertTransactions", mock.Anything, mock.Anything).Return(0, errors.New("database is locked")).Once()
	store.On("InsertTransactions", mock.Anything, mock.Anything).Return(2, nil).Once()

	c := New(store, objects, nil, nil, nil, zaptest.NewLogger(t), testConfig())

	_, err := c.PollAndIngest(ctx)
	require.Error(t, err)
	assert.True(t, common.IsTransient(err))
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageIngesting, stageErr.Stage)
	assert.False(t, c.Seen(key))

	res, err := c.PollAndIngest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.True(t, c.Seen(key))
	store.AssertExpectations(t)
}

func TestPollAndIngest_ListedButNotReadable(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	objects := newObjects(t)

	putChunk(t, objects, 0, 1)
	hidden := putChunk(t, objects, 1, 2)

	c := New(store, &notFoundStore{ObjectStore: objects, hidden: hidden}, nil, nil, nil, zaptest.NewLogger(t), testConfig())
	res, err := c.PollAndIngest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Objects)
	assert.False(t, c.Seen(hidden))
}

func TestPollAndIngest_MalformedObjectIsNotRetried(t *testing.T) {
	ctx := context.Background()
	objects := newObjects(t)
	key := model.ChunkKey(model.DefaultInputPrefix, 0, time.Now())
	require.NoError(t, objects.Put(ctx, key, []byte("just,a,header\n"), nil))

	c := New(newStore(t), objects, nil, nil, nil, zaptest.NewLogger(t), testConfig())
	res, err := c.PollAndIngest(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Objects)
	assert.True(t, c.Seen(key))
}

func TestRunCycle_DetectsOnlyAfterNewRows(t *testing.T) {
	ctx := context.Background()
	objects := newObjects(t)
	detector := &fakeDetector{}
	dispatcher := &fakeDispatcher{}

	c := New(newStore(t), objects, detector, dispatcher, nil, zaptest.NewLogger(t), testConfig())
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return start }

	// The first cycle always detects so a restarted consumer catches up.
	require.NoError(t, c.RunCycle(ctx))
	assert.Equal(t, 1, detector.calls)
	assert.Equal(t, start, detector.runStart)

	require.NoError(t, c.RunCycle(ctx))
	assert.Equal(t, 1, detector.calls)
	assert.Equal(t, 2, dispatcher.calls)

	putChunk(t, objects, 0, 1)
	require.NoError(t, c.RunCycle(ctx))
	assert.Equal(t, 2, detector.calls)
	assert.Equal(t, StagePolling, c.Stage())
}

func TestRunCycle_StageErrors(t *testing.T) {
	ctx := context.Background()

	detector := &fakeDetector{err: errors.New("boom")}
	c := New(newStore(t), newObjects(t), detector, &fakeDispatcher{}, nil, zaptest.NewLogger(t), testConfig())
	err := c.RunCycle(ctx)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageDetecting, stageErr.Stage)

	// Detection is retried on the next cycle.
	detector.err = nil
	require.NoError(t, c.RunCycle(ctx))
	assert.Equal(t, 2, detector.calls)

	dispatcher := &fakeDispatcher{err: errors.New("upload failed")}
	c = New(newStore(t), newObjects(t), nil, dispatcher, nil, zaptest.NewLogger(t), testConfig())
	err = c.RunCycle(ctx)
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageDispatching, stageErr.Stage)
	assert.True(t, common.IsTransient(err))
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	objects := newObjects(t)
	putChunk(t, objects, 0, 1, 2)

	store := newStore(t)
	dispatcher := &fakeDispatcher{}
	c := New(store, objects, nil, dispatcher, nil, zaptest.NewLogger(t), testConfig())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, err := store.GetTransactionCount(context.Background())
		return err == nil && n == 2
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
