package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/config"
	"github.com/Veraticus/txnflow/internal/storage"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// writeFixture lays out a dataset and a config file under a temp dir and
// returns the config path.
func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	var txns strings.Builder
	txns.WriteString("TransactionId,CustomerId,CustomerName,Gender,MerchantId,TransactionType,TransactionAmount,TransactionDate\n")
	n := 0
	for i := 0; i < 85; i++ {
		n++
		fmt.Fprintf(&txns, "T%d,C1,Bob,M,M1,food,15.00,2024-01-01\n", n)
	}
	for i := 0; i < 20; i++ {
		n++
		fmt.Fprintf(&txns, "T%d,C2,Carol,F,M1,food,40.00,2024-01-02\n", n)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transactions.csv"), []byte(txns.String()), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "importance.csv"),
		[]byte("CustomerId,TransactionType,Weightage\nC1,food,0.4\nC2,food,0.9\n"), 0o600))

	yaml := fmt.Sprintf(`log:
  level: error
database:
  driver: sqlite3
  dsn: %[1]s/txnflow.db
objectstore:
  type: fs
  base_path: %[1]s/objects
dataset:
  type: file
  transactions_path: %[1]s/transactions.csv
  importance_path: %[1]s/importance.csv
pipeline:
  chunk_size: 30
  produce_interval: 10ms
  poll_interval: 10ms
  consumer_start_delay: 0s
  stage_retry_delay: 10ms
`, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func loadTestConfig(t *testing.T, path string) *config.Config {
	t.Helper()
	c, err := config.Load(viper.New(), path)
	require.NoError(t, err)
	return c
}

func TestPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()
	c := loadTestConfig(t, writeFixture(t))

	a, err := newApp(ctx, c, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	p, err := loadProducer(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 105, p.Total())

	chunks := 0
	for {
		_, err := p.ProduceNextChunk(ctx)
		if err != nil {
			require.ErrorIs(t, err, common.ErrExhausted)
			break
		}
		chunks++
	}
	assert.Equal(t, 4, chunks)

	cons := a.newConsumer()
	require.NoError(t, cons.RunCycle(ctx))

	count, err := a.store.GetTransactionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(105), count)

	keys, err := a.objects.List(ctx, c.ObjectStore.OutputPrefix)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	body, err := a.objects.Get(ctx, keys[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "PatId2,CHILD,Bob,M1")
	assert.NotContains(t, string(body), "Carol")

	// A second cycle with no new chunks uploads nothing.
	require.NoError(t, cons.RunCycle(ctx))
	keys, err = a.objects.List(ctx, c.ObjectStore.OutputPrefix)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestRunPipeline_StopsOnCancel(t *testing.T) {
	cfg = loadTestConfig(t, writeFixture(t))
	logger = zaptest.NewLogger(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, runPipeline(ctx, true, true))

	store, err := openStorage(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	cp, err := store.GetCheckpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 105, cp.NextRow)
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "txnflow dev")
}

func TestMigrateCommand(t *testing.T) {
	path := writeFixture(t)

	out, err := execute(t, "", "--config", path, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Database migrated to version %d", storage.ExpectedSchemaVersion))

	out, err = execute(t, "", "--config", path, "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Current version: %d", storage.ExpectedSchemaVersion))
	assert.Contains(t, out, "Schema is up to date")
}

func TestResetCommand_DeclinedKeepsData(t *testing.T) {
	path := writeFixture(t)
	ctx := context.Background()
	c := loadTestConfig(t, path)

	a, err := newApp(ctx, c, zaptest.NewLogger(t))
	require.NoError(t, err)
	p, err := loadProducer(ctx, a)
	require.NoError(t, err)
	_, err = p.ProduceNextChunk(ctx)
	require.NoError(t, err)
	a.Close()

	out, err := execute(t, "n\n", "--config", path, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset canceled")

	store, err := openStorage(ctx, c)
	require.NoError(t, err)
	cp, err := store.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, cp.NextRow)
	require.NoError(t, store.Close())

	out, err = execute(t, "", "--config", path, "reset", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Database reset")

	store, err = openStorage(ctx, c)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	cp, err = store.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.Zero(t, cp.NextRow)
}

func TestMonitorCommand_JSON(t *testing.T) {
	path := writeFixture(t)

	out, err := execute(t, "", "--config", path, "monitor", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_transactions": 0`)
}
