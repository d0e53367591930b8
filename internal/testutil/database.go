// Package testutil provides shared fixtures for package tests: an isolated,
// migrated store and a builder for transaction rows.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/storage"
)

// TestDB is a migrated in-memory store bound to a test.
type TestDB struct {
	Storage *storage.SQLStorage
	t       *testing.T
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLStorage) error
	Transactions   []model.Transaction
	Importance     []model.CustomerImportance
	SkipMigrations bool
}

// SetupTestDB creates a new in-memory store with the current schema. The
// store is closed when the test finishes.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test store and seeds it.
//
// Example:
//
//	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{
//		Transactions: testutil.NewTransactionBuilder().
//			Add("C1", "Bob", "M", "M1", "15.00", 85).
//			Build(),
//	})
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if len(opts.Transactions) > 0 {
		if _, err := store.InsertTransactions(ctx, opts.Transactions); err != nil {
			t.Fatalf("failed to seed transactions: %v", err)
		}
	}
	if len(opts.Importance) > 0 {
		if err := store.UpsertCustomerImportance(ctx, opts.Importance); err != nil {
			t.Fatalf("failed to seed importance: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{Storage: store, t: t}
}

// MustCheckpoint returns the current checkpoint or fails the test.
func (db *TestDB) MustCheckpoint() model.Checkpoint {
	db.t.Helper()
	cp, err := db.Storage.GetCheckpoint(context.Background())
	if err != nil {
		db.t.Fatalf("failed to read checkpoint: %v", err)
	}
	return cp
}

// MustPending returns up to limit pending detections or fails the test.
func (db *TestDB) MustPending(limit int) []model.Detection {
	db.t.Helper()
	pending, err := db.Storage.PendingDetections(context.Background(), limit)
	if err != nil {
		db.t.Fatalf("failed to read pending detections: %v", err)
	}
	return pending
}
