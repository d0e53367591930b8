package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/txnflow/internal/model"
)

// InsertTransactions stores rows in one transaction. Rows whose ID already
// exists are skipped, never reported as errors.
func (s *SQLStorage) InsertTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}
	if len(transactions) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
			INSERT INTO transactions (
				row_id, customer_id, customer_name, gender,
				merchant_id, category, amount, occurred_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (row_id) DO NOTHING
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range transactions {
			var occurredAt any
			if !txn.OccurredAt.IsZero() {
				occurredAt = txn.OccurredAt.UTC()
			}
			res, err := stmt.ExecContext(ctx,
				txn.ID,
				txn.CustomerID,
				txn.CustomerName,
				txn.Gender,
				txn.MerchantID,
				txn.Category,
				txn.Amount,
				occurredAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read affected rows: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetTransactionCount returns the number of persisted transactions.
func (s *SQLStorage) GetTransactionCount(ctx context.Context) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int64
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// UpsertCustomerImportance stores importance weights, replacing existing ones.
func (s *SQLStorage) UpsertCustomerImportance(ctx context.Context, weights []model.CustomerImportance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateImportance(weights); err != nil {
		return err
	}
	if len(weights) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
			INSERT INTO customer_importance (customer_id, category, weight)
			VALUES (?, ?, ?)
			ON CONFLICT (customer_id, category) DO UPDATE SET weight = excluded.weight
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, w := range weights {
			if _, err := stmt.ExecContext(ctx, w.CustomerID, w.Category, w.Weight); err != nil {
				return fmt.Errorf("failed to upsert importance for %s/%s: %w", w.CustomerID, w.Category, err)
			}
		}
		return nil
	})
}
