package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/service"
	"github.com/shopspring/decimal"
)

// UpgradeCandidates returns, for every merchant with more than
// minMerchantTransactions transactions, each customer's transaction count and
// the mean importance weight across the categories they used there. Missing
// weights count as 0.
func (s *SQLStorage) UpgradeCandidates(ctx context.Context, minMerchantTransactions int) ([]service.CustomerMerchantStat, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, s.db, `
		WITH high_volume AS (
			SELECT merchant_id
			FROM transactions
			GROUP BY merchant_id
			HAVING COUNT(*) > ?
		),
		per_category AS (
			SELECT
				t.customer_id,
				t.customer_name,
				t.merchant_id,
				t.category,
				COUNT(*) AS txn_count,
				COALESCE(MAX(ci.weight), 0) AS weight
			FROM transactions t
			LEFT JOIN customer_importance ci
				ON ci.customer_id = t.customer_id AND ci.category = t.category
			WHERE t.merchant_id IN (SELECT merchant_id FROM high_volume)
			GROUP BY t.customer_id, t.customer_name, t.merchant_id, t.category
		)
		SELECT
			customer_id,
			customer_name,
			merchant_id,
			CAST(SUM(txn_count) AS BIGINT),
			CAST(AVG(weight) AS DOUBLE PRECISION)
		FROM per_category
		GROUP BY customer_id, customer_name, merchant_id
		ORDER BY merchant_id, customer_id, customer_name
	`, minMerchantTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to query upgrade candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []service.CustomerMerchantStat
	for rows.Next() {
		var st service.CustomerMerchantStat
		if err := rows.Scan(&st.CustomerID, &st.CustomerName, &st.MerchantID, &st.TransactionCount, &st.AverageWeight); err != nil {
			return nil, fmt.Errorf("failed to scan upgrade candidate: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ChildCandidates returns (customer name, merchant) groups with at least
// minTransactions transactions and an average amount strictly below
// maxAverageAmount that have not been flagged yet.
func (s *SQLStorage) ChildCandidates(ctx context.Context, minTransactions int, maxAverageAmount decimal.Decimal) ([]service.CustomerMerchantGroup, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, s.db, `
		SELECT
			t.customer_name,
			t.merchant_id,
			CAST(AVG(t.amount) AS DOUBLE PRECISION),
			COUNT(*)
		FROM transactions t
		WHERE NOT EXISTS (
			SELECT 1 FROM detections d
			WHERE d.pattern_id = ?
				AND d.customer_name = t.customer_name
				AND d.merchant_id = t.merchant_id
		)
		GROUP BY t.customer_name, t.merchant_id
		HAVING COUNT(*) >= ? AND AVG(t.amount) < ?
		ORDER BY t.merchant_id, t.customer_name
	`, string(model.PatternChild), minTransactions, maxAverageAmount.InexactFloat64())
	if err != nil {
		return nil, fmt.Errorf("failed to query child candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []service.CustomerMerchantGroup
	for rows.Next() {
		var (
			g   service.CustomerMerchantGroup
			avg float64
		)
		if err := rows.Scan(&g.CustomerName, &g.MerchantID, &avg, &g.TransactionCount); err != nil {
			return nil, fmt.Errorf("failed to scan child candidate: %w", err)
		}
		g.AverageAmount = decimal.NewFromFloat(avg).Round(2)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// MerchantGenderCounts returns distinct female and male customer counts for
// merchants with more than minFemaleCustomers female customers and more male
// than female customers, skipping merchants already flagged.
func (s *SQLStorage) MerchantGenderCounts(ctx context.Context, minFemaleCustomers int) ([]service.MerchantGenderCount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, s.db, `
		WITH gender_counts AS (
			SELECT
				merchant_id,
				COUNT(DISTINCT CASE WHEN UPPER(gender) = 'FEMALE' THEN customer_id END) AS female_count,
				COUNT(DISTINCT CASE WHEN UPPER(gender) = 'MALE' THEN customer_id END) AS male_count
			FROM transactions
			GROUP BY merchant_id
		)
		SELECT g.merchant_id, g.female_count, g.male_count
		FROM gender_counts g
		WHERE g.female_count > ?
			AND g.male_count > g.female_count
			AND NOT EXISTS (
				SELECT 1 FROM detections d
				WHERE d.pattern_id = ? AND d.merchant_id = g.merchant_id
			)
		ORDER BY g.merchant_id
	`, minFemaleCustomers, string(model.PatternDEINeeded))
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant gender counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []service.MerchantGenderCount
	for rows.Next() {
		var c service.MerchantGenderCount
		if err := rows.Scan(&c.MerchantID, &c.Female, &c.Male); err != nil {
			return nil, fmt.Errorf("failed to scan gender count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
