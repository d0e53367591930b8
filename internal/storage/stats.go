package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/service"
)

// Stats collects the monitoring snapshot: row and entity counts, the
// checkpoint, per-pattern detection counts, pending uploads and the most
// recent detections.
func (s *SQLStorage) Stats(ctx context.Context, recentLimit int) (*service.Stats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	stats := &service.Stats{}

	err := s.queryRow(ctx, s.db, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT customer_id),
			COUNT(DISTINCT merchant_id)
		FROM transactions
	`).Scan(&stats.TotalTransactions, &stats.UniqueCustomers, &stats.UniqueMerchants)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	if stats.Checkpoint, err = s.getCheckpoint(ctx, s.db); err != nil {
		return nil, err
	}

	if stats.Patterns, err = s.patternCounts(ctx); err != nil {
		return nil, err
	}

	if err := s.queryRow(ctx, s.db,
		`SELECT COUNT(*) FROM detections WHERE uploaded = ?`, false,
	).Scan(&stats.PendingUploads); err != nil {
		return nil, fmt.Errorf("failed to count pending uploads: %w", err)
	}

	if recentLimit > 0 {
		if stats.RecentDetections, err = s.RecentDetections(ctx, recentLimit); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func (s *SQLStorage) patternCounts(ctx context.Context) ([]service.PatternCount, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT pattern_id, action_type, COUNT(*)
		FROM detections
		GROUP BY pattern_id, action_type
		ORDER BY pattern_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count detections by pattern: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []service.PatternCount
	for rows.Next() {
		var (
			pc        service.PatternCount
			patternID string
			action    string
		)
		if err := rows.Scan(&patternID, &action, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan pattern count: %w", err)
		}
		pc.PatternID = model.PatternID(patternID)
		pc.ActionType = model.ActionType(action)
		counts = append(counts, pc)
	}
	return counts, rows.Err()
}
