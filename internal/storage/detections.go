package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/txnflow/internal/model"
)

const detectionColumns = `id, run_start_time, detection_time, pattern_id, action_type,
	customer_name, merchant_id, uploaded, created_at`

// InsertDetectionIfAbsent inserts the detection unless its identity
// (pattern, customer name, merchant) is already recorded. The unique identity
// index makes the check and the insert a single atomic statement.
func (s *SQLStorage) InsertDetectionIfAbsent(ctx context.Context, d *model.Detection) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateDetection(d); err != nil {
		return false, err
	}
	if d.ActionType == "" {
		d.ActionType = d.PatternID.Action()
	}

	res, err := s.exec(ctx, s.db, `
		INSERT INTO detections (
			run_start_time, detection_time, pattern_id, action_type,
			customer_name, merchant_id, uploaded, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pattern_id, customer_name, merchant_id) DO NOTHING
	`,
		d.RunStartTime.UTC(),
		d.DetectionTime.UTC(),
		string(d.PatternID),
		string(d.ActionType),
		d.CustomerName,
		d.MerchantID,
		false,
		s.now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert detection %s/%s/%s: %w", d.PatternID, d.CustomerName, d.MerchantID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// PendingDetections returns up to limit detections not yet uploaded, oldest first.
func (s *SQLStorage) PendingDetections(ctx context.Context, limit int) ([]model.Detection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrNilParameter)
	}

	rows, err := s.query(ctx, s.db, `
		SELECT `+detectionColumns+`
		FROM detections
		WHERE uploaded = ?
		ORDER BY created_at, id
		LIMIT ?
	`, false, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending detections: %w", err)
	}
	return scanDetections(rows)
}

// MarkUploaded flags exactly the given detections as uploaded.
func (s *SQLStorage) MarkUploaded(ctx context.Context, ids []int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, true)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.exec(ctx, s.db,
		`UPDATE detections SET uploaded = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to mark %d detections uploaded: %w", len(ids), err)
	}
	return nil
}

// RecentDetections returns the most recent detections by detection time.
func (s *SQLStorage) RecentDetections(ctx context.Context, limit int) ([]model.Detection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, s.db, `
		SELECT `+detectionColumns+`
		FROM detections
		ORDER BY detection_time DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent detections: %w", err)
	}
	return scanDetections(rows)
}

func scanDetections(rows *sql.Rows) ([]model.Detection, error) {
	defer func() { _ = rows.Close() }()

	var detections []model.Detection
	for rows.Next() {
		var (
			d         model.Detection
			patternID string
			action    string
			createdAt sql.NullTime
		)
		if err := rows.Scan(
			&d.ID,
			&d.RunStartTime,
			&d.DetectionTime,
			&patternID,
			&action,
			&d.CustomerName,
			&d.MerchantID,
			&d.Uploaded,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		d.PatternID = model.PatternID(patternID)
		d.ActionType = model.ActionType(action)
		if createdAt.Valid {
			d.CreatedAt = createdAt.Time
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}
