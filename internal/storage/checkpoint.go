package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/txnflow/internal/model"
)

// GetCheckpoint reads the producer cursor.
func (s *SQLStorage) GetCheckpoint(ctx context.Context) (model.Checkpoint, error) {
	if err := validateContext(ctx); err != nil {
		return model.Checkpoint{}, err
	}
	return s.getCheckpoint(ctx, s.db)
}

func (s *SQLStorage) getCheckpoint(ctx context.Context, q queryer) (model.Checkpoint, error) {
	var (
		cp        model.Checkpoint
		updatedAt sql.NullTime
	)
	err := s.queryRow(ctx, q, `
		SELECT next_row_index, next_chunk_seq, updated_at
		FROM processing_state WHERE id = 1
	`).Scan(&cp.NextRow, &cp.NextChunkSeq, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Checkpoint{}, ErrCheckpointMissing
	}
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if updatedAt.Valid {
		cp.UpdatedAt = updatedAt.Time
	}
	return cp, nil
}

// AdvanceCheckpoint moves the cursor from `from` to `to` in a single guarded
// update, so the cursor can never move backwards or skip a concurrent write.
func (s *SQLStorage) AdvanceCheckpoint(ctx context.Context, from, to int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if to <= from {
		return fmt.Errorf("%w: %d -> %d", ErrCheckpointConflict, from, to)
	}

	res, err := s.exec(ctx, s.db, `
		UPDATE processing_state
		SET next_row_index = ?, next_chunk_seq = next_chunk_seq + 1, updated_at = ?
		WHERE id = 1 AND next_row_index = ?
	`, to, s.now().UTC(), from)
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: expected cursor at %d", ErrCheckpointConflict, from)
	}
	return nil
}
