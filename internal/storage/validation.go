package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/txnflow/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidDetection   = errors.New("invalid detection")
	ErrInvalidImportance  = errors.New("invalid customer importance")
	ErrUnsupportedDriver  = errors.New("unsupported database driver")
	ErrCheckpointConflict = errors.New("checkpoint moved or would not advance")
	ErrCheckpointMissing  = errors.New("checkpoint row missing; run migrations")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.MerchantID == "" {
		return fmt.Errorf("%w: missing merchant ID", ErrInvalidTransaction)
	}
	return nil
}

func validateImportance(weights []model.CustomerImportance) error {
	for i, w := range weights {
		if w.CustomerID == "" || w.Category == "" {
			return fmt.Errorf("%w: entry %d missing customer or category", ErrInvalidImportance, i)
		}
	}
	return nil
}

func validateDetection(d *model.Detection) error {
	if d == nil {
		return fmt.Errorf("%w: detection", ErrNilParameter)
	}
	if d.PatternID == "" {
		return fmt.Errorf("%w: missing pattern ID", ErrInvalidDetection)
	}
	if d.MerchantID == "" {
		return fmt.Errorf("%w: missing merchant ID", ErrInvalidDetection)
	}
	return nil
}
