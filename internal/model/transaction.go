// Package model defines the core data structures for the txnflow pipeline.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single row of the source dataset.
// Rows are immutable once read; the same value is relayed through chunk
// objects and persisted keyed by ID.
type Transaction struct {
	OccurredAt   time.Time
	ID           string // Unique row identifier, primary key in storage
	CustomerID   string
	CustomerName string // Display name, part of customer-level detection identity
	Gender       string
	MerchantID   string
	Category     string // Transaction type, joined against customer importance
	Amount       decimal.Decimal
}

// Gender values recognised by the DEI rule. Comparison is case-insensitive.
const (
	GenderFemale = "FEMALE"
	GenderMale   = "MALE"
)

// CustomerImportance maps a customer and transaction category to a weight.
// Missing entries are treated as weight 0 wherever they are consumed.
type CustomerImportance struct {
	CustomerID string
	Category   string
	Weight     decimal.Decimal
}

// Checkpoint is the producer's persisted cursor. NextRow is the index of the
// next unconsumed source row and never decreases. NextChunkSeq is the sequence
// number the next chunk object will carry.
type Checkpoint struct {
	UpdatedAt    time.Time
	NextRow      int
	NextChunkSeq int
}
