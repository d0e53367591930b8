package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/shopspring/decimal"
)

// TransactionBuilder accumulates transaction rows with sequential ids.
type TransactionBuilder struct {
	start    time.Time
	category string
	rows     []model.Transaction
}

// NewTransactionBuilder returns an empty builder. Rows default to the
// "food" category and a fixed start date.
func NewTransactionBuilder() *TransactionBuilder {
	return &TransactionBuilder{
		category: "food",
		start:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// WithCategory sets the category of rows added afterwards.
func (b *TransactionBuilder) WithCategory(category string) *TransactionBuilder {
	b.category = category
	return b
}

// Add appends n identical rows for one customer at one merchant.
func (b *TransactionBuilder) Add(customerID, name, gender, merchantID, amount string, n int) *TransactionBuilder {
	value := decimal.RequireFromString(amount)
	for i := 0; i < n; i++ {
		seq := len(b.rows) + 1
		b.rows = append(b.rows, model.Transaction{
			ID:           fmt.Sprintf("T%d", seq),
			CustomerID:   customerID,
			CustomerName: name,
			Gender:       gender,
			MerchantID:   merchantID,
			Category:     b.category,
			Amount:       value,
			OccurredAt:   b.start.Add(time.Duration(seq) * time.Minute),
		})
	}
	return b
}

// Len returns the number of rows added so far.
func (b *TransactionBuilder) Len() int {
	return len(b.rows)
}

// Build returns a copy of the accumulated rows.
func (b *TransactionBuilder) Build() []model.Transaction {
	rows := make([]model.Transaction, len(b.rows))
	copy(rows, b.rows)
	return rows
}
