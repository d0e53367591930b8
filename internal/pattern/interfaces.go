// Package pattern evaluates the detection rules over the full transaction
// table and records each qualifying identity exactly once.
package pattern

import (
	"context"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/service"
)

// Rule evaluates one pattern against the stored aggregates.
type Rule interface {
	// ID returns the pattern the rule emits.
	ID() model.PatternID
	// Evaluate returns every identity that currently qualifies.
	Evaluate(ctx context.Context, store service.PatternStore) ([]Match, error)
}

// Match is a qualifying identity. Merchant-level patterns leave CustomerName empty.
type Match struct {
	CustomerName string
	MerchantID   string
}
