package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/Veraticus/txnflow/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	tests := []struct {
		name      string
		str       string
		paramName string
		wantErr   bool
	}{
		{
			name:      "valid string",
			str:       "test",
			paramName: "param",
			wantErr:   false,
		},
		{
			name:      "empty string",
			str:       "",
			paramName: "param",
			wantErr:   true,
		},
		{
			name:      "whitespace only",
			str:       "   ",
			paramName: "param",
			wantErr:   true,
		},
		{
			name:      "string with spaces",
			str:       "  test  ",
			paramName: "param",
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateString(tt.str, tt.paramName)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.paramName) {
				t.Errorf("validateString() error should contain param name %s, got %v", tt.paramName, err)
			}
		})
	}
}

func TestValidateTransactions(t *testing.T) {
	tests := []struct {
		name         string
		transactions []model.Transaction
		wantErr      error
	}{
		{
			name:         "nil slice",
			transactions: nil,
			wantErr:      ErrNilParameter,
		},
		{
			name:         "empty slice",
			transactions: []model.Transaction{},
		},
		{
			name: "valid rows",
			transactions: []model.Transaction{
				{ID: "row-1", MerchantID: "M1", Amount: decimal.NewFromInt(10)},
				{ID: "row-2", MerchantID: "M2"},
			},
		},
		{
			name:         "missing id",
			transactions: []model.Transaction{{MerchantID: "M1"}},
			wantErr:      ErrInvalidTransaction,
		},
		{
			name: "missing merchant in second row",
			transactions: []model.Transaction{
				{ID: "row-1", MerchantID: "M1"},
				{ID: "row-2"},
			},
			wantErr: ErrInvalidTransaction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTransactions(tt.transactions)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateDetection(t *testing.T) {
	require.ErrorIs(t, validateDetection(nil), ErrNilParameter)
	assert.ErrorIs(t, validateDetection(&model.Detection{MerchantID: "M1"}), ErrInvalidDetection)
	assert.ErrorIs(t, validateDetection(&model.Detection{PatternID: model.PatternChild}), ErrInvalidDetection)
	assert.NoError(t, validateDetection(&model.Detection{PatternID: model.PatternDEINeeded, MerchantID: "M1"}))
}

func TestValidateImportance(t *testing.T) {
	assert.NoError(t, validateImportance(nil))
	assert.NoError(t, validateImportance([]model.CustomerImportance{{CustomerID: "C1", Category: "food"}}))
	assert.ErrorIs(t, validateImportance([]model.CustomerImportance{{CustomerID: "C1"}}), ErrInvalidImportance)
}
