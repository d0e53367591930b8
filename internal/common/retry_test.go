package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/txnflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	errBoom := errors.New("connection reset")
	missing := fmt.Errorf("%w: object k.csv", ErrNotFound)
	badRow := &DataFormatError{Line: 2, Column: "CustomerId", Reason: "empty value"}

	tests := []struct {
		name          string
		err           error
		failures      int
		wantCalls     int
		wantErr       error
		wantTransient bool
	}{
		{name: "succeeds first time", wantCalls: 1},
		{name: "succeeds after failures", failures: 2, err: errBoom, wantCalls: 3},
		{name: "exhausts attempts", failures: 5, err: errBoom, wantCalls: 3, wantErr: ErrMaxRetries, wantTransient: true},
		{name: "not found is permanent", failures: 5, err: missing, wantCalls: 1, wantErr: ErrNotFound},
		{name: "bad data is permanent", failures: 5, err: badRow, wantCalls: 1, wantErr: badRow},
		{name: "invalid config is permanent", failures: 5, err: fmt.Errorf("%w: bucket", ErrInvalidConfig), wantCalls: 1, wantErr: ErrInvalidConfig},
		{name: "canceled is permanent", failures: 5, err: context.Canceled, wantCalls: 1, wantErr: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), zaptest.NewLogger(t), "put k.csv", func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			}, fastRetry(3))

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantTransient, IsTransient(err))
		})
	}
}

func TestWithRetry_ExhaustedNamesOperation(t *testing.T) {
	err := WithRetry(context.Background(), nil, "list drive folder", func() error {
		return errors.New("503 backend error")
	}, fastRetry(2))

	var transient *TransientIOError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, "list drive folder", transient.Op)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "503 backend error")
}

func TestWithRetry_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour}

	err := WithRetry(ctx, nil, "get k.csv", func() error {
		cancel()
		return errors.New("transient")
	}, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTransient(err))
}
