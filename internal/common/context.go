package common

import (
	"context"
	"time"
)

// FinishTimeout bounds a step that must complete once the write before it
// succeeded, even while the worker is shutting down.
const FinishTimeout = 10 * time.Second

// Detached returns a context that keeps the values of ctx but ignores its
// cancellation, limited to FinishTimeout.
func Detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), FinishTimeout)
}
