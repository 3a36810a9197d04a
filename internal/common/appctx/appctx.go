// Package appctx provides context utilities for background operations.
package appctx

import (
	"context"
	"time"
)

// Detached returns a context that is not tied to the caller's cancellation.
// Use this for writes that must outlive the request that triggered them
// (history appends, event mirrors). The returned context is cancelled when
// the stop channel is closed or the timeout expires. A nil stop channel
// means the timeout alone bounds the context.
func Detached(stopCh <-chan struct{}, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
