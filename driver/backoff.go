package driver

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/miretskiy/tiercompactor/compactor"
)

// retryTransient runs fn, retrying with jittered exponential backoff only
// while it returns a compactor.KindTransient error. Any other error (or nil)
// returns immediately. Each call gets its own backoff state, so one
// partition's retry history never leaks into another's (spec.md §7).
func retryTransient(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = time.Minute

	bctx := backoff.WithContext(b, ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if classified, ok := err.(*compactor.ClassifiedError); ok && classified.Kind == compactor.KindTransient {
			return err
		}
		return backoff.Permanent(err)
	}, bctx)
}
