package store

import (
	"context"
	"errors"
	"time"
)

// Run executes fn inside a transaction and commits it. Conflicts reported by
// the driver are retried with backoff; any other error rolls back.
func Run(ctx context.Context, d Driver, mode Mode, stores []string, fn func(Tx) error) error {
	const maxAttempts = 4
	retryDelay := 50 * time.Millisecond

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := func() error {
			tx, err := d.Begin(ctx, mode, stores...)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)

			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt == maxAttempts-1 {
			return err
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrConflict
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
