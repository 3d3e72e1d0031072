package phase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"leaguesim/internal/league"
	"leaguesim/internal/store"

	"github.com/google/uuid"
)

// StaleLockAfter is how long a persisted lock may sit before another
// process assumes its owner died and takes it over.
const StaleLockAfter = 15 * time.Minute

// TransitionLock is the in-process half of the phase change guard.
type TransitionLock struct {
	held atomic.Bool
}

func (l *TransitionLock) TryLock() bool { return l.held.CompareAndSwap(false, true) }

func (l *TransitionLock) Unlock() { l.held.Store(false) }

func (l *TransitionLock) Held() bool { return l.held.Load() }

// acquire sets the persisted phaseChange record for owner, so that another
// process sharing the database is kept out as well.
func acquire(ctx context.Context, db store.Driver, target league.Phase, now time.Time) (string, error) {
	owner := uuid.NewString()
	err := store.Run(ctx, db, store.ReadWrite, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		old, err := tx.Get(ctx, league.StoreGameAttributes, league.KeyPhaseChange)
		switch {
		case errors.Is(err, store.ErrNotFound):
			old = nil
		case err != nil:
			return err
		default:
			var cur league.PhaseLock
			if err := json.Unmarshal(old, &cur); err != nil {
				return fmt.Errorf("decode phase lock: %w", err)
			}
			if cur.InProgress && now.Sub(cur.Since) < StaleLockAfter {
				return league.ErrPhaseChangeInProgress
			}
		}
		next, err := json.Marshal(league.PhaseLock{InProgress: true, Owner: owner, Target: target, Since: now.UTC()})
		if err != nil {
			return err
		}
		ok, err := tx.CompareAndSwap(ctx, league.StoreGameAttributes, league.KeyPhaseChange, old, next)
		if err != nil {
			return err
		}
		if !ok {
			return league.ErrPhaseChangeInProgress
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return owner, nil
}

// release clears the persisted record if owner still holds it.
func release(ctx context.Context, db store.Driver, owner string) error {
	return store.Run(ctx, db, store.ReadWrite, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		old, err := tx.Get(ctx, league.StoreGameAttributes, league.KeyPhaseChange)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var cur league.PhaseLock
		if err := json.Unmarshal(old, &cur); err != nil {
			return fmt.Errorf("decode phase lock: %w", err)
		}
		if cur.Owner != owner {
			return nil
		}
		next, err := json.Marshal(league.PhaseLock{})
		if err != nil {
			return err
		}
		_, err = tx.CompareAndSwap(ctx, league.StoreGameAttributes, league.KeyPhaseChange, old, next)
		return err
	})
}

// ReadLock returns the persisted lock record.
func ReadLock(ctx context.Context, db store.Driver) (league.PhaseLock, error) {
	var out league.PhaseLock
	err := store.Run(ctx, db, store.ReadOnly, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		l, err := store.Get[league.PhaseLock](ctx, tx, league.StoreGameAttributes, league.KeyPhaseChange)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		out = l
		return err
	})
	return out, err
}
