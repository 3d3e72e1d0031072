package eventlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaguesim/internal/league"
	"leaguesim/internal/store"
)

type recorder struct {
	mu   sync.Mutex
	fail bool
	got  []string
	sent chan struct{}
}

func newRecorder(fail bool) *recorder {
	return &recorder{fail: fail, sent: make(chan struct{}, 16)}
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Notify(_ context.Context, text string) error {
	r.mu.Lock()
	r.got = append(r.got, text)
	r.mu.Unlock()
	r.sent <- struct{}{}
	if r.fail {
		return errors.New("sink down")
	}
	return nil
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func event(text string, notify bool) league.Event {
	return league.Event{Eid: text, Type: "test", Text: text, Season: 2020, CreatedAt: time.Now(), ShowNotification: notify}
}

func TestAddStoresEventsAndNotifiesFlaggedOnes(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	rec := newRecorder(false)
	l := New(quiet(), rec)

	err := store.Run(ctx, db, store.ReadWrite, []string{league.StoreEvents}, func(tx store.Tx) error {
		l.Add(ctx, tx, event("quiet", false))
		l.Add(ctx, tx, event("loud", true))
		return nil
	})
	require.NoError(t, err)
	l.Close()

	assert.Equal(t, []string{"loud"}, rec.got)
	err = store.Run(ctx, db, store.ReadOnly, []string{league.StoreEvents}, func(tx store.Tx) error {
		evs, err := league.NewRepo(tx).Events(ctx, 2020)
		require.NoError(t, err)
		assert.Len(t, evs, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	l := New(quiet())
	defer l.Close()

	// events is not in scope, so the write fails and is only logged
	err := store.Run(ctx, db, store.ReadWrite, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		l.Add(ctx, tx, event("x", true))
		return nil
	})
	assert.NoError(t, err)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	rec := newRecorder(true)
	l := New(quiet(), rec)

	err := store.Run(ctx, db, store.ReadWrite, []string{league.StoreEvents}, func(tx store.Tx) error {
		for i := range 6 {
			l.Add(ctx, tx, event(string(rune('a'+i)), true))
		}
		return nil
	})
	require.NoError(t, err)
	l.Close()

	assert.Equal(t, 3, rec.calls())
	assert.Equal(t, "open", l.State()["recorder"])
}

func TestAddAfterCloseDoesNotPanic(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	l := New(quiet(), newRecorder(false))
	l.Close()
	l.Close()

	err := store.Run(ctx, db, store.ReadWrite, []string{league.StoreEvents}, func(tx store.Tx) error {
		l.Add(ctx, tx, event("late", true))
		return nil
	})
	assert.NoError(t, err)
}
