package sqlitestore

import (
	"context"
	"testing"

	"leaguesim/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Pid int `json:"pid"`
	Tid int `json:"tid"`
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	d, err := Open(":memory:", "test")
	require.NoError(t, err)
	defer d.Close()

	err = store.Run(ctx, d, store.ReadWrite, []string{"players"}, func(tx store.Tx) error {
		for pid := 0; pid < 4; pid++ {
			tid := pid % 2
			if err := store.Put(ctx, tx, "players", store.Key(pid), row{Pid: pid, Tid: tid}, store.Index{"tid": store.Key(tid)}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	tx, err := d.Begin(ctx, store.ReadWrite, "players")
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	got, err := store.All[row](ctx, tx, "players", store.Query{Index: "tid", Value: store.Key(1)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Pid)
	assert.Equal(t, 3, got[1].Pid)

	assert.ErrorIs(t, store.Add(ctx, tx, "players", store.Key(0), row{}, nil), store.ErrDuplicate)

	ok, err := tx.CompareAndSwap(ctx, "players", "lock", nil, []byte(`true`))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tx.CompareAndSwap(ctx, "players", "lock", nil, []byte(`true`))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tx.Delete(ctx, "players", store.Key(1)))
	_, err = tx.Get(ctx, "players", store.Key(1))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
