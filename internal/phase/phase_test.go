package phase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaguesim/internal/league"
	"leaguesim/internal/league/leaguetest"
	"leaguesim/internal/random"
	"leaguesim/internal/realtime"
	"leaguesim/internal/store"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// seed commits a league with two players per team.
func seed(t *testing.T, db store.Driver, numTeams int, phase league.Phase) *leaguetest.Events {
	t.Helper()
	c, ev := leaguetest.NewWithDriver(t, db, leaguetest.Options{NumTeams: numTeams, Season: 2020, Phase: phase})
	for tid := 0; tid < numTeams; tid++ {
		leaguetest.AddPlayer(t, c, tid, "C", 60, 1000, 25)
		leaguetest.AddPlayer(t, c, tid, "PG", 50, 750, 30)
	}
	require.NoError(t, c.Repo.Tx().Commit(context.Background()))
	return ev
}

func newMachine(db store.Driver, ev league.EventLogger, hub *realtime.Hub) *Machine {
	return New(db, Options{Rand: random.New(9), Events: ev, Hub: hub, Logger: quiet()})
}

func read(t *testing.T, db store.Driver, fn func(c *league.Context)) {
	t.Helper()
	ctx := context.Background()
	err := store.Run(ctx, db, store.ReadOnly, league.AllStores, func(tx store.Tx) error {
		c, err := league.Load(ctx, tx, nil, nil, quiet())
		if err != nil {
			return err
		}
		fn(c)
		return nil
	})
	require.NoError(t, err)
}

func drain(ch <-chan realtime.Update) []realtime.Update {
	var out []realtime.Update
	for {
		select {
		case u := <-ch:
			out = append(out, u)
		default:
			return out
		}
	}
}

func TestPreseasonStartsNewSeason(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	ev := seed(t, db, 30, league.PhaseFreeAgency)
	hub := realtime.NewHub(quiet())
	updates, unsub := hub.Subscribe(4)
	defer unsub()
	m := newMachine(db, ev, hub)

	require.NoError(t, m.NewPhase(ctx, league.PhasePreseason, Extra{}))

	read(t, db, func(c *league.Context) {
		assert.Equal(t, 2021, c.Season())
		assert.Equal(t, league.PhasePreseason, c.Phase())

		rows, err := c.Repo.TeamSeasons(ctx, 2021)
		require.NoError(t, err)
		assert.Len(t, rows, 30)
		for _, ts := range rows {
			assert.Equal(t, -1, ts.PlayoffRoundsWon)
		}

		players, err := c.Repo.Players(ctx, league.PlayerFilter{MinTid: league.TidAtLeast(0)})
		require.NoError(t, err)
		require.Len(t, players, 60)
		for _, p := range players {
			require.Len(t, p.Ratings, 2)
			assert.Equal(t, 2021, p.Latest().Season)
			_, err := c.Repo.PlayerStats(ctx, p.Pid, 2021, false, p.Tid)
			assert.NoError(t, err)
		}

		teams, err := c.Repo.Teams(ctx)
		require.NoError(t, err)
		ranks := make([]int, 0, len(teams))
		for _, tm := range teams {
			ranks = append(ranks, tm.Budget.Facilities.Rank)
		}
		sort.Ints(ranks)
		for i, r := range ranks {
			assert.Equal(t, i+1, r)
		}
	})

	got := drain(updates)
	require.Len(t, got, 1)
	assert.True(t, got[0].Has("newPhase"))
	assert.Equal(t, "/roster", got[0].RedirectURL)

	lock, err := ReadLock(ctx, db)
	require.NoError(t, err)
	assert.False(t, lock.InProgress)
	assert.False(t, m.InProgress())
}

func TestAddSeasonRowTwiceIsHarmless(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	ev := seed(t, db, 4, league.PhaseFreeAgency)

	// a stray row for next season must survive the preseason untouched
	err := store.Run(ctx, db, store.ReadWrite, league.AllStores, func(tx store.Tx) error {
		_, err := league.NewRepo(tx).AddSeasonRow(ctx, league.TeamSeason{Tid: 0, Season: 2021, Won: 3, PlayoffRoundsWon: -1})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, newMachine(db, ev, nil).NewPhase(ctx, league.PhasePreseason, Extra{}))
	read(t, db, func(c *league.Context) {
		rows, err := c.Repo.TeamSeasons(ctx, 2021)
		require.NoError(t, err)
		assert.Len(t, rows, 4)
		ts, err := c.Repo.TeamSeason(ctx, 0, 2021)
		require.NoError(t, err)
		assert.Equal(t, 3, ts.Won)
	})
}

type countingDriver struct {
	store.Driver
	writes atomic.Int64
}

func (d *countingDriver) Begin(ctx context.Context, mode store.Mode, stores ...string) (store.Tx, error) {
	tx, err := d.Driver.Begin(ctx, mode, stores...)
	if err != nil {
		return nil, err
	}
	return &countingTx{Tx: tx, n: &d.writes}, nil
}

type countingTx struct {
	store.Tx
	n *atomic.Int64
}

func (t *countingTx) Put(ctx context.Context, s, key string, body []byte, idx store.Index) error {
	t.n.Add(1)
	return t.Tx.Put(ctx, s, key, body, idx)
}

func (t *countingTx) Add(ctx context.Context, s, key string, body []byte, idx store.Index) error {
	t.n.Add(1)
	return t.Tx.Add(ctx, s, key, body, idx)
}

func (t *countingTx) Delete(ctx context.Context, s, key string) error {
	t.n.Add(1)
	return t.Tx.Delete(ctx, s, key)
}

func (t *countingTx) CompareAndSwap(ctx context.Context, s, key string, old, new []byte) (bool, error) {
	t.n.Add(1)
	return t.Tx.CompareAndSwap(ctx, s, key, old, new)
}

func TestSamePhaseWritesNothing(t *testing.T) {
	mem := store.NewMemory()
	ev := seed(t, mem, 4, league.PhaseFreeAgency)
	db := &countingDriver{Driver: mem}
	hub := realtime.NewHub(quiet())
	updates, unsub := hub.Subscribe(4)
	defer unsub()

	require.NoError(t, newMachine(db, ev, hub).NewPhase(context.Background(), league.PhaseFreeAgency, Extra{}))
	assert.Zero(t, db.writes.Load())
	assert.Empty(t, drain(updates))
}

func TestIllegalTransitionRejected(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	ev := seed(t, db, 4, league.PhaseFreeAgency)
	m := newMachine(db, ev, nil)

	for _, target := range []league.Phase{league.PhaseDraft, league.PhasePlayoffs, league.PhaseRegularSeason} {
		err := m.NewPhase(ctx, target, Extra{})
		assert.ErrorIs(t, err, league.ErrIllegalTransition, target.String())
	}
	assert.False(t, m.InProgress())
	lock, err := ReadLock(ctx, db)
	require.NoError(t, err)
	assert.False(t, lock.InProgress)
}

func TestFreeAgencyTwiceAndFantasyDraftRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	ev := seed(t, db, 4, league.PhaseResignPlayers)
	m := newMachine(db, ev, nil)

	require.NoError(t, m.NewPhase(ctx, league.PhaseFreeAgency, Extra{}))
	var prospects int
	read(t, db, func(c *league.Context) {
		assert.Equal(t, league.PhaseFreeAgency, c.Phase())
		assert.Equal(t, FreeAgencyDays, c.Settings.DaysLeft)
		p, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{league.Undrafted3}})
		require.NoError(t, err)
		prospects = len(p)
	})
	require.NotZero(t, prospects)

	// a second request is a no-op, not a second free agency
	require.NoError(t, m.NewPhase(ctx, league.PhaseFreeAgency, Extra{}))
	read(t, db, func(c *league.Context) {
		p, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{league.Undrafted3}})
		require.NoError(t, err)
		assert.Len(t, p, prospects)
	})

	require.NoError(t, m.NewPhase(ctx, league.PhaseFantasyDraft, Extra{}))
	read(t, db, func(c *league.Context) {
		assert.Equal(t, league.PhaseFantasyDraft, c.Phase())
		require.NotNil(t, c.Settings.NextPhase)
		assert.Equal(t, league.PhaseFreeAgency, *c.Settings.NextPhase)
		pool, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{league.UndraftedFantasyTemp}})
		require.NoError(t, err)
		assert.Len(t, pool, 8)
		rostered, err := c.Repo.Players(ctx, league.PlayerFilter{MinTid: league.TidAtLeast(0)})
		require.NoError(t, err)
		assert.Empty(t, rostered)
	})

	require.NoError(t, m.FinishFantasyDraft(ctx))
	read(t, db, func(c *league.Context) {
		assert.Equal(t, league.PhaseFreeAgency, c.Phase())
		assert.Nil(t, c.Settings.NextPhase)
		rostered, err := c.Repo.Players(ctx, league.PlayerFilter{MinTid: league.TidAtLeast(0)})
		require.NoError(t, err)
		assert.Len(t, rostered, 8)
		picks, err := c.Repo.AllDraftPicks(ctx)
		require.NoError(t, err)
		for _, dp := range picks {
			assert.False(t, dp.Fantasy)
		}
	})

	err := m.FinishFantasyDraft(ctx)
	assert.ErrorIs(t, err, league.ErrWrongPhase)
}

func TestConcurrentTransitionsRunOnce(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	ev := seed(t, db, 4, league.PhaseFreeAgency)
	hub := realtime.NewHub(quiet())
	updates, unsub := hub.Subscribe(16)
	defer unsub()
	m := newMachine(db, ev, hub)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.NewPhase(ctx, league.PhasePreseason, Extra{})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, league.ErrPhaseChangeInProgress)
		}
	}
	assert.Len(t, drain(updates), 1)
	_, season, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2021, season)
}

func putLock(t *testing.T, db store.Driver, l league.PhaseLock) {
	t.Helper()
	ctx := context.Background()
	body, err := json.Marshal(l)
	require.NoError(t, err)
	err = store.Run(ctx, db, store.ReadWrite, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		return tx.Put(ctx, league.StoreGameAttributes, league.KeyPhaseChange, body, nil)
	})
	require.NoError(t, err)
}

func TestLockHeldByAnotherProcess(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	ev := seed(t, db, 4, league.PhaseFreeAgency)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	putLock(t, db, league.PhaseLock{InProgress: true, Owner: "other", Target: league.PhasePreseason, Since: now})

	m := New(db, Options{Rand: random.New(1), Events: ev, Logger: quiet(), Now: func() time.Time { return now.Add(time.Minute) }})
	err := m.NewPhase(ctx, league.PhasePreseason, Extra{})
	require.ErrorIs(t, err, league.ErrPhaseChangeInProgress)
	assert.False(t, m.InProgress())

	lock, err := ReadLock(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "other", lock.Owner)

	// the other process is presumed dead once its lock goes stale
	late := New(db, Options{Rand: random.New(1), Events: ev, Logger: quiet(), Now: func() time.Time { return now.Add(StaleLockAfter + time.Minute) }})
	require.NoError(t, late.NewPhase(ctx, league.PhasePreseason, Extra{}))
	lock, err = ReadLock(ctx, db)
	require.NoError(t, err)
	assert.False(t, lock.InProgress)
}

// gateDriver parks the first workflow transaction until released.
type gateDriver struct {
	store.Driver
	entered chan struct{}
	proceed chan struct{}
	once    sync.Once
}

func (g *gateDriver) Begin(ctx context.Context, mode store.Mode, stores ...string) (store.Tx, error) {
	if mode == store.ReadWrite && len(stores) > 1 {
		g.once.Do(func() {
			close(g.entered)
			<-g.proceed
		})
	}
	return g.Driver.Begin(ctx, mode, stores...)
}

func TestAbortCancelsInFlightTransition(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ev := seed(t, mem, 4, league.PhaseFreeAgency)
	db := &gateDriver{Driver: mem, entered: make(chan struct{}), proceed: make(chan struct{})}
	m := newMachine(db, ev, nil)

	assert.False(t, m.Abort())

	errc := make(chan error, 1)
	go func() { errc <- m.NewPhase(ctx, league.PhasePreseason, Extra{}) }()
	<-db.entered
	assert.True(t, m.InProgress())
	assert.True(t, m.Abort())
	close(db.proceed)

	err := <-errc
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.Abort())

	phase, season, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, league.PhaseFreeAgency, phase)
	assert.Equal(t, 2020, season)
	lock, err := ReadLock(ctx, mem)
	require.NoError(t, err)
	assert.False(t, lock.InProgress)
}

func TestAfterTradeDeadlineOnlyMovesPhase(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	ev := seed(t, db, 4, league.PhaseRegularSeason)

	require.NoError(t, newMachine(db, ev, nil).ChangePhase(ctx, league.PhaseAfterTradeDeadline))
	read(t, db, func(c *league.Context) {
		assert.Equal(t, league.PhaseAfterTradeDeadline, c.Phase())
		assert.Equal(t, 2020, c.Season())
	})
}

// commitGate parks the workflow transaction's commit until released.
type commitGate struct {
	store.Driver
	entered chan struct{}
	proceed chan struct{}
	once    sync.Once
}

type gatedTx struct {
	store.Tx
	g *commitGate
}

func (g *commitGate) Begin(ctx context.Context, mode store.Mode, stores ...string) (store.Tx, error) {
	tx, err := g.Driver.Begin(ctx, mode, stores...)
	if err != nil || mode != store.ReadWrite || len(stores) <= 1 {
		return tx, err
	}
	return gatedTx{Tx: tx, g: g}, nil
}

func (t gatedTx) Commit(ctx context.Context) error {
	t.g.once.Do(func() {
		close(t.g.entered)
		<-t.g.proceed
	})
	return t.Tx.Commit(ctx)
}

func TestAbortDuringCommitIsIgnored(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ev := seed(t, mem, 4, league.PhaseFreeAgency)
	db := &commitGate{Driver: mem, entered: make(chan struct{}), proceed: make(chan struct{})}
	m := newMachine(db, ev, nil)

	errc := make(chan error, 1)
	go func() { errc <- m.NewPhase(ctx, league.PhasePreseason, Extra{}) }()
	<-db.entered
	assert.False(t, m.Abort())
	close(db.proceed)
	require.NoError(t, <-errc)

	phase, season, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, league.PhasePreseason, phase)
	assert.Equal(t, 2021, season)
}

var errDiskFull = errors.New("disk full")

// failingDriver rejects every write to one store.
type failingDriver struct {
	store.Driver
	store string
}

type failingTx struct {
	store.Tx
	store string
}

func (d failingDriver) Begin(ctx context.Context, mode store.Mode, stores ...string) (store.Tx, error) {
	tx, err := d.Driver.Begin(ctx, mode, stores...)
	if err != nil {
		return nil, err
	}
	return failingTx{Tx: tx, store: d.store}, nil
}

func (t failingTx) Put(ctx context.Context, name, key string, body []byte, idx store.Index) error {
	if name == t.store {
		return errDiskFull
	}
	return t.Tx.Put(ctx, name, key, body, idx)
}

func TestWorkflowStorageErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ev := seed(t, mem, 4, league.PhaseFreeAgency)
	// budget ranks are the last preseason write, after season rows and
	// ratings have been staged
	m := newMachine(failingDriver{Driver: mem, store: league.StoreTeams}, ev, nil)

	err := m.NewPhase(ctx, league.PhasePreseason, Extra{})
	require.ErrorIs(t, err, errDiskFull)
	assert.Contains(t, err.Error(), "phase preseason")
	assert.False(t, m.InProgress())

	read(t, mem, func(c *league.Context) {
		assert.Equal(t, league.PhaseFreeAgency, c.Phase())
		assert.Equal(t, 2020, c.Season())
		_, err := c.Repo.TeamSeason(ctx, 0, 2021)
		assert.ErrorIs(t, err, store.ErrNotFound)
		ps, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{0}})
		require.NoError(t, err)
		require.NotEmpty(t, ps)
		for _, p := range ps {
			assert.Len(t, p.Ratings, 1, "pid %d", p.Pid)
		}
	})
	lock, err := ReadLock(ctx, mem)
	require.NoError(t, err)
	assert.False(t, lock.InProgress)

	// the same league moves on once storage recovers
	require.NoError(t, newMachine(mem, ev, nil).NewPhase(ctx, league.PhasePreseason, Extra{}))
}
