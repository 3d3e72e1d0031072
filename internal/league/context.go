package league

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"leaguesim/internal/random"
	"leaguesim/internal/store"
	"leaguesim/internal/variant"

	"github.com/google/uuid"
)

// EventLogger records narrative events. Implementations must not fail the
// caller: errors are logged, never returned.
type EventLogger interface {
	Add(ctx context.Context, tx store.Tx, e Event)
}

// Context is threaded through every workflow in place of global league
// state. It is only valid for the life of its transaction.
type Context struct {
	Repo     *Repo
	Settings *Settings
	Variant  variant.Variant
	Rand     *random.Source
	Events   EventLogger
	Log      *slog.Logger
}

// Load reads the league settings through tx and resolves the variant.
func Load(ctx context.Context, tx store.Tx, rng *random.Source, events EventLogger, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	repo := NewRepo(tx)
	settings, err := repo.Settings(ctx)
	if err != nil {
		return nil, err
	}
	v, err := variant.ByName(settings.Variant)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = random.NewFromTime()
	}
	return &Context{
		Repo:     repo,
		Settings: settings,
		Variant:  v,
		Rand:     rng,
		Events:   events,
		Log:      logger,
	}, nil
}

func (c *Context) Season() int { return c.Settings.Season }

func (c *Context) Phase() Phase { return c.Settings.Phase }

func (c *Context) SaveSettings(ctx context.Context) error {
	return c.Repo.PutSettings(ctx, c.Settings)
}

// UserControlled reports whether tid's roster decisions belong to the user.
// Auto-play hands every team to the AI.
func (c *Context) UserControlled(tid int) bool {
	return !c.Settings.AutoPlay && c.Settings.IsUserTeam(tid)
}

// TeamName is the "Region Name" label used in event text. A team that
// cannot be read falls back to its tid.
func (c *Context) TeamName(ctx context.Context, tid int) string {
	t, err := c.Repo.Team(ctx, tid)
	if err != nil {
		c.Log.Warn("team name", "tid", tid, "err", err)
		return fmt.Sprintf("team %d", tid)
	}
	return t.Region + " " + t.Name
}

// Event stamps e with the current season and hands it to the event logger.
func (c *Context) Event(ctx context.Context, e Event) {
	if c.Events == nil {
		return
	}
	if e.Eid == "" {
		e.Eid = uuid.NewString()
	}
	if e.Season == 0 {
		e.Season = c.Settings.Season
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	c.Events.Add(ctx, c.Repo.Tx(), e)
}
