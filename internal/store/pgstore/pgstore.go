// Package pgstore keeps league stores in Postgres tables shared by every
// league on the server, partitioned by league id.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"leaguesim/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS league_records (
	league_id  text NOT NULL,
	store      text NOT NULL,
	key        text NOT NULL,
	body       text NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (league_id, store, key)
);
CREATE TABLE IF NOT EXISTS league_record_index (
	league_id text NOT NULL,
	store     text NOT NULL,
	key       text NOT NULL,
	name      text NOT NULL,
	value     text NOT NULL,
	PRIMARY KEY (league_id, store, key, name)
);
CREATE INDEX IF NOT EXISTS league_record_index_lookup
	ON league_record_index (league_id, store, name, value);
`

type Driver struct {
	pool     *pgxpool.Pool
	leagueID string
	log      *slog.Logger
}

func New(pool *pgxpool.Pool, leagueID string, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{pool: pool, leagueID: leagueID, log: logger}
}

func (d *Driver) Migrate(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate league tables: %w", err)
	}
	return nil
}

// Close is a no-op: the pool belongs to the caller.
func (d *Driver) Close() error { return nil }

func (d *Driver) Begin(ctx context.Context, mode store.Mode, stores ...string) (store.Tx, error) {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}
	if mode == store.ReadWrite {
		opts = pgx.TxOptions{IsoLevel: pgx.Serializable}
	}
	tx, err := d.pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin %s tx: %w", mode, err)
	}
	return &pgTx{Scope: store.NewScope(mode, stores), tx: tx, leagueID: d.leagueID}, nil
}

type pgTx struct {
	store.Scope
	tx       pgx.Tx
	leagueID string
	done     bool
}

func (t *pgTx) Get(ctx context.Context, name, key string) ([]byte, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	if err := t.CheckRead(name); err != nil {
		return nil, err
	}
	var body string
	err := t.tx.QueryRow(ctx, `
		SELECT body
		FROM league_records
		WHERE league_id = $1 AND store = $2 AND key = $3
	`, t.leagueID, name, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return []byte(body), nil
}

func (t *pgTx) Scan(ctx context.Context, name string, q store.Query, fn store.Visit) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := t.CheckRead(name); err != nil {
		return err
	}
	var (
		rows pgx.Rows
		err  error
	)
	if q.Index == "" {
		rows, err = t.tx.Query(ctx, `
			SELECT key, body
			FROM league_records
			WHERE league_id = $1 AND store = $2 AND key LIKE $3
			ORDER BY key
		`, t.leagueID, name, q.Prefix+"%")
	} else {
		rows, err = t.tx.Query(ctx, `
			SELECT r.key, r.body
			FROM league_records r
			JOIN league_record_index i
				ON i.league_id = r.league_id AND i.store = r.store AND i.key = r.key
			WHERE r.league_id = $1 AND r.store = $2 AND i.name = $3 AND i.value = $4 AND r.key LIKE $5
			ORDER BY r.key
		`, t.leagueID, name, q.Index, q.Value, q.Prefix+"%")
	}
	if err != nil {
		return mapErr(err)
	}
	type row struct {
		key  string
		body string
	}
	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.body); err != nil {
			rows.Close()
			return mapErr(err)
		}
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapErr(err)
	}

	for _, r := range out {
		more, err := fn(r.key, []byte(r.body))
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func (t *pgTx) Put(ctx context.Context, name, key string, body []byte, idx store.Index) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := t.CheckWrite(name); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO league_records (league_id, store, key, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (league_id, store, key) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`, t.leagueID, name, key, string(body)); err != nil {
		return mapErr(err)
	}
	return t.writeIndex(ctx, name, key, idx)
}

func (t *pgTx) Add(ctx context.Context, name, key string, body []byte, idx store.Index) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := t.CheckWrite(name); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO league_records (league_id, store, key, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (league_id, store, key) DO NOTHING
	`, t.leagueID, name, key, string(body))
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDuplicate
	}
	return t.writeIndex(ctx, name, key, idx)
}

func (t *pgTx) writeIndex(ctx context.Context, name, key string, idx store.Index) error {
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM league_record_index
		WHERE league_id = $1 AND store = $2 AND key = $3
	`, t.leagueID, name, key); err != nil {
		return mapErr(err)
	}
	for k, v := range idx {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO league_record_index (league_id, store, key, name, value)
			VALUES ($1, $2, $3, $4, $5)
		`, t.leagueID, name, key, k, v); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, name, key string) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := t.CheckWrite(name); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM league_record_index
		WHERE league_id = $1 AND store = $2 AND key = $3
	`, t.leagueID, name, key); err != nil {
		return mapErr(err)
	}
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM league_records
		WHERE league_id = $1 AND store = $2 AND key = $3
	`, t.leagueID, name, key); err != nil {
		return mapErr(err)
	}
	return nil
}

func (t *pgTx) CompareAndSwap(ctx context.Context, name, key string, old, new []byte) (bool, error) {
	if t.done {
		return false, store.ErrTxDone
	}
	if err := t.CheckWrite(name); err != nil {
		return false, err
	}
	var (
		tag pgconn.CommandTag
		err error
	)
	if old == nil {
		tag, err = t.tx.Exec(ctx, `
			INSERT INTO league_records (league_id, store, key, body)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (league_id, store, key) DO NOTHING
		`, t.leagueID, name, key, string(new))
	} else {
		tag, err = t.tx.Exec(ctx, `
			UPDATE league_records
			SET body = $5, updated_at = now()
			WHERE league_id = $1 AND store = $2 AND key = $3 AND body = $4
		`, t.leagueID, name, key, string(old), string(new))
	}
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		_ = t.tx.Rollback(context.Background())
		return err
	}
	if err := t.tx.Commit(ctx); err != nil {
		return mapErr(err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	// the caller's context may already be cancelled by an abort
	return t.tx.Rollback(context.Background())
}

func mapErr(err error) error {
	if isSerializationError(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
