// Package sqlitestore keeps a single league in a local SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"leaguesim/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS league_records (
	league_id TEXT NOT NULL,
	store     TEXT NOT NULL,
	key       TEXT NOT NULL,
	body      TEXT NOT NULL,
	PRIMARY KEY (league_id, store, key)
);
CREATE TABLE IF NOT EXISTS league_record_index (
	league_id TEXT NOT NULL,
	store     TEXT NOT NULL,
	key       TEXT NOT NULL,
	name      TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (league_id, store, key, name)
);
CREATE INDEX IF NOT EXISTS league_record_index_lookup
	ON league_record_index (league_id, store, name, value);
`

type Driver struct {
	db       *sql.DB
	leagueID string
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway database.
func Open(path, leagueID string) (*Driver, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_txlock=immediate&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &Driver{db: db, leagueID: leagueID}, nil
}

func (d *Driver) Close() error { return d.db.Close() }

func (d *Driver) Begin(ctx context.Context, mode store.Mode, stores ...string) (store.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %s tx: %w", mode, err)
	}
	return &sqliteTx{Scope: store.NewScope(mode, stores), tx: tx, leagueID: d.leagueID}, nil
}

type sqliteTx struct {
	store.Scope
	tx       *sql.Tx
	leagueID string
	done     bool
}

func (t *sqliteTx) Get(ctx context.Context, name, key string) ([]byte, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	if err := t.CheckRead(name); err != nil {
		return nil, err
	}
	var body string
	err := t.tx.QueryRowContext(ctx, `
		SELECT body FROM league_records
		WHERE league_id = ? AND store = ? AND key = ?
	`, t.leagueID, name, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (t *sqliteTx) Scan(ctx context.Context, name string, q store.Query, fn store.Visit) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := t.CheckRead(name); err != nil {
		return err
	}
	var (
		rows *sql.Rows
		err  error
	)
	if q.Index == "" {
		rows, err = t.tx.QueryContext(ctx, `
			SELECT key, body FROM league_records
			WHERE league_id = ? AND store = ? AND key LIKE ?
			ORDER BY key
		`, t.leagueID, name, q.Prefix+"%")
	} else {
		rows, err = t.tx.QueryContext(ctx, `
			SELECT r.key, r.body
			FROM league_records r
			JOIN league_record_index i
				ON i.league_id = r.league_id AND i.store = r.store AND i.key = r.key
			WHERE r.league_id = ? AND r.store = ? AND i.name = ? AND i.value = ? AND r.key LIKE ?
			ORDER BY r.key
		`, t.leagueID, name, q.Index, q.Value, q.Prefix+"%")
	}
	if err != nil {
		return err
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
			return err
		}
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
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

func (t *sqliteTx) Put(ctx context.Context, name, key string, body []byte, idx store.Index) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := t.CheckWrite(name); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO league_records (league_id, store, key, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (league_id, store, key) DO UPDATE SET body = excluded.body
	`, t.leagueID, name, key, string(body)); err != nil {
		return err
	}
	return t.writeIndex(ctx, name, key, idx)
}

func (t *sqliteTx) Add(ctx context.Context, name, key string, body []byte, idx store.Index) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := t.CheckWrite(name); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO league_records (league_id, store, key, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (league_id, store, key) DO NOTHING
	`, t.leagueID, name, key, string(body))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrDuplicate
	}
	return t.writeIndex(ctx, name, key, idx)
}

func (t *sqliteTx) writeIndex(ctx context.Context, name, key string, idx store.Index) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM league_record_index
		WHERE league_id = ? AND store = ? AND key = ?
	`, t.leagueID, name, key); err != nil {
		return err
	}
	for k, v := range idx {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO league_record_index (league_id, store, key, name, value)
			VALUES (?, ?, ?, ?, ?)
		`, t.leagueID, name, key, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) Delete(ctx context.Context, name, key string) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := t.CheckWrite(name); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM league_record_index WHERE league_id = ? AND store = ? AND key = ?
	`, t.leagueID, name, key); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM league_records WHERE league_id = ? AND store = ? AND key = ?
	`, t.leagueID, name, key)
	return err
}

func (t *sqliteTx) CompareAndSwap(ctx context.Context, name, key string, old, new []byte) (bool, error) {
	if t.done {
		return false, store.ErrTxDone
	}
	if err := t.CheckWrite(name); err != nil {
		return false, err
	}
	var (
		res sql.Result
		err error
	)
	if old == nil {
		res, err = t.tx.ExecContext(ctx, `
			INSERT INTO league_records (league_id, store, key, body)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (league_id, store, key) DO NOTHING
		`, t.leagueID, name, key, string(new))
	} else {
		res, err = t.tx.ExecContext(ctx, `
			UPDATE league_records SET body = ?
			WHERE league_id = ? AND store = ? AND key = ? AND body = ?
		`, string(new), t.leagueID, name, key, string(old))
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		_ = t.tx.Rollback()
		return err
	}
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
