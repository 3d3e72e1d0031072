// Package store is the persistence driver used by the league engine: scoped
// transactions over named object stores holding JSON documents, with
// secondary indexes and early-exit iteration.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrDuplicate  = errors.New("record already exists")
	ErrOutOfScope = errors.New("store not declared in transaction scope")
	ErrReadOnly   = errors.New("write in read-only transaction")
	ErrTxDone     = errors.New("transaction already finished")
	ErrConflict   = errors.New("transaction conflict")
)

type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Index holds the secondary index values of a record, keyed by index name.
type Index map[string]string

// Query selects records of one store. An empty Index scans the whole store
// in key order; Prefix further restricts the primary key.
type Query struct {
	Index  string
	Value  string
	Prefix string
}

// Visit is called once per record during Scan. Returning false stops the scan.
type Visit func(key string, body []byte) (bool, error)

type Driver interface {
	Begin(ctx context.Context, mode Mode, stores ...string) (Tx, error)
	Close() error
}

type Tx interface {
	Get(ctx context.Context, store, key string) ([]byte, error)
	Scan(ctx context.Context, store string, q Query, fn Visit) error
	Put(ctx context.Context, store, key string, body []byte, idx Index) error
	Add(ctx context.Context, store, key string, body []byte, idx Index) error
	Delete(ctx context.Context, store, key string) error
	// CompareAndSwap replaces the record only when its current body equals
	// old. A nil old means "record absent".
	CompareAndSwap(ctx context.Context, store, key string, old, new []byte) (bool, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Mode() Mode
}

// Scope tracks the stores a transaction declared. Drivers embed it.
type Scope struct {
	mode   Mode
	stores map[string]struct{}
}

func NewScope(mode Mode, stores []string) Scope {
	s := Scope{mode: mode, stores: make(map[string]struct{}, len(stores))}
	for _, name := range stores {
		s.stores[name] = struct{}{}
	}
	return s
}

func (s Scope) Mode() Mode { return s.mode }

func (s Scope) CheckRead(store string) error {
	if _, ok := s.stores[store]; !ok {
		return fmt.Errorf("%w: %s", ErrOutOfScope, store)
	}
	return nil
}

func (s Scope) CheckWrite(store string) error {
	if err := s.CheckRead(store); err != nil {
		return err
	}
	if s.mode != ReadWrite {
		return fmt.Errorf("%w: %s", ErrReadOnly, store)
	}
	return nil
}

// Stores returns the declared store names in a stable order.
func (s Scope) Stores() []string {
	out := make([]string, 0, len(s.stores))
	for name := range s.stores {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Key joins key parts. Integers are zero padded so that lexical order
// matches numeric order for non-negative ids.
func Key(parts ...any) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case int:
			out = append(out, padInt(v))
		case bool:
			if v {
				out = append(out, "1")
			} else {
				out = append(out, "0")
			}
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return strings.Join(out, ":")
}

func padInt(v int) string {
	if v < 0 {
		return fmt.Sprintf("-%09d", -v)
	}
	return fmt.Sprintf("%010d", v)
}

func Get[T any](ctx context.Context, tx Tx, store, key string) (T, error) {
	var out T
	body, err := tx.Get(ctx, store, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", store, key, err)
	}
	return out, nil
}

func Put(ctx context.Context, tx Tx, store, key string, v any, idx Index) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", store, key, err)
	}
	return tx.Put(ctx, store, key, body, idx)
}

func Add(ctx context.Context, tx Tx, store, key string, v any, idx Index) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", store, key, err)
	}
	return tx.Add(ctx, store, key, body, idx)
}

// Iterate decodes every record matched by q and hands it to fn until fn
// returns false.
func Iterate[T any](ctx context.Context, tx Tx, store string, q Query, fn func(T) (bool, error)) error {
	return tx.Scan(ctx, store, q, func(key string, body []byte) (bool, error) {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return false, fmt.Errorf("decode %s/%s: %w", store, key, err)
		}
		return fn(v)
	})
}

func All[T any](ctx context.Context, tx Tx, store string, q Query) ([]T, error) {
	var out []T
	err := Iterate(ctx, tx, store, q, func(v T) (bool, error) {
		out = append(out, v)
		return true, nil
	})
	return out, err
}

// First returns the first record matched by q, or ErrNotFound.
func First[T any](ctx context.Context, tx Tx, store string, q Query) (T, error) {
	var (
		out   T
		found bool
	)
	err := Iterate(ctx, tx, store, q, func(v T) (bool, error) {
		out = v
		found = true
		return false, nil
	})
	if err != nil {
		return out, err
	}
	if !found {
		return out, ErrNotFound
	}
	return out, nil
}
