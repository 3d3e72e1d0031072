package store

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
)

type record struct {
	body []byte
	idx  Index
}

// Memory is an in-process driver. Read-write transactions hold exclusive
// locks on their declared stores until they finish, so two overlapping
// transactions never interleave writes.
type Memory struct {
	mu     sync.Mutex
	locks  map[string]*sync.RWMutex
	tables map[string]map[string]record
}

func NewMemory() *Memory {
	return &Memory{
		locks:  make(map[string]*sync.RWMutex),
		tables: make(map[string]map[string]record),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Begin(ctx context.Context, mode Mode, stores ...string) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scope := NewScope(mode, stores)
	names := scope.Stores()

	m.mu.Lock()
	held := make([]*sync.RWMutex, 0, len(names))
	for _, name := range names {
		l, ok := m.locks[name]
		if !ok {
			l = &sync.RWMutex{}
			m.locks[name] = l
			m.tables[name] = make(map[string]record)
		}
		held = append(held, l)
	}
	m.mu.Unlock()

	// names are sorted, so lock order is global
	for _, l := range held {
		if mode == ReadWrite {
			l.Lock()
		} else {
			l.RLock()
		}
	}
	return &memTx{
		Scope:  scope,
		m:      m,
		held:   held,
		writes: make(map[string]map[string]*record),
	}, nil
}

func (m *Memory) table(name string) map[string]record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[name]
}

type memTx struct {
	Scope
	m      *Memory
	held   []*sync.RWMutex
	writes map[string]map[string]*record
	done   bool
}

func (t *memTx) lookup(store, key string) (record, bool) {
	if w, ok := t.writes[store]; ok {
		if rec, ok := w[key]; ok {
			if rec == nil {
				return record{}, false
			}
			return *rec, true
		}
	}
	rec, ok := t.m.table(store)[key]
	return rec, ok
}

func (t *memTx) Get(ctx context.Context, store, key string) ([]byte, error) {
	if t.done {
		return nil, ErrTxDone
	}
	if err := t.CheckRead(store); err != nil {
		return nil, err
	}
	rec, ok := t.lookup(store, key)
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(rec.body), nil
}

func (t *memTx) Scan(ctx context.Context, store string, q Query, fn Visit) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.CheckRead(store); err != nil {
		return err
	}
	seen := make(map[string]struct{})
	var keys []string
	for key := range t.m.table(store) {
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for key := range t.writes[store] {
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		if q.Prefix != "" && !strings.HasPrefix(key, q.Prefix) {
			continue
		}
		rec, ok := t.lookup(store, key)
		if !ok {
			continue
		}
		if q.Index != "" && rec.idx[q.Index] != q.Value {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		more, err := fn(key, bytes.Clone(rec.body))
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func (t *memTx) stage(store, key string, rec *record) {
	w, ok := t.writes[store]
	if !ok {
		w = make(map[string]*record)
		t.writes[store] = w
	}
	w[key] = rec
}

func (t *memTx) Put(ctx context.Context, store, key string, body []byte, idx Index) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.CheckWrite(store); err != nil {
		return err
	}
	t.stage(store, key, &record{body: bytes.Clone(body), idx: cloneIndex(idx)})
	return nil
}

func (t *memTx) Add(ctx context.Context, store, key string, body []byte, idx Index) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.CheckWrite(store); err != nil {
		return err
	}
	if _, ok := t.lookup(store, key); ok {
		return ErrDuplicate
	}
	t.stage(store, key, &record{body: bytes.Clone(body), idx: cloneIndex(idx)})
	return nil
}

func (t *memTx) Delete(ctx context.Context, store, key string) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.CheckWrite(store); err != nil {
		return err
	}
	t.stage(store, key, nil)
	return nil
}

func (t *memTx) CompareAndSwap(ctx context.Context, store, key string, old, new []byte) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	if err := t.CheckWrite(store); err != nil {
		return false, err
	}
	rec, ok := t.lookup(store, key)
	switch {
	case old == nil && ok:
		return false, nil
	case old != nil && (!ok || !bytes.Equal(rec.body, old)):
		return false, nil
	}
	t.stage(store, key, &record{body: bytes.Clone(new), idx: rec.idx})
	return true, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		t.release()
		return err
	}
	for store, w := range t.writes {
		table := t.m.table(store)
		for key, rec := range w {
			if rec == nil {
				delete(table, key)
				continue
			}
			table[key] = *rec
		}
	}
	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *memTx) release() {
	t.done = true
	t.writes = nil
	for _, l := range t.held {
		if t.Mode() == ReadWrite {
			l.Unlock()
		} else {
			l.RUnlock()
		}
	}
	t.held = nil
}

func cloneIndex(idx Index) Index {
	if idx == nil {
		return nil
	}
	out := make(Index, len(idx))
	for k, v := range idx {
		out[k] = v
	}
	return out
}
