package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jobybot/pkg/store"
)

// MemStore is an in-memory implementation of store.Store for tests and local runs.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string][]store.Row
	calls  map[string]int
	fail   map[string][]failure
}

type failure struct {
	kind store.Kind
	err  error
}

var _ store.Store = (*MemStore)(nil)

// New creates an empty store.
func New() *MemStore {
	return &MemStore{
		tables: make(map[string][]store.Row),
		calls:  make(map[string]int),
		fail:   make(map[string][]failure),
	}
}

// Fail makes the next `times` calls of op ("insert", "update", "select") fail with kind.
func (m *MemStore) Fail(op string, kind store.Kind, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < times; i++ {
		m.fail[op] = append(m.fail[op], failure{kind: kind, err: fmt.Errorf("injected %s failure", kind)})
	}
}

// Calls returns how many times op was invoked, failed calls included.
func (m *MemStore) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// Rows returns a copy of every row in table.
func (m *MemStore) Rows(table string) []store.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

func (m *MemStore) Insert(ctx context.Context, table string, row store.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "insert", table); err != nil {
		return err
	}
	m.tables[table] = append(m.tables[table], copyRow(row))
	return nil
}

func (m *MemStore) Update(ctx context.Context, table string, filter store.Filter, patch store.Row) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "update", table); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range m.tables[table] {
		if !matches(r, filter) {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		n++
	}
	return n, nil
}

func (m *MemStore) Select(ctx context.Context, table string, filter store.Filter, opts ...store.SelectOption) ([]store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "select", table); err != nil {
		return nil, err
	}

	var rows []store.Row
	for _, r := range m.tables[table] {
		if matches(r, filter) {
			rows = append(rows, copyRow(r))
		}
	}

	o := store.ApplyOptions(opts...)
	if o.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			c := compare(rows[i][o.OrderBy], rows[j][o.OrderBy])
			if o.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if o.Limit > 0 && o.Limit < len(rows) {
		rows = rows[:o.Limit]
	}
	return rows, nil
}

// Close does nothing for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}

// enter must be called with m.mu held.
func (m *MemStore) enter(ctx context.Context, op, table string) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return store.NewError(op, table, store.Permanent, err)
	}
	queue := m.fail[op]
	if len(queue) == 0 {
		return nil
	}
	f := queue[0]
	m.fail[op] = queue[1:]
	return store.NewError(op, table, f.kind, f.err)
}

func matches(r store.Row, filter store.Filter) bool {
	for k, want := range filter {
		got, ok := r[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func compare(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return cmpOrdered(av, bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return cmpOrdered(av, bv)
		}
	}
	return cmpOrdered(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpOrdered[T int | int64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func copyRow(r store.Row) store.Row {
	out := make(store.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

