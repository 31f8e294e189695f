// Package store defines the minimal record-store contract the bot persists
// users, job listings and log lines through. Implementations live in
// sub-packages: pgstore (Postgres via gorm), memstore (in-memory) and noop.
package store

import (
	"context"
	"errors"
	"fmt"
)

const (
	TableUsers = "users"
	TableJobs  = "jobs"
	TableLogs  = "logs"
)

// Row is a single record keyed by column name.
type Row map[string]any

// Filter selects rows by column equality. An empty filter matches every row.
type Filter map[string]any

// Store is the record-store contract.
type Store interface {
	Insert(ctx context.Context, table string, row Row) error
	Update(ctx context.Context, table string, filter Filter, patch Row) (int64, error)
	Select(ctx context.Context, table string, filter Filter, opts ...SelectOption) ([]Row, error)
	Close() error
}

// SelectOptions tune a Select call.
type SelectOptions struct {
	OrderBy string
	Desc    bool
	Limit   int
}

type SelectOption func(*SelectOptions)

func OrderBy(column string, desc bool) SelectOption {
	return func(o *SelectOptions) {
		o.OrderBy = column
		o.Desc = desc
	}
}

func Limit(n int) SelectOption {
	return func(o *SelectOptions) {
		o.Limit = n
	}
}

// ApplyOptions folds opts into a SelectOptions value.
func ApplyOptions(opts ...SelectOption) SelectOptions {
	var o SelectOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Kind tells whether a failed operation is worth retrying.
type Kind int

const (
	Permanent Kind = iota
	Transient
)

func (k Kind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// ErrNotConfigured is returned when a live store is requested without credentials.
var ErrNotConfigured = errors.New("record store is not configured")

// Error is returned by every Store implementation for failed operations.
type Error struct {
	Op    string
	Table string
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("store %s %s (%s): %v", e.Op, e.Table, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError wraps err with operation metadata.
func NewError(op, table string, kind Kind, err error) *Error {
	return &Error{Op: op, Table: table, Kind: kind, Err: err}
}

// IsTransient reports whether err carries a transient store error.
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se != nil && se.Kind == Transient
	}
	return false
}
