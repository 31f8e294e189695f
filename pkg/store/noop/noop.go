// Package noop provides a record store that accepts every write and returns
// no rows. It backs the bot when database credentials are absent.
package noop

import (
	"context"

	"jobybot/pkg/store"
)

type Store struct{}

var _ store.Store = Store{}

func New() Store {
	return Store{}
}

func (Store) Insert(context.Context, string, store.Row) error {
	return nil
}

func (Store) Update(context.Context, string, store.Filter, store.Row) (int64, error) {
	return 0, nil
}

func (Store) Select(context.Context, string, store.Filter, ...store.SelectOption) ([]store.Row, error) {
	return nil, nil
}

func (Store) Close() error {
	return nil
}
