// Package pgstore implements store.Store on Postgres through gorm. Supabase
// projects expose a plain Postgres endpoint, so the bot talks to it directly.
package pgstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jobybot/pkg/store"
)

const pingTimeout = 10 * time.Second

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		telegram_id BIGINT PRIMARY KEY,
		username    TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL,
		city        TEXT NOT NULL,
		phone       TEXT NOT NULL,
		roles       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id          BIGSERIAL PRIMARY KEY,
		owner_id    BIGINT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL,
		price       BIGINT NOT NULL CHECK (price >= 0),
		city        TEXT NOT NULL,
		contact     TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS jobs_city_created_idx ON jobs (city, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS jobs_owner_idx ON jobs (owner_id)`,
	`CREATE TABLE IF NOT EXISTS logs (
		id        BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		type      TEXT NOT NULL,
		message   TEXT NOT NULL,
		details   TEXT NOT NULL DEFAULT ''
	)`,
}

// Store is a gorm backed record store.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, store.ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(logger.Named("gorm")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// EnsureSchema creates the users, jobs and logs tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return wrap("migrate", "", err)
		}
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, table string, row store.Row) error {
	values := map[string]interface{}(row)
	if err := s.db.WithContext(ctx).Table(table).Create(values).Error; err != nil {
		return wrap("insert", table, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, filter store.Filter, patch store.Row) (int64, error) {
	if len(filter) == 0 {
		return 0, store.NewError("update", table, store.Permanent, errors.New("refusing update without filter"))
	}
	res := s.db.WithContext(ctx).
		Table(table).
		Where(map[string]interface{}(filter)).
		Updates(map[string]interface{}(patch))
	if res.Error != nil {
		return 0, wrap("update", table, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) Select(ctx context.Context, table string, filter store.Filter, opts ...store.SelectOption) ([]store.Row, error) {
	q := s.db.WithContext(ctx).Table(table)
	if len(filter) > 0 {
		q = q.Where(map[string]interface{}(filter))
	}

	o := store.ApplyOptions(opts...)
	if o.OrderBy != "" {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: o.OrderBy}, Desc: o.Desc})
	}
	if o.Limit > 0 {
		q = q.Limit(o.Limit)
	}

	var found []map[string]interface{}
	if err := q.Find(&found).Error; err != nil {
		return nil, wrap("select", table, err)
	}

	rows := make([]store.Row, 0, len(found))
	for _, r := range found {
		rows = append(rows, store.Row(r))
	}
	return rows, nil
}

// Ping checks the connection for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return wrap("ping", "", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func wrap(op, table string, err error) error {
	return store.NewError(op, table, classify(err), err)
}

// classify decides whether a Postgres failure is expected to clear up on retry.
func classify(err error) store.Kind {
	if err == nil {
		return store.Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return store.Transient
	}
	if errors.Is(err, context.Canceled) {
		return store.Permanent
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}
	if pgconn.Timeout(err) {
		return store.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return store.Transient
	}
	return store.Permanent
}

func classifySQLState(code string) store.Kind {
	switch {
	case strings.HasPrefix(code, "08"): // connection exception
		return store.Transient
	case strings.HasPrefix(code, "53"): // insufficient resources
		return store.Transient
	case strings.HasPrefix(code, "57P0"): // admin/crash shutdown, cannot connect now
		return store.Transient
	case code == "40001", code == "40P01": // serialization failure, deadlock
		return store.Transient
	default:
		return store.Permanent
	}
}
