// Package sqlstore implements adapter.Adapter against MySQL using sqlx,
// grounded on the teacher's own storage stack (jmoiron/sqlx +
// go-sql-driver/mysql). Schema setup is handled by golang-migrate, driven
// from cmd/relaychat-initdb, not by this package at runtime.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	mysqlmigrate "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/relaychat/server/internal/store/adapter"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a MySQL-backed adapter.Adapter.
type Store struct {
	dsn string
	db  *sqlx.DB
	log *slog.Logger
}

// New creates a Store bound to dsn. Call Open before use.
func New(dsn string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dsn: dsn, log: log}
}

func (s *Store) Open(ctx context.Context) error {
	db, err := sqlx.ConnectContext(ctx, "mysql", s.dsn)
	if err != nil {
		return fmt.Errorf("sqlstore: connect: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	s.db = db
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Name() string                   { return "mysql" }

// Migrate runs every pending schema migration. It is invoked by
// cmd/relaychat-initdb, not automatically on Open, so that schema changes
// are an explicit, logged operator action.
func (s *Store) Migrate(ctx context.Context) error {
	driver, err := mysqlmigrate.WithInstance(s.db.DB, &mysqlmigrate.Config{})
	if err != nil {
		return fmt.Errorf("sqlstore: migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlstore: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return fmt.Errorf("sqlstore: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlstore: migrate up: %w", err)
	}
	s.log.Info("schema migrated")
	return nil
}

func (s *Store) Users() adapter.UserRepo             { return &userRepo{s} }
func (s *Store) Rooms() adapter.RoomRepo             { return &roomRepo{s} }
func (s *Store) Memberships() adapter.MembershipRepo { return &membershipRepo{s} }
func (s *Store) Messages() adapter.MessageRepo       { return &messageRepo{s} }
func (s *Store) Sessions() adapter.SessionRepo       { return &sessionRepo{s} }
func (s *Store) Invitations() adapter.InvitationRepo { return &invitationRepo{s} }
func (s *Store) Audit() adapter.AuditRepo            { return &auditRepo{s} }

func (s *Store) Begin(ctx context.Context) (adapter.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: begin: %w", err)
	}
	return tx, nil
}

func (s *Store) Commit(ctx context.Context, tx adapter.Tx) error {
	return tx.(*sqlx.Tx).Commit()
}

func (s *Store) Rollback(ctx context.Context, tx adapter.Tx) error {
	err := tx.(*sqlx.Tx).Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// IsSerializationConflict recognizes MySQL's deadlock/conflict error codes
// (1213 deadlock, 1205 lock wait timeout) as retryable.
func (s *Store) IsSerializationConflict(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205
	}
	return false
}

// ext returns the queryer/execer for the given tx, or the pool if tx is nil.
// Repo methods that are allowed to run outside a transaction (single-row
// reads, per spec section 4.C) call this with a nil tx.
func (s *Store) ext(tx adapter.Tx) sqlx.ExtContext {
	if tx == nil {
		return s.db
	}
	return tx.(*sqlx.Tx)
}
