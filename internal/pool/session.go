// Package pool implements the adaptive session pool at the center of the
// serving core. The pool is the exclusive owner of database sessions;
// callers hold them only through scoped leases.
package pool

import (
	"context"
	"database/sql"
	"time"

	// Postgres driver behind the session factory.
	_ "github.com/lib/pq"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
)

// Session is one reusable physical connection leased to callers.
type Session interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Factory opens a new session. Implementations must respect ctx.
type Factory func(ctx context.Context) (Session, error)

// sqlSession adapts a dedicated *sql.Conn to the Session interface.
type sqlSession struct {
	conn *sql.Conn
}

func (s *sqlSession) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, query, args...)
}

func (s *sqlSession) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.conn.ExecContext(ctx, query, args...)
}

func (s *sqlSession) PingContext(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *sqlSession) Close() error {
	return s.conn.Close()
}

// PostgresFactory opens sessions against the configured endpoint. It keeps
// one *sql.DB purely as a dialer; session lifecycle is governed by the pool,
// so the handle's own pooling is left unbounded.
type PostgresFactory struct {
	db             *sql.DB
	connectTimeout time.Duration
}

// NewPostgresFactory validates the endpoint and returns a factory.
func NewPostgresFactory(endpoint string, connectTimeout time.Duration) (*PostgresFactory, error) {
	db, err := sql.Open("postgres", endpoint)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectFailed, "open database endpoint", err)
	}
	db.SetMaxIdleConns(0)
	db.SetConnMaxLifetime(0)
	return &PostgresFactory{db: db, connectTimeout: connectTimeout}, nil
}

// New opens one session, bounded by the factory's connect timeout and ctx,
// whichever is tighter.
func (f *PostgresFactory) New(ctx context.Context) (Session, error) {
	if f.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.connectTimeout)
		defer cancel()
	}
	conn, err := f.db.Conn(ctx)
	if err != nil {
		if ctxErr := apperrors.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.Wrap(apperrors.KindConnectFailed, "open session", err)
	}
	return &sqlSession{conn: conn}, nil
}

// Close releases the dialer handle.
func (f *PostgresFactory) Close() error {
	return f.db.Close()
}
