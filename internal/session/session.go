// Package session provides the request-scoped database transaction wrapper.
// A Session owns exactly one pooled connection for the duration of one
// request and defers opening the transaction until the first statement runs,
// so requests that never touch the database cost no transaction control at
// all. Unrelated to HTTP session cookies.
package session

import (
	"context"
	"database/sql"
	"sync"

	"harmonia.org/internal/fault"
	"harmonia.org/internal/obs"
)

// Manager hands out one Session per inbound request.
type Manager interface {
	Prepare(ctx context.Context) (*Session, error)
}

// PoolManager is the production Manager over a *sql.DB connection pool.
type PoolManager struct {
	db *sql.DB
}

// NewManager wraps a connection pool.
func NewManager(db *sql.DB) *PoolManager {
	return &PoolManager{db: db}
}

// Prepare checks one connection out of the pool for the request.
func (m *PoolManager) Prepare(ctx context.Context) (*Session, error) {
	if m == nil || m.db == nil {
		return nil, fault.Internal("no session manager present", nil)
	}
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fault.Database(err)
	}
	return &Session{conn: conn}, nil
}

// Session wraps one checked-out connection and at most one transaction.
// States: idle (no SQL issued yet), active (transaction begun on first Run),
// then exactly one of committed or rolled back. The mutex serializes
// concurrent Run calls within a request so the transaction is never begun
// twice.
type Session struct {
	mu   sync.Mutex
	conn *sql.Conn
	tx   *sql.Tx
	done bool
}

// Run executes f against the live transaction, beginning it on the very
// first invocation within the session's lifetime. Errors from f propagate
// to the caller untouched; triggering rollback is the owner's concern.
func (s *Session) Run(ctx context.Context, f func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return fault.Internal("session already finalized", nil)
	}
	if s.conn == nil {
		return fault.Internal("session has no database connection", nil)
	}
	if s.tx == nil {
		// Detached from request cancellation: finalization must stay in the
		// hands of the owning middleware even if the client disconnects
		// mid-handler. database/sql would otherwise auto-rollback under us.
		tx, err := s.conn.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			return fault.Database(err)
		}
		obs.LogRequest(map[string]any{"level": "debug", "msg": "session_transaction_started"})
		s.tx = tx
	}
	return f(s.tx)
}

// Commit finalizes the session. A session that never ran any SQL has no
// transaction to close; the connection is still released.
func (s *Session) Commit() error {
	return s.finalize("committed", func(tx *sql.Tx) error { return tx.Commit() })
}

// Rollback finalizes the session, discarding any work. No-op when idle.
func (s *Session) Rollback() error {
	return s.finalize("rolled_back", func(tx *sql.Tx) error { return tx.Rollback() })
}

func (s *Session) finalize(outcome string, end func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true

	conn := s.conn
	s.conn = nil
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	if s.tx == nil {
		obs.SessionFinalized("idle")
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := end(tx); err != nil {
		obs.SessionFinalized("failed")
		return fault.Database(err)
	}
	obs.SessionFinalized(outcome)
	return nil
}

type ctxKey struct{}

// ContextWith attaches the request's session to the context.
func ContextWith(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext extracts the request's session.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
