package pg

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"harmonia.org/internal/authn"
	"harmonia.org/internal/session"
)

// Store implements all persistence over a pgx-backed connection pool.
// Every query runs through the caller's request Session, so a request's
// statements share one transaction and commit or roll back together.
type Store struct {
	db *sql.DB
}

var (
	_ authn.RoleDirectory   = (*Store)(nil)
	_ authn.MemberDirectory = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool, for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// SessionManager hands out request sessions backed by this store's pool.
func (s *Store) SessionManager() session.Manager {
	return session.NewManager(s.db)
}
