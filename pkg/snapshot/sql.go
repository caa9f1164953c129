package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// SQLStore keeps snapshots in a database/sql table. Expiry is stored as
// unix milliseconds so the same queries work on every dialect:
//
//	CREATE TABLE pagewire_snapshots (
//	    id TEXT PRIMARY KEY,
//	    data BLOB NOT NULL,
//	    expires_at BIGINT NOT NULL
//	);
type SQLStore struct {
	db              *sql.DB
	table           string
	dialect         Dialect
	cleanupInterval time.Duration
	now             func() time.Time
	logger          *slog.Logger
	closed          atomic.Bool
	done            chan struct{}
}

// Dialect selects placeholder and DDL syntax.
type Dialect int

const (
	// DialectSQLite uses ? placeholders (modernc.org/sqlite, driver "sqlite").
	DialectSQLite Dialect = iota
	// DialectPostgreSQL uses $n placeholders.
	DialectPostgreSQL
)

// ParseDialect maps a driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch name {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "pgx", "postgresql":
		return DialectPostgreSQL, nil
	default:
		return 0, fmt.Errorf("snapshot: unsupported sql dialect %q", name)
	}
}

// SQLOption configures SQLStore behavior.
type SQLOption func(*SQLStore)

// WithTable sets the table name. Default: "pagewire_snapshots".
func WithTable(name string) SQLOption {
	return func(s *SQLStore) { s.table = name }
}

// WithDialect sets the SQL dialect. Default: DialectSQLite.
func WithDialect(d Dialect) SQLOption {
	return func(s *SQLStore) { s.dialect = d }
}

// WithSQLCleanupInterval sets how often expired rows are deleted.
// Default: 5 minutes. Zero disables the cleanup loop.
func WithSQLCleanupInterval(d time.Duration) SQLOption {
	return func(s *SQLStore) { s.cleanupInterval = d }
}

// WithSQLClock overrides the time source. Used by tests.
func WithSQLClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) { s.now = now }
}

// WithSQLLogger sets the logger for background cleanup failures.
func WithSQLLogger(l *slog.Logger) SQLOption {
	return func(s *SQLStore) { s.logger = l }
}

// NewSQLStore creates a SQL-backed snapshot store. The database handle is
// not owned by the store and is not closed by Close.
func NewSQLStore(db *sql.DB, opts ...SQLOption) *SQLStore {
	s := &SQLStore{
		db:              db,
		table:           "pagewire_snapshots",
		dialect:         DialectSQLite,
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "snapshot.sql")

	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	}
	return s
}

func (s *SQLStore) ph(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) upsertQuery() string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, data, expires_at) VALUES (%s, %s, %s)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`, s.table, s.ph(1), s.ph(2), s.ph(3))
}

// CreateTable creates the snapshot table and its expiry index if missing.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	blob := "BLOB"
	if s.dialect == DialectPostgreSQL {
		blob = "BYTEA"
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			data %s NOT NULL,
			expires_at BIGINT NOT NULL
		)
	`, s.table, blob)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("snapshot: create table: %w", err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at)`, s.table, s.table)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("snapshot: create index: %w", err)
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, s.upsertQuery(), sessionID, data, expiresAt.UnixMilli())
	return err
}

func (s *SQLStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = %s AND expires_at > %s`,
		s.table, s.ph(1), s.ph(2))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, sessionID, s.now().UnixMilli()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.table, s.ph(1))
	_, err := s.db.ExecContext(ctx, query, sessionID)
	return err
}

// SaveAll saves every snapshot in one transaction.
func (s *SQLStore) SaveAll(ctx context.Context, snapshots map[string]Data) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.upsertQuery())
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, d := range snapshots {
		if _, err := stmt.ExecContext(ctx, id, d.Data, d.ExpiresAt.UnixMilli()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close stops the cleanup loop.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	return nil
}

// DeleteExpired removes expired rows and returns how many were deleted.
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= %s`, s.table, s.ph(1))
	res, err := s.db.ExecContext(ctx, query, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := s.DeleteExpired(ctx); err != nil {
				s.logger.Warn("snapshot cleanup failed", "error", err)
			}
			cancel()
		case <-s.done:
			return
		}
	}
}
