package snapshot

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) a SQLite database at dsn with the pure-Go
// modernc driver and returns a ready SQLStore. The returned *sql.DB is
// owned by the caller.
func OpenSQLite(ctx context.Context, dsn string, opts ...SQLOption) (*SQLStore, *sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY and keeps
	// ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("snapshot: open sqlite: %w", err)
	}

	store := NewSQLStore(db, append([]SQLOption{WithDialect(DialectSQLite)}, opts...)...)
	if err := store.CreateTable(ctx); err != nil {
		store.Close()
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
