package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Connect opens a PostgreSQL pool for the given DSN. The handle is returned
// even when the first ping fails, so a service can come up before its
// database and recover once it is reachable; callers decide whether the
// ping error is fatal.
func Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return db, fmt.Errorf("database not reachable: %w", err)
	}
	return db, nil
}

// Migrate executes a schema file. Statements must be idempotent
// (CREATE TABLE IF NOT EXISTS and friends).
func Migrate(db *sql.DB, schema string) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migration: %w", err)
	}
	return nil
}
