// Package repository handles database access for the ingestion pipeline.
// Two stores are involved: the primary operator-facing database holds
// suppliers and matrix formats, and the altitude database receives the
// extracted quotes and holds rate class aliases.
package repository

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/semaphore"
)

// DB wraps a connection pool with a semaphore limiting concurrent
// operations, so several mail deliveries running at once cannot exhaust the
// pool.
type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

const maxConcurrentOps = 10

func newDB(driver, url string) (*DB, error) {
	db, err := sqlx.Connect(driver, url)
	if err != nil {
		return nil, fmt.Errorf("could not connect with %s: %w", driver, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{
		DB:  db,
		sem: semaphore.NewWeighted(maxConcurrentOps),
	}, nil
}

// NewPrimaryDB connects to the primary database.
func NewPrimaryDB(url string) (*DB, error) {
	return newDB("postgres", url)
}

// NewAltitudeDB connects to the altitude database.
func NewAltitudeDB(url string) (*DB, error) {
	return newDB("pgx", url)
}

func (db *DB) acquire(ctx context.Context) (release func(), err error) {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("could not acquire semaphore: %w", err)
	}
	return func() { db.sem.Release(1) }, nil
}
