// Package postgres implements every internal/store interface against a
// single Postgres database (pgx/v5 + pgvector-go), per SPEC_FULL.md's
// resolution of the relational-vs-document store topology question: one
// relational store with vector columns plays both roles.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open creates a pooled connection to dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
