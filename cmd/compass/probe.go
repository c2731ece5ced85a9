package main

import (
	"context"
	"database/sql"
	"time"
)

// probeSchema checks that the migrations have been applied. It returns
// sql.ErrNoRows when the article_jobs table is missing.
func probeSchema(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	return db.QueryRowContext(ctx,
		`SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'article_jobs'`,
	).Scan(&one)
}
