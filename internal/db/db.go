package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewlane/guildsync/internal/config"
)

// Open connects a pgx pool to the configured Postgres database and verifies
// the connection with a ping.
func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// TimeFromPg converts a pgtype timestamp to time.Time, zero when invalid.
func TimeFromPg(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Time
}

// TextOrNull wraps a string as pgtype.Text, null when empty after trimming.
func TextOrNull(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: value, Valid: true}
}

// TextFromPg unwraps a pgtype.Text, empty string when null.
func TextFromPg(value pgtype.Text) string {
	if !value.Valid {
		return ""
	}
	return value.String
}
