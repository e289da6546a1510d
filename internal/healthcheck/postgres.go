package healthcheck

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresChecker probes the correlation database with a pool ping.
type PostgresChecker struct {
	pool *pgxpool.Pool
}

// NewPostgresChecker creates a checker over the given pool.
func NewPostgresChecker(pool *pgxpool.Pool) *PostgresChecker {
	return &PostgresChecker{pool: pool}
}

func (c *PostgresChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Name: "postgres", Status: StatusOK}
	if c.pool == nil {
		result.Status = StatusError
		result.Detail = "pool not configured"
		return result
	}
	if err := c.pool.Ping(ctx); err != nil {
		result.Status = StatusError
		result.Detail = err.Error()
	}
	return result
}
