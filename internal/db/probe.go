package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Probe reports database health for the /health endpoint.
type Probe struct {
	pool *pgxpool.Pool
}

// NewProbe creates a health probe backed by the given pool.
func NewProbe(pool *pgxpool.Pool) *Probe {
	return &Probe{pool: pool}
}

// Name identifies the probe in health responses.
func (p *Probe) Name() string { return "database" }

// Check pings the database, respecting the context deadline.
func (p *Probe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
