// Package pg connects to PostgreSQL through pgx and applies goose migrations
// from an embedded filesystem.
//
//	pool, err := pg.Connect(ctx, cfg)
//	err = pg.Migrate(ctx, pool, pgstore.Migrations(), cfg, log)
//
// Healthcheck adapts the pool to a readiness probe.
package pg
