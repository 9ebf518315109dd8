package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrations is a set of goose SQL files inside FS under Dir.
type Migrations struct {
	FS  fs.FS
	Dir string
}

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// Migrate applies every pending migration.
func Migrate(ctx context.Context, pool *pgxpool.Pool, m Migrations, cfg Config, log *slog.Logger) error {
	return withGoose(ctx, pool, m, cfg, log, func(db *sql.DB) error {
		return goose.UpContext(ctx, db, m.Dir)
	})
}

// Version returns the current schema version.
func Version(ctx context.Context, pool *pgxpool.Pool, m Migrations, cfg Config, log *slog.Logger) (int64, error) {
	var v int64
	err := withGoose(ctx, pool, m, cfg, log, func(db *sql.DB) error {
		var err error
		v, err = goose.GetDBVersionContext(ctx, db)
		return err
	})
	return v, err
}

func withGoose(ctx context.Context, pool *pgxpool.Pool, m Migrations, cfg Config, log *slog.Logger, fn func(*sql.DB) error) error {
	if m.FS == nil {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationsNotProvided)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration connection", "error", err)
		}
	}()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(m.FS)
	goose.SetLogger(gooseLogger{log: log})
	if cfg.MigrationsTable != "" {
		goose.SetTableName(cfg.MigrationsTable)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := fn(db); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

type gooseLogger struct {
	log *slog.Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(fmt.Sprintf(format, v...))
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Info(fmt.Sprintf(format, v...))
}
