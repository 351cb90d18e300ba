package journal

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchwatch/engine/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres appends events to the position_events table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn, verifies the connection and applies the
// embedded migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// migrate applies every embedded migration in file name order. Migrations
// are idempotent.
func (p *Postgres) migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		sql, err := migrations.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := p.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, describe(err))
		}
	}
	return nil
}

// Append inserts ev. Re-appending an event with the same ID is a no-op.
func (p *Postgres) Append(ctx context.Context, ev store.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("insert position event: %w", store.ErrInvalidInput)
	}
	r := newRecord(ev)

	query := `
		INSERT INTO position_events (
			id, kind, address, name, symbol, price, initial_price, gain_pct, liquidity_usd, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query,
		r.ID,
		r.Kind,
		r.Address,
		r.Name,
		r.Symbol,
		r.Price,
		r.InitialPrice,
		r.GainPct,
		r.LiquidityUSD,
		r.At,
	)
	if err != nil {
		return fmt.Errorf("insert position event: %w", describe(err))
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// describe adds the SQLSTATE code to Postgres errors.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (%s): %w", pgErr.Message, pgErr.Code, err)
	}
	return err
}
