// Package remote implements the sync engine's remote store on Postgres.
package remote

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/hyperengineering/opsdash/internal/sync"
	"github.com/hyperengineering/opsdash/migrations"
)

// Compile-time interface check
var _ sync.Remote = (*Postgres)(nil)

// Postgres is the remote relational store.
type Postgres struct {
	db *sql.DB
}

// Open connects to databaseURL. A non-empty key replaces the password in
// the URL, so the URL can be shared while the key stays in the environment.
func Open(ctx context.Context, databaseURL, key string) (*Postgres, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if key != "" {
		cfg.Password = key
	}

	db := stdlib.OpenDB(*cfg)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping remote: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewWithDB wraps an existing connection pool.
func NewWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies the remote sync schema.
func (p *Postgres) Migrate() error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(p.db, migrations.RemoteDir); err != nil {
		return fmt.Errorf("run remote migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Upsert writes rows in one transaction, replacing rows with the same
// (user_id, natural key).
func (p *Postgres) Upsert(ctx context.Context, table sync.Table, rows []sync.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s upsert: %w", table.Name, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL(table))
	if err != nil {
		return fmt.Errorf("prepare %s upsert: %w", table.Name, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		args, err := upsertArgs(table, r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", table.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s upsert: %w", table.Name, err)
	}
	return nil
}

// Select returns every row of table for userID, ordered by natural key.
func (p *Postgres) Select(ctx context.Context, table sync.Table, userID string) ([]sync.Row, error) {
	rows, err := p.db.QueryContext(ctx, selectSQL(table), userID)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table.Name, err)
	}
	defer rows.Close()

	var out []sync.Row
	for rows.Next() {
		r := sync.Row{UserID: userID, Keys: make([]string, len(table.KeyColumns))}

		dest := make([]any, 0, len(table.KeyColumns)+2)
		for i := range r.Keys {
			dest = append(dest, &r.Keys[i])
		}
		var payload []byte
		if table.HasPayload {
			dest = append(dest, &payload)
		}
		dest = append(dest, &r.UpdatedAt)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table.Name, err)
		}
		if table.HasPayload {
			r.Payload = payload
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table.Name, err)
	}
	return out, nil
}

func columns(table sync.Table) []string {
	cols := append([]string{"user_id"}, table.KeyColumns...)
	if table.HasPayload {
		cols = append(cols, "payload")
	}
	return append(cols, "updated_at")
}

func upsertSQL(table sync.Table) string {
	cols := columns(table)

	placeholders := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c == "payload" {
			placeholders[i] += "::jsonb"
		}
	}

	set := []string{"updated_at = EXCLUDED.updated_at"}
	if table.HasPayload {
		set = append([]string{"payload = EXCLUDED.payload"}, set...)
	}

	conflict := append([]string{"user_id"}, table.KeyColumns...)

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table.Name,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(conflict, ", "),
		strings.Join(set, ", "),
	)
}

func upsertArgs(table sync.Table, r sync.Row) ([]any, error) {
	if len(r.Keys) != len(table.KeyColumns) {
		return nil, fmt.Errorf("%s row has %d keys, want %d", table.Name, len(r.Keys), len(table.KeyColumns))
	}

	args := []any{r.UserID}
	for _, k := range r.Keys {
		args = append(args, k)
	}
	if table.HasPayload {
		args = append(args, string(r.Payload))
	}
	return append(args, r.UpdatedAt), nil
}

func selectSQL(table sync.Table) string {
	cols := append([]string{}, table.KeyColumns...)
	if table.HasPayload {
		cols = append(cols, "payload::text")
	}
	cols = append(cols, "updated_at")

	return fmt.Sprintf("SELECT %s FROM %s WHERE user_id = $1 ORDER BY %s",
		strings.Join(cols, ", "),
		table.Name,
		strings.Join(table.KeyColumns, ", "),
	)
}
