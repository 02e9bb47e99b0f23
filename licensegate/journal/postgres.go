package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresTable = "license_checkouts"

// PostgresOption configures a PostgresJournal.
type PostgresOption func(*PostgresJournal)

// WithTableName sets the PostgreSQL table name. Default: "license_checkouts".
func WithTableName(name string) PostgresOption {
	return func(j *PostgresJournal) {
		j.tableName = name
	}
}

// PostgresJournal implements Journal using PostgreSQL.
type PostgresJournal struct {
	pool      *pgxpool.Pool
	tableName string
}

// NewPostgresJournal creates a PostgreSQL-backed journal.
// It auto-creates the table and index on initialization.
func NewPostgresJournal(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresJournal, error) {
	j := &PostgresJournal{
		pool:      pool,
		tableName: defaultPostgresTable,
	}
	for _, opt := range opts {
		opt(j)
	}
	if !validIdentifier.MatchString(j.tableName) {
		return nil, fmt.Errorf("invalid table name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", j.tableName)
	}
	if err := j.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	return j, nil
}

func (j *PostgresJournal) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			client_token      TEXT PRIMARY KEY,
			consumption_token TEXT NOT NULL DEFAULT '',
			product_sku       TEXT NOT NULL,
			node              TEXT NOT NULL DEFAULT '',
			granted           BOOLEAN NOT NULL DEFAULT FALSE,
			expiration        TEXT NOT NULL DEFAULT '',
			error             TEXT NOT NULL DEFAULT '',
			checkin_error     TEXT NOT NULL DEFAULT '',
			checked_out_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_%s_sku_checked_out
			ON %s (product_sku, checked_out_at);
	`, j.tableName, j.tableName, j.tableName)
	_, err := j.pool.Exec(ctx, query)
	return err
}

func (j *PostgresJournal) Record(ctx context.Context, e Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (client_token, consumption_token, product_sku, node, granted,
			expiration, error, checkin_error, checked_out_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (client_token) DO UPDATE SET
			consumption_token = EXCLUDED.consumption_token,
			granted = EXCLUDED.granted,
			expiration = EXCLUDED.expiration,
			error = EXCLUDED.error,
			checkin_error = EXCLUDED.checkin_error
	`, j.tableName)
	_, err := j.pool.Exec(ctx, query,
		e.ClientToken, e.ConsumptionToken, e.ProductSKU, e.Node, e.Granted,
		e.Expiration, e.Error, e.CheckinError, e.CheckedOutAt,
	)
	if err != nil {
		return fmt.Errorf("record checkout: %w", err)
	}
	return nil
}

func (j *PostgresJournal) List(ctx context.Context, productSKU string, limit int) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT client_token, consumption_token, product_sku, node, granted,
			expiration, error, checkin_error, checked_out_at
		FROM %s WHERE product_sku = $1 ORDER BY checked_out_at DESC
	`, j.tableName)
	args := []any{productSKU}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkouts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ClientToken, &e.ConsumptionToken, &e.ProductSKU, &e.Node,
			&e.Granted, &e.Expiration, &e.Error, &e.CheckinError, &e.CheckedOutAt); err != nil {
			return nil, fmt.Errorf("scan checkout: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *PostgresJournal) Prune(ctx context.Context, productSKU string, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	query := fmt.Sprintf(`DELETE FROM %s WHERE product_sku = $1 AND checked_out_at < $2`, j.tableName)
	tag, err := j.pool.Exec(ctx, query, productSKU, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune checkouts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (j *PostgresJournal) Close(_ context.Context) error {
	return nil // caller owns the pgxpool.Pool
}
