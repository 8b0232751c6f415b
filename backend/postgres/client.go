// Package postgres is the remote store for a directly reachable Postgres
// server. Change events come from a trigger that NOTIFYs on every write.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"clinicsync/backend"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func init() {
	backend.RegisterType("postgres", func(config backend.RemoteConfig) (backend.RemoteStore, error) {
		c, err := New(context.Background(), config)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// Client is a pgxpool-backed remote store
type Client struct {
	pool *pgxpool.Pool

	mu sync.Mutex
	ln *listener
}

var _ backend.RemoteStore = (*Client)(nil)

// New connects lazily to config.URL. A non-empty AccessKey replaces the
// password in the connection string.
func New(ctx context.Context, config backend.RemoteConfig) (*Client, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres URL: %w", err)
	}
	if config.AccessKey != "" {
		poolConfig.ConnConfig.Password = config.AccessKey
	}
	poolConfig.MaxConns = 4
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &Client{pool: pool}, nil
}

// EnsureSchema creates the synced tables and installs the change trigger
func (c *Client) EnsureSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		for _, stmt := range remoteTables {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, notifyFunction); err != nil {
			return fmt.Errorf("failed to create notify function: %w", err)
		}
		for _, table := range backend.SyncOrder {
			ident := pgx.Identifier{table}.Sanitize()
			trigger := pgx.Identifier{table + "_clinicsync_notify"}.Sanitize()
			if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", trigger, ident)); err != nil {
				return err
			}
			stmt := fmt.Sprintf(
				"CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION clinicsync_notify()",
				trigger, ident)
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create trigger on %s: %w", table, err)
			}
		}
		return nil
	})
}

func wrap(operation, table, id string, err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			status = 409
		case "42P01":
			status = 404
		case "28P01", "42501":
			status = 401
		default:
			status = 500
		}
	}
	return backend.NewBackendError(operation, status, "").WithTable(table).WithRecordID(id).WithError(err)
}

// Ping issues one minimal read
func (c *Client) Ping(ctx context.Context) error {
	var id string
	err := c.pool.QueryRow(ctx, "SELECT id FROM settings LIMIT 1").Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return wrap("Ping", backend.TableSettings, "", err)
}

// SelectAll returns every row of table as decoded JSON
func (c *Client) SelectAll(ctx context.Context, table string) ([]backend.Row, error) {
	if _, err := backend.LookupTable(table); err != nil {
		return nil, err
	}
	ident := pgx.Identifier{table}.Sanitize()
	rows, err := c.pool.Query(ctx, fmt.Sprintf("SELECT row_to_json(t)::text FROM %s t ORDER BY id", ident))
	if err != nil {
		return nil, wrap("SelectAll", table, "", err)
	}
	texts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrap("SelectAll", table, "", err)
	}

	out := make([]backend.Row, 0, len(texts))
	for _, text := range texts {
		var row backend.Row
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, wrap("SelectAll", table, "", fmt.Errorf("failed to decode row: %w", err))
		}
		out = append(out, row)
	}
	return out, nil
}

// columnsOf returns the row's columns that belong to the table, sorted
func columnsOf(t backend.Table, row backend.Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		if t.HasColumn(col) {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

// Insert creates a row. A duplicate id is a 409 BackendError.
func (c *Client) Insert(ctx context.Context, table string, row backend.Row) error {
	t, err := backend.LookupTable(table)
	if err != nil {
		return err
	}
	cols := columnsOf(t, row)
	idents := make([]string, len(cols))
	params := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		idents[i] = pgx.Identifier{col}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(), strings.Join(idents, ", "), strings.Join(params, ", "))
	_, err = c.pool.Exec(ctx, stmt, args...)
	return wrap("Insert", table, row.ID(), err)
}

// Update sets the given columns on the row with id. A missing row is a 404.
func (c *Client) Update(ctx context.Context, table string, id string, row backend.Row) error {
	t, err := backend.LookupTable(table)
	if err != nil {
		return err
	}
	var sets []string
	var args []any
	for _, col := range columnsOf(t, row) {
		if col == "id" {
			continue
		}
		args = append(args, row[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		pgx.Identifier{table}.Sanitize(), strings.Join(sets, ", "), len(args))
	tag, err := c.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return wrap("Update", table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return backend.NewBackendError("Update", 404, "record not found").WithTable(table).WithRecordID(id)
	}
	return nil
}

// Delete removes the row with id. Deleting a missing row is not an error.
func (c *Client) Delete(ctx context.Context, table string, id string) error {
	if _, err := backend.LookupTable(table); err != nil {
		return err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = $1", pgx.Identifier{table}.Sanitize())
	_, err := c.pool.Exec(ctx, stmt, id)
	return wrap("Delete", table, id, err)
}

// Close stops the listener and closes the pool
func (c *Client) Close() error {
	c.mu.Lock()
	ln := c.ln
	c.ln = nil
	c.mu.Unlock()
	if ln != nil {
		ln.stop(nil)
	}
	c.pool.Close()
	return nil
}
