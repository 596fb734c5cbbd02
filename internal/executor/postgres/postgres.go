// Package postgres executes generated SQL against a PostgreSQL backend
// through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor runs statements on one PostgreSQL database.
type Executor struct {
	pool *pgxpool.Pool
}

// Connect establishes a pooled connection from a DSN.
func Connect(ctx context.Context, dsn string) (*Executor, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing postgres dsn: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error connecting to postgres: %v", err)
	}
	return &Executor{pool: pool}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Run executes the statement and materializes every row as a map keyed by
// the output column label.
func (e *Executor) Run(ctx context.Context, sqlText string, params []interface{}, databaseID string) ([]map[string]interface{}, error) {
	rows, err := e.pool.Query(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("error executing query on %q: %v", databaseID, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("error reading row from %q: %v", databaseID, err)
		}
		row := make(map[string]interface{}, len(fields))
		for i, field := range fields {
			row[field.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %q: %v", databaseID, err)
	}
	return out, nil
}

// Close releases the pool.
func (e *Executor) Close() {
	e.pool.Close()
}
