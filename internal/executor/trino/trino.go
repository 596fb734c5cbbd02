// Package trino executes cross-database plans against a Trino
// coordinator through the database/sql driver.
package trino

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/trinodb/trino-go-client/trino"
)

// Executor runs statements on a Trino coordinator. Table references in
// the SQL carry their catalog prefixes, so a single connection serves
// every cross-database plan.
type Executor struct {
	db *sql.DB
}

// Connect opens a connection from a trino DSN, e.g.
// http://user@coordinator:8080.
func Connect(dsn string) (*Executor, error) {
	db, err := sql.Open("trino", dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to trino: %v", err)
	}
	return &Executor{db: db}, nil
}

// NewWithDB wraps an existing handle.
func NewWithDB(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Run executes the statement and materializes every row as a map keyed by
// the output column label.
func (e *Executor) Run(ctx context.Context, sqlText string, params []interface{}, databaseID string) ([]map[string]interface{}, error) {
	rows, err := e.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("error executing query on %q: %v", databaseID, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("error reading column labels from %q: %v", databaseID, err)
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("error reading row from %q: %v", databaseID, err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			row[name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %q: %v", databaseID, err)
	}
	return out, nil
}

// Close releases the handle.
func (e *Executor) Close() error {
	return e.db.Close()
}
