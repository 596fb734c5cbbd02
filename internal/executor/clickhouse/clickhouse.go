// Package clickhouse executes generated SQL against a ClickHouse backend.
package clickhouse

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	chdriver "github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Conn is the subset of the ClickHouse driver connection the executor
// needs.
type Conn interface {
	Query(ctx context.Context, query string, args ...interface{}) (chdriver.Rows, error)
	Close() error
}

// Executor runs statements on one ClickHouse database.
type Executor struct {
	conn Conn
}

// Connect opens a native-protocol connection.
func Connect(addr, database, username, password string) (*Executor, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: time.Second * 10,
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to clickhouse: %v", err)
	}
	return &Executor{conn: conn}, nil
}

// NewWithConn wraps an existing connection.
func NewWithConn(conn Conn) *Executor {
	return &Executor{conn: conn}
}

// Run executes the statement and materializes every row as a map keyed by
// the output column label. The driver requires typed scan targets, so
// destinations are allocated from the reported column scan types.
func (e *Executor) Run(ctx context.Context, sqlText string, params []interface{}, databaseID string) ([]map[string]interface{}, error) {
	rows, err := e.conn.Query(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("error executing query on %q: %v", databaseID, err)
	}
	defer rows.Close()

	columns := rows.Columns()
	columnTypes := rows.ColumnTypes()
	var out []map[string]interface{}
	for rows.Next() {
		dest := make([]interface{}, len(columns))
		for i, ct := range columnTypes {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("error reading row from %q: %v", databaseID, err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			row[name] = reflect.ValueOf(dest[i]).Elem().Interface()
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %q: %v", databaseID, err)
	}
	return out, nil
}

// Close releases the connection.
func (e *Executor) Close() error {
	return e.conn.Close()
}
