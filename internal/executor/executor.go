// Package executor defines the optional execution collaborator: running
// generated SQL with bound parameters against a physical backend. The
// planning core never touches it; only execute-mode calls do. Retries on
// transient failures are the caller's concern, not handled here.
package executor

import (
	"context"
	"fmt"
)

// Executor runs one statement against one target database and returns the
// result rows keyed by output column label.
type Executor interface {
	Run(ctx context.Context, sqlText string, params []interface{}, databaseID string) ([]map[string]interface{}, error)
}

// Router dispatches by target database id. The trino pseudo-target is
// registered like any other database.
type Router struct {
	executors map[string]Executor
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{executors: make(map[string]Executor)}
}

// Register binds an executor to a database id.
func (r *Router) Register(databaseID string, exec Executor) {
	r.executors[databaseID] = exec
}

// Run dispatches to the executor registered for the database.
func (r *Router) Run(ctx context.Context, sqlText string, params []interface{}, databaseID string) ([]map[string]interface{}, error) {
	exec, ok := r.executors[databaseID]
	if !ok {
		return nil, fmt.Errorf("no executor registered for database %q", databaseID)
	}
	return exec.Run(ctx, sqlText, params, databaseID)
}
