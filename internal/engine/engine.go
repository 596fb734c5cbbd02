// Package engine wires the pipeline stages into the public call surface:
// Plan produces SQL only, Execute also runs it. Each call owns its own
// transient structures; the registry underneath is read-only and shared.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fedsql/fedsql/internal/cache"
	"github.com/fedsql/fedsql/internal/debuglog"
	"github.com/fedsql/fedsql/internal/executor"
	"github.com/fedsql/fedsql/internal/metadata"
	"github.com/fedsql/fedsql/internal/planner"
	"github.com/fedsql/fedsql/internal/query"
	"github.com/fedsql/fedsql/internal/resolver"
	"github.com/fedsql/fedsql/internal/rls"
	"github.com/fedsql/fedsql/internal/sqlgen"
	"github.com/fedsql/fedsql/pkg/logger"
)

// Result is the outcome of one call. The debug log is attached even when
// the call fails.
type Result struct {
	QueryID        string                   `json:"query_id"`
	Data           []map[string]interface{} `json:"data,omitempty"`
	SQL            string                   `json:"sql"`
	Params         []interface{}            `json:"params"`
	Dialect        string                   `json:"dialect"`
	TargetDatabase string                   `json:"target_database"`
	Strategy       planner.Strategy         `json:"strategy"`
	DebugLog       []debuglog.Entry         `json:"debug_log"`
}

// Engine is the federated query planner's entry point.
type Engine struct {
	reg       *metadata.Registry
	validator *query.Validator
	injector  *rls.Injector
	planner   *planner.Planner
	resolver  *resolver.Resolver
	generator *sqlgen.Generator
	cache     cache.Provider
	exec      executor.Executor
	log       *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache wires the external cache provider consumed by the cache
// strategy. Without it, cache candidacy always falls through.
func WithCache(p cache.Provider) Option {
	return func(e *Engine) { e.cache = p }
}

// WithExecutor wires the execution collaborator used by Execute.
func WithExecutor(exec executor.Executor) Option {
	return func(e *Engine) { e.exec = exec }
}

// WithLogger wires process logging. Per-query decisions still go to the
// query's debug log.
func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New builds an engine over a validated registry.
func New(reg *metadata.Registry, opts ...Option) *Engine {
	conn := planner.NewConnectivity(reg)
	e := &Engine{
		reg:       reg,
		validator: query.NewValidator(reg),
		injector:  rls.NewInjector(reg),
		planner:   planner.New(reg, conn),
		resolver:  resolver.New(reg),
		generator: sqlgen.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan resolves the query to SQL and a strategy without executing it.
func (e *Engine) Plan(ctx context.Context, def *query.Definition, execCtx *query.Context) (*Result, error) {
	return e.run(ctx, def, execCtx, false)
}

// Execute resolves the query and runs it against the chosen backend.
func (e *Engine) Execute(ctx context.Context, def *query.Definition, execCtx *query.Context) (*Result, error) {
	if e.exec == nil {
		return nil, fmt.Errorf("no executor configured")
	}
	return e.run(ctx, def, execCtx, true)
}

// run drives the pipeline. Each stage either returns a richer structure
// or fails with a typed error that aborts immediately; the debug log
// accumulated so far is attached either way. Cancellation is honored by
// aborting before the next stage begins.
func (e *Engine) run(ctx context.Context, def *query.Definition, execCtx *query.Context, execute bool) (*Result, error) {
	log := debuglog.New()
	result := &Result{QueryID: uuid.NewString()}
	fail := func(err error) (*Result, error) {
		result.DebugLog = log.Entries()
		if e.log != nil {
			e.log.Warn("query failed", map[string]string{
				"query_id": result.QueryID,
				"error":    err.Error(),
			})
		}
		return result, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	scope, err := e.validator.Validate(def, log)
	if err != nil {
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	adj, err := e.injector.Inject(scope, execCtx, log)
	if err != nil {
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	plan, err := e.planner.Plan(adj, log)
	if err != nil {
		return fail(err)
	}
	result.Strategy = plan.Strategy
	result.TargetDatabase = plan.TargetDatabase
	result.Dialect = plan.Dialect

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	resolved, err := e.resolver.Resolve(plan, adj, log)
	if err != nil {
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if plan.Strategy == planner.StrategyCache {
		if err := e.runCache(ctx, result, plan, adj, resolved, log, execute); err != nil {
			return fail(err)
		}
	} else {
		dialect, err := sqlgen.ForDialect(plan.Dialect)
		if err != nil {
			return fail(err)
		}
		stmt, err := e.generator.Generate(resolved, dialect, log)
		if err != nil {
			return fail(err)
		}
		result.SQL = stmt.SQL
		result.Params = stmt.Params

		if execute {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			rows, err := e.exec.Run(ctx, stmt.SQL, stmt.Params, plan.TargetDatabase)
			if err != nil {
				log.Append(debuglog.PhaseExecution, "backend execution failed", map[string]interface{}{
					"database": plan.TargetDatabase,
				})
				return fail(err)
			}
			log.Append(debuglog.PhaseExecution, "backend execution complete", map[string]interface{}{
				"database": plan.TargetDatabase,
				"rows":     len(rows),
			})
			result.Data = rows
		}
	}

	result.DebugLog = log.Entries()
	if e.log != nil {
		e.log.Debug("query resolved", map[string]string{
			"query_id": result.QueryID,
			"strategy": string(result.Strategy),
		})
	}
	return result, nil
}
