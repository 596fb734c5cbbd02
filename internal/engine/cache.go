package engine

import (
	"context"
	"fmt"

	"github.com/fedsql/fedsql/internal/cache"
	"github.com/fedsql/fedsql/internal/debuglog"
	"github.com/fedsql/fedsql/internal/planner"
	"github.com/fedsql/fedsql/internal/resolver"
	"github.com/fedsql/fedsql/internal/rls"
	"github.com/fedsql/fedsql/internal/sqlgen"
)

// runCache serves a byIds lookup from the cache, with a direct-database
// fallback restricted to the ids the cache misses. Cache-sourced rows take
// precedence over database duplicates; a fallback failure fails the whole
// query rather than returning partial data.
func (e *Engine) runCache(ctx context.Context, result *Result, plan *planner.Plan, adj *rls.Adjusted, resolved *resolver.Query, log *debuglog.Log, execute bool) error {
	meta := plan.Cache.Meta
	ids := adj.Scope.Def.ByIDs
	tablePlan := &adj.Tables[0]

	keys := make([]string, len(ids))
	for i, id := range ids {
		key, err := cache.BuildKey(meta, id, valuesOf(adj))
		if err != nil {
			return err
		}
		keys[i] = key
	}

	hits := map[string][]byte{}
	if e.cache == nil {
		log.Append(debuglog.PhaseCache, "no cache provider configured, treating all ids as misses", nil)
	} else {
		var err error
		hits, err = e.cache.GetMany(ctx, keys)
		if err != nil {
			// A broken cache degrades to a full database read; it never
			// poisons the result.
			log.Append(debuglog.PhaseCache, "cache lookup failed, falling back to database", map[string]interface{}{
				"error": err.Error(),
			})
			hits = map[string][]byte{}
		}
	}

	var cachedRows []map[string]interface{}
	var missedIDs []interface{}
	for i, id := range ids {
		data, ok := hits[keys[i]]
		if !ok {
			missedIDs = append(missedIDs, id)
			continue
		}
		row, err := cache.DecodeRow(data)
		if err != nil {
			// Undecodable entries count as misses.
			missedIDs = append(missedIDs, id)
			continue
		}
		cachedRows = append(cachedRows, trimRow(row, tablePlan.Columns))
	}
	log.Append(debuglog.PhaseCache, "cache lookup complete", map[string]interface{}{
		"requested": len(ids),
		"hits":      len(cachedRows),
		"misses":    len(missedIDs),
	})

	// With no hits at all the call is served entirely by the fallback
	// plan, and the result says so.
	if len(cachedRows) == 0 && plan.Cache.Fallback != nil {
		result.Strategy = plan.Cache.Fallback.Strategy
	}

	if len(missedIDs) == 0 {
		if execute {
			result.Data = cachedRows
		}
		return nil
	}

	if plan.Cache.Fallback == nil {
		return fmt.Errorf("cache missed %d ids for table %q and no database can serve the table", len(missedIDs), tablePlan.Table.APIName)
	}

	// Generate the fallback statement restricted to the missed ids.
	restricted := *resolved
	restricted.ByIDs = missedIDs
	dialect, err := sqlgen.ForDialect(plan.Dialect)
	if err != nil {
		return err
	}
	stmt, err := e.generator.Generate(&restricted, dialect, log)
	if err != nil {
		return err
	}
	result.SQL = stmt.SQL
	result.Params = stmt.Params

	if !execute {
		return nil
	}

	// The database fetch is independent of cache row handling; run it
	// concurrently and wait before merging.
	type fetchResult struct {
		rows []map[string]interface{}
		err  error
	}
	fetched := make(chan fetchResult, 1)
	go func() {
		rows, err := e.exec.Run(ctx, stmt.SQL, stmt.Params, plan.TargetDatabase)
		fetched <- fetchResult{rows: rows, err: err}
	}()

	fr := <-fetched
	if fr.err != nil {
		log.Append(debuglog.PhaseExecution, "database fallback failed", map[string]interface{}{
			"database": plan.TargetDatabase,
		})
		return fr.err
	}
	log.Append(debuglog.PhaseExecution, "database fallback complete", map[string]interface{}{
		"database": plan.TargetDatabase,
		"rows":     len(fr.rows),
	})

	result.Data = mergeByPrimaryKey(cachedRows, fr.rows, resolved.PrimaryKey.API, tablePlan.Columns)
	return nil
}

// mergeByPrimaryKey unions the two row sets. Cache-sourced rows win over
// any database duplicate; both sources carry identically trimmed columns.
func mergeByPrimaryKey(cacheRows, dbRows []map[string]interface{}, pkLabel string, columns []string) []map[string]interface{} {
	seen := make(map[string]bool, len(cacheRows))
	out := make([]map[string]interface{}, 0, len(cacheRows)+len(dbRows))
	for _, row := range cacheRows {
		seen[fmt.Sprintf("%v", row[pkLabel])] = true
		out = append(out, row)
	}
	for _, row := range dbRows {
		key := fmt.Sprintf("%v", row[pkLabel])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, trimRow(row, columns))
	}
	return out
}

// trimRow keeps only the effective column set. Applied identically to
// rows from either source, so the cache can never widen what a role sees.
func trimRow(row map[string]interface{}, columns []string) map[string]interface{} {
	out := make(map[string]interface{}, len(columns))
	for _, col := range columns {
		if v, ok := row[col]; ok {
			out[col] = v
		}
	}
	return out
}

func valuesOf(adj *rls.Adjusted) map[string]interface{} {
	// Key patterns may reference context fields beyond the id.
	return adj.Context.Values
}
