package planner

import (
	"fmt"
	"strings"

	"github.com/fedsql/fedsql/internal/debuglog"
	"github.com/fedsql/fedsql/internal/metadata"
	"github.com/fedsql/fedsql/internal/rls"
	"github.com/fedsql/fedsql/pkg/dbcapabilities"
)

// Strategy is the chosen execution path.
type Strategy string

const (
	StrategyCache        Strategy = "cache"
	StrategyDirect       Strategy = "direct"
	StrategyMaterialized Strategy = "materialized"
	StrategyTrino        Strategy = "trino-cross-db"
)

// TrinoTarget is the pseudo database id of plans served by the federation
// engine itself.
const TrinoTarget = "trino"

// Source records which copy serves one table of the plan.
type Source struct {
	Table    *rls.TablePlan
	Location Location
}

// Plan is the resolved execution plan prior to name resolution.
type Plan struct {
	Strategy       Strategy
	TargetDatabase string
	Dialect        string
	Sources        []Source

	// Cache is set when Strategy is StrategyCache: the cache metadata for
	// the single looked-up table plus the plan that serves ids the cache
	// misses. Fallback is nil when no database can serve the table; a
	// miss is then fatal.
	Cache *CachePlan
}

// CachePlan describes the P0 path.
type CachePlan struct {
	Meta     *metadata.CachedTableMeta
	Fallback *Plan
}

// Rejection explains why one database cannot serve one table.
type Rejection struct {
	Table    string `json:"table"`
	Database string `json:"database"`
	Reason   string `json:"reason"`
}

// PlanningError reports that no strategy can serve the query, with the
// databases checked per unreachable table and why each was rejected.
type PlanningError struct {
	Rejections []Rejection
}

func (e *PlanningError) Error() string {
	byTable := make(map[string][]string)
	var order []string
	for _, r := range e.Rejections {
		if _, seen := byTable[r.Table]; !seen {
			order = append(order, r.Table)
		}
		byTable[r.Table] = append(byTable[r.Table], r.Reason)
	}
	parts := make([]string, 0, len(order))
	for _, tbl := range order {
		parts = append(parts, fmt.Sprintf("table %q unreachable: %s", tbl, strings.Join(byTable[tbl], ", ")))
	}
	return "no viable execution strategy: " + strings.Join(parts, "; ")
}

// Planner evaluates the strategy ladder over immutable inputs. Evaluation
// is deterministic and total: exactly one outcome is produced.
type Planner struct {
	reg  *metadata.Registry
	conn *Connectivity
}

// New returns a planner over the registry and its connectivity view.
func New(reg *metadata.Registry, conn *Connectivity) *Planner {
	return &Planner{reg: reg, conn: conn}
}

// Plan runs the ladder in strict priority order: cache candidacy, single
// database direct, materialized replica, trino cross-database. The first
// match wins; if nothing matches a *PlanningError enumerates the
// rejection reasons per table.
func (p *Planner) Plan(adj *rls.Adjusted, log *debuglog.Log) (*Plan, error) {
	tolerance := adj.Scope.Def.Freshness
	if tolerance == "" {
		tolerance = metadata.LagHours
	}

	if meta, ok := p.cacheCandidate(adj); ok {
		fallback, err := p.planDatabases(adj, tolerance, log)
		if err != nil {
			// A cache-eligible query may still be answerable entirely
			// from the cache. The miss path stays fatal.
			log.Append(debuglog.PhasePlanning, "cache candidate has no database fallback", map[string]interface{}{
				"table": adj.Tables[0].Table.APIName,
			})
			fallback = nil
		}
		log.Append(debuglog.PhasePlanning, "cache strategy selected", map[string]interface{}{
			"table":       adj.Tables[0].Table.APIName,
			"key_pattern": meta.KeyPattern,
		})
		plan := &Plan{
			Strategy: StrategyCache,
			Cache:    &CachePlan{Meta: meta, Fallback: fallback},
			Sources:  []Source{{Table: &adj.Tables[0]}},
		}
		if fallback != nil {
			plan.TargetDatabase = fallback.TargetDatabase
			plan.Dialect = fallback.Dialect
			plan.Sources = fallback.Sources
		}
		return plan, nil
	}

	return p.planDatabases(adj, tolerance, log)
}

// planDatabases runs P1 through P4, skipping cache candidacy.
func (p *Planner) planDatabases(adj *rls.Adjusted, tolerance metadata.SyncLag, log *debuglog.Log) (*Plan, error) {
	if plan, ok := p.planDirect(adj); ok {
		log.Append(debuglog.PhasePlanning, "direct strategy selected", map[string]interface{}{
			"database": plan.TargetDatabase,
		})
		return plan, nil
	}

	if plan, ok := p.planMaterialized(adj, tolerance); ok {
		log.Append(debuglog.PhasePlanning, "materialized strategy selected", map[string]interface{}{
			"database":  plan.TargetDatabase,
			"tolerance": string(tolerance),
		})
		return plan, nil
	}

	if plan, ok := p.planTrino(adj); ok {
		log.Append(debuglog.PhasePlanning, "trino cross-database strategy selected", map[string]interface{}{
			"tables": len(plan.Sources),
		})
		return plan, nil
	}

	err := p.unreachable(adj, tolerance)
	log.Append(debuglog.PhasePlanning, "no viable strategy", map[string]interface{}{
		"rejections": len(err.Rejections),
	})
	return nil, err
}

// cacheCandidate reports whether the query is a byIds lookup on a single
// cacheable table with no predicates, ordering, or paging at all.
// Mandatory RLS filters also disqualify the table: cached rows are not
// filtered, so a role that requires row filtering must never be served
// from the cache. The primary key must be inside the role's effective
// column set: merging cache and database rows keys on it.
func (p *Planner) cacheCandidate(adj *rls.Adjusted) (*metadata.CachedTableMeta, bool) {
	def := adj.Scope.Def
	if len(def.ByIDs) == 0 || len(def.Joins) > 0 || len(def.Aggregations) > 0 || def.Mode == "count" {
		return nil, false
	}
	if def.Limit > 0 || def.Offset > 0 || len(def.Order) > 0 {
		return nil, false
	}
	if len(adj.Tables) != 1 || len(adj.Tables[0].Filters) > 0 {
		return nil, false
	}
	pk := adj.Tables[0].Table.PrimaryKey[0]
	pkVisible := false
	for _, col := range adj.Tables[0].Columns {
		if col == pk {
			pkVisible = true
			break
		}
	}
	if !pkVisible {
		return nil, false
	}
	return p.reg.CacheOf(adj.Tables[0].Table.ID)
}

// planDirect succeeds when one database holds every touched table as an
// original.
func (p *Planner) planDirect(adj *rls.Adjusted) (*Plan, bool) {
	target := adj.Tables[0].Table.DatabaseID
	sources := make([]Source, 0, len(adj.Tables))
	for i := range adj.Tables {
		tp := &adj.Tables[i]
		if tp.Table.DatabaseID != target {
			return nil, false
		}
		sources = append(sources, Source{
			Table:    tp,
			Location: Location{DatabaseID: target, Kind: CopyOriginal, Lag: metadata.LagRealtime},
		})
	}
	db, _ := p.reg.Database(target)
	capability, err := dbcapabilities.Get(db.Engine)
	if err != nil || !capability.DirectlyExecutable {
		return nil, false
	}
	return &Plan{
		Strategy:       StrategyDirect,
		TargetDatabase: target,
		Dialect:        capability.DialectTag,
		Sources:        sources,
	}, true
}

// planMaterialized looks for a database able to serve every table from an
// original or a fresh-enough replica. Candidates are ranked by count of
// originals served, descending, then database id ascending.
func (p *Planner) planMaterialized(adj *rls.Adjusted, tolerance metadata.SyncLag) (*Plan, bool) {
	tableIDs := make([]string, len(adj.Tables))
	for i := range adj.Tables {
		tableIDs[i] = adj.Tables[i].Table.ID
	}

	type candidate struct {
		database  string
		originals int
		sources   []Source
	}
	var best *candidate

	for _, dbID := range p.conn.Databases(tableIDs) {
		db, ok := p.reg.Database(dbID)
		if !ok {
			continue
		}
		capability, err := dbcapabilities.Get(db.Engine)
		if err != nil || !capability.DirectlyExecutable {
			continue
		}

		cand := &candidate{database: dbID}
		viable := true
		for i := range adj.Tables {
			tp := &adj.Tables[i]
			loc, present := p.conn.At(tp.Table.ID, dbID)
			if !present {
				viable = false
				break
			}
			if loc.Kind == CopyOriginal {
				cand.originals++
			} else if !loc.Lag.Within(tolerance) {
				viable = false
				break
			}
			cand.sources = append(cand.sources, Source{Table: tp, Location: loc})
		}
		if !viable {
			continue
		}
		// Databases iterate in id order, so on an originals tie the
		// earlier (lexicographically smaller) id is kept.
		if best == nil || cand.originals > best.originals {
			best = cand
		}
	}

	if best == nil {
		return nil, false
	}
	db, _ := p.reg.Database(best.database)
	capability, _ := dbcapabilities.Get(db.Engine)
	return &Plan{
		Strategy:       StrategyMaterialized,
		TargetDatabase: best.database,
		Dialect:        capability.DialectTag,
		Sources:        best.sources,
	}, true
}

// planTrino succeeds when federation is enabled and every owning database
// of the touched tables, at its true original location, carries a trino
// catalog name.
func (p *Planner) planTrino(adj *rls.Adjusted) (*Plan, bool) {
	if !p.reg.Trino().Enabled {
		return nil, false
	}
	sources := make([]Source, 0, len(adj.Tables))
	for i := range adj.Tables {
		tp := &adj.Tables[i]
		db, ok := p.reg.Database(tp.Table.DatabaseID)
		if !ok || db.TrinoCatalog == "" {
			return nil, false
		}
		sources = append(sources, Source{
			Table:    tp,
			Location: Location{DatabaseID: db.ID, Kind: CopyOriginal, Lag: metadata.LagRealtime},
		})
	}
	return &Plan{
		Strategy:       StrategyTrino,
		TargetDatabase: TrinoTarget,
		Dialect:        "trino",
		Sources:        sources,
	}, true
}

// unreachable builds the P4 error: for every table, why each checked
// database was rejected, plus the state of the trino path.
func (p *Planner) unreachable(adj *rls.Adjusted, tolerance metadata.SyncLag) *PlanningError {
	tableIDs := make([]string, len(adj.Tables))
	for i := range adj.Tables {
		tableIDs[i] = adj.Tables[i].Table.ID
	}
	databases := p.conn.Databases(tableIDs)

	err := &PlanningError{}
	for i := range adj.Tables {
		tp := &adj.Tables[i]
		for _, dbID := range databases {
			loc, present := p.conn.At(tp.Table.ID, dbID)
			switch {
			case !present:
				err.Rejections = append(err.Rejections, Rejection{
					Table:    tp.Table.APIName,
					Database: dbID,
					Reason:   fmt.Sprintf("no original/replica co-location in %q", dbID),
				})
			case loc.Kind == CopyMaterialized && !loc.Lag.Within(tolerance):
				err.Rejections = append(err.Rejections, Rejection{
					Table:    tp.Table.APIName,
					Database: dbID,
					Reason: fmt.Sprintf("replica in %q has lag %s, freshness tolerance is %s",
						dbID, loc.Lag, tolerance),
				})
			}
		}

		if !p.reg.Trino().Enabled {
			err.Rejections = append(err.Rejections, Rejection{
				Table:  tp.Table.APIName,
				Reason: "trino disabled",
			})
		} else if db, ok := p.reg.Database(tp.Table.DatabaseID); ok && db.TrinoCatalog == "" {
			err.Rejections = append(err.Rejections, Rejection{
				Table:  tp.Table.APIName,
				Reason: fmt.Sprintf("no trino catalog for database %q", db.ID),
			})
		}
	}
	return err
}
