// Package rls applies role-based row and column security to a validated
// query: requested columns are trimmed to the role's allowed set and the
// role's mandatory filters are appended. Nothing the caller supplies can
// remove what is injected here.
package rls

import (
	"fmt"

	"github.com/fedsql/fedsql/internal/debuglog"
	"github.com/fedsql/fedsql/internal/metadata"
	"github.com/fedsql/fedsql/internal/query"
)

// AccessDeniedError reports a table or column the role may not touch.
type AccessDeniedError struct {
	RoleID string
	Table  string
	Column string // empty when the whole table is denied
}

func (e *AccessDeniedError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("role %q has no access to table %q", e.RoleID, e.Table)
	}
	return fmt.Sprintf("role %q has no access to column %q of table %q", e.RoleID, e.Column, e.Table)
}

// MissingContextError reports a context key the caller did not supply:
// the value of a mandatory filter, or a cache key placeholder (Column is
// empty then).
type MissingContextError struct {
	Table      string
	Column     string
	ContextKey string
}

func (e *MissingContextError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("table %q requires context key %q, which was not provided", e.Table, e.ContextKey)
	}
	return fmt.Sprintf("mandatory filter on %q.%q requires context key %q, which was not provided",
		e.Table, e.Column, e.ContextKey)
}

// TablePlan is the per-table outcome of injection: the effective column
// set and the combined filter list (user filters first, then the
// mandatory ones, ANDed).
type TablePlan struct {
	Table   *metadata.Table
	Columns []string // apiNames; never wider than the role allows
	Filters []query.Filter
}

// Adjusted is the RLS-adjusted query: the same shape as the input with
// trimmed columns and appended filters, annotated per table. Tables are
// ordered from first, joins in declaration order.
type Adjusted struct {
	Scope   *query.Scope
	Context *query.Context
	Tables  []TablePlan
}

// TableFor returns the plan for a table id.
func (a *Adjusted) TableFor(tableID string) *TablePlan {
	for i := range a.Tables {
		if a.Tables[i].Table.ID == tableID {
			return &a.Tables[i]
		}
	}
	return nil
}

// Injector performs RLS injection against one registry.
type Injector struct {
	reg *metadata.Registry
}

// NewInjector returns an injector over the given registry.
func NewInjector(reg *metadata.Registry) *Injector {
	return &Injector{reg: reg}
}

// Inject applies the role's rules for every table touched by the scope.
// Absence of a rule for any touched table denies the whole query.
func (inj *Injector) Inject(scope *query.Scope, execCtx *query.Context, log *debuglog.Log) (*Adjusted, error) {
	adj := &Adjusted{Scope: scope, Context: execCtx}
	def := scope.Def

	// Requested columns grouped by owning table.
	requested := make(map[string][]string)
	for _, ref := range def.Columns {
		tblName, colName := query.SplitRef(ref)
		tbl, _ := scope.Table(tblName)
		requested[tbl.ID] = append(requested[tbl.ID], colName)
	}

	for _, tbl := range scope.Tables() {
		rule, ok := inj.reg.RoleAccess(execCtx.RoleID, tbl.ID)
		if !ok {
			log.Append(debuglog.PhaseAccessControl, "table denied", map[string]interface{}{
				"role":  execCtx.RoleID,
				"table": tbl.APIName,
			})
			return nil, &AccessDeniedError{RoleID: execCtx.RoleID, Table: tbl.APIName}
		}

		columns, err := effectiveColumns(tbl, requested[tbl.ID], rule, execCtx.RoleID)
		if err != nil {
			log.Append(debuglog.PhaseAccessControl, "column denied", map[string]interface{}{
				"role":  execCtx.RoleID,
				"table": tbl.APIName,
			})
			return nil, err
		}

		plan := TablePlan{Table: tbl, Columns: columns}

		// User filters belonging to this table come first.
		for _, f := range def.Filters {
			tblName, colName := query.SplitRef(f.Column)
			owner, _ := scope.Table(tblName)
			if owner.ID == tbl.ID {
				plan.Filters = append(plan.Filters, query.Filter{
					Column:   colName,
					Operator: f.Operator,
					Value:    f.Value,
				})
			}
		}

		for _, rf := range rule.Filters {
			value, ok := execCtx.Values[rf.ContextKey]
			needsValue := rf.Operator != string(query.OpIsNull) && rf.Operator != string(query.OpIsNotNull)
			if needsValue && !ok {
				log.Append(debuglog.PhaseRLS, "missing context key", map[string]interface{}{
					"table": tbl.APIName,
					"key":   rf.ContextKey,
				})
				return nil, &MissingContextError{Table: tbl.APIName, Column: rf.Column, ContextKey: rf.ContextKey}
			}
			plan.Filters = append(plan.Filters, query.Filter{
				Column:   rf.Column,
				Operator: query.Operator(rf.Operator),
				Value:    value,
			})
		}

		log.Append(debuglog.PhaseRLS, "table adjusted", map[string]interface{}{
			"table":             tbl.APIName,
			"columns":           len(plan.Columns),
			"mandatory_filters": len(rule.Filters),
		})
		adj.Tables = append(adj.Tables, plan)
	}

	return adj, nil
}

// effectiveColumns resolves the column set for one table: the requested
// columns intersected with the allowed set, or exactly the allowed set
// when nothing was requested. A requested column outside the allowed set
// is a hard denial, not a silent trim.
func effectiveColumns(tbl *metadata.Table, requested []string, rule *metadata.TableRoleAccess, roleID string) ([]string, error) {
	if len(requested) == 0 {
		if rule.AllowedColumns.All {
			out := make([]string, len(tbl.Columns))
			for i, col := range tbl.Columns {
				out[i] = col.APIName
			}
			return out, nil
		}
		return append([]string(nil), rule.AllowedColumns.Columns...), nil
	}

	out := make([]string, 0, len(requested))
	for _, col := range requested {
		if !rule.AllowedColumns.Contains(col) {
			return nil, &AccessDeniedError{RoleID: roleID, Table: tbl.APIName, Column: col}
		}
		out = append(out, col)
	}
	return out, nil
}
