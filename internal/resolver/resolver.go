// Package resolver rewrites apiName references in a resolved plan to the
// physical identifiers of the copies actually chosen to serve each table.
// The apiNames are retained as aliases so result rows can be mapped back
// to the requested labels.
package resolver

import (
	"fmt"

	"github.com/fedsql/fedsql/internal/debuglog"
	"github.com/fedsql/fedsql/internal/metadata"
	"github.com/fedsql/fedsql/internal/planner"
	"github.com/fedsql/fedsql/internal/query"
	"github.com/fedsql/fedsql/internal/rls"
)

// Column pairs an exposed name with the physical name backing it.
type Column struct {
	API      string
	Physical string
}

// Filter is a predicate with its column already resolved.
type Filter struct {
	Column   Column
	Operator query.Operator
	Value    interface{}
}

// JoinOn is a resolved equi-join condition between two table aliases.
type JoinOn struct {
	LeftAlias   string
	LeftColumn  string // physical
	RightAlias  string
	RightColumn string // physical
}

// Join describes how a table joins into the query.
type Join struct {
	Type query.JoinType
	On   JoinOn
}

// Table is one physically-addressed table of the final plan.
type Table struct {
	Alias    string // apiName, used as the SQL alias and for row mapping
	Physical string // physicalName of the chosen copy
	Catalog  string // trino catalog, empty outside cross-db plans
	Database string
	Columns  []Column
	Filters  []Filter
	Join     *Join // nil for the from table
}

// OrderTerm is one resolved ordering term.
type OrderTerm struct {
	Alias  string // table alias
	Column Column
	Desc   bool
}

// GroupTerm is one resolved grouping term.
type GroupTerm struct {
	Alias  string
	Column Column
}

// Aggregation is one resolved aggregate select term.
type Aggregation struct {
	Func      query.AggFunc
	Alias     string // table alias; empty for bare count(*)
	Column    Column
	DateTrunc string
	Label     string // output column label
}

// Having is one resolved post-aggregation predicate.
type Having struct {
	Aggregation Aggregation
	Operator    query.Operator
	Value       interface{}
}

// Query is the fully name-resolved plan handed to the SQL generator. It
// carries physical identifiers only; apiNames survive as aliases.
type Query struct {
	Plan         *planner.Plan
	Tables       []Table
	Order        []OrderTerm
	GroupBy      []GroupTerm
	Aggregations []Aggregation
	Having       []Having
	Limit        int
	Offset       int
	Mode         query.ExecuteMode
	ByIDs        []interface{}
	PrimaryKey   *Column // from-table pk, set when ByIDs is used
}

// Resolver performs apiName to physicalName substitution.
type Resolver struct {
	reg *metadata.Registry
}

// New returns a resolver over the registry.
func New(reg *metadata.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve maps every table and column reference of the plan to physical
// names. A table served as a materialized replica takes the sync's target
// physical name; trino plans qualify each table by its owning database's
// catalog.
func (r *Resolver) Resolve(plan *planner.Plan, adj *rls.Adjusted, log *debuglog.Log) (*Query, error) {
	def := adj.Scope.Def
	out := &Query{
		Plan:   plan,
		Limit:  def.Limit,
		Offset: def.Offset,
		Mode:   def.Mode,
		ByIDs:  def.ByIDs,
	}

	aliases := make(map[string]*metadata.Table)
	for i, src := range plan.Sources {
		tbl := src.Table.Table
		aliases[tbl.APIName] = tbl

		physical := tbl.PhysicalName
		if src.Location.Kind == planner.CopyMaterialized && src.Location.Sync != nil {
			physical = src.Location.Sync.TargetPhysicalName
		}
		resolved := Table{
			Alias:    tbl.APIName,
			Physical: physical,
			Database: src.Location.DatabaseID,
		}
		if plan.Strategy == planner.StrategyTrino {
			db, ok := r.reg.Database(tbl.DatabaseID)
			if !ok {
				return nil, fmt.Errorf("error resolving catalog for table %q: unknown database %q", tbl.APIName, tbl.DatabaseID)
			}
			resolved.Catalog = db.TrinoCatalog
		}

		for _, apiName := range src.Table.Columns {
			col, err := r.column(tbl, apiName)
			if err != nil {
				return nil, err
			}
			resolved.Columns = append(resolved.Columns, col)
		}
		for _, f := range src.Table.Filters {
			col, err := r.column(tbl, f.Column)
			if err != nil {
				return nil, err
			}
			resolved.Filters = append(resolved.Filters, Filter{Column: col, Operator: f.Operator, Value: f.Value})
		}

		if i > 0 {
			join, err := r.join(adj.Scope.Joins[i-1])
			if err != nil {
				return nil, err
			}
			resolved.Join = join
		}
		out.Tables = append(out.Tables, resolved)
	}

	resolveRef := func(ref string) (string, Column, error) {
		tblName, colName := query.SplitRef(ref)
		if tblName == "" {
			tblName = out.Tables[0].Alias
		}
		tbl, ok := aliases[tblName]
		if !ok {
			return "", Column{}, fmt.Errorf("error resolving %q: table %q is not part of the plan", ref, tblName)
		}
		col, err := r.column(tbl, colName)
		return tblName, col, err
	}

	for _, o := range def.Order {
		alias, col, err := resolveRef(o.Column)
		if err != nil {
			return nil, err
		}
		out.Order = append(out.Order, OrderTerm{Alias: alias, Column: col, Desc: o.Desc})
	}
	for _, g := range def.GroupBy {
		alias, col, err := resolveRef(g)
		if err != nil {
			return nil, err
		}
		out.GroupBy = append(out.GroupBy, GroupTerm{Alias: alias, Column: col})
	}
	for _, a := range def.Aggregations {
		agg, err := r.aggregation(a, resolveRef)
		if err != nil {
			return nil, err
		}
		out.Aggregations = append(out.Aggregations, agg)
	}
	for _, h := range def.Having {
		agg, err := r.aggregation(h.Aggregation, resolveRef)
		if err != nil {
			return nil, err
		}
		out.Having = append(out.Having, Having{Aggregation: agg, Operator: h.Operator, Value: h.Value})
	}

	if len(def.ByIDs) > 0 {
		from := plan.Sources[0].Table.Table
		col, err := r.column(from, from.PrimaryKey[0])
		if err != nil {
			return nil, err
		}
		out.PrimaryKey = &col
	}

	log.Append(debuglog.PhaseNameResolution, "plan resolved to physical names", map[string]interface{}{
		"tables": len(out.Tables),
	})
	return out, nil
}

func (r *Resolver) column(tbl *metadata.Table, apiName string) (Column, error) {
	col, ok := r.reg.LookupColumn(tbl, apiName)
	if !ok {
		return Column{}, fmt.Errorf("error resolving column %q on table %q", apiName, tbl.APIName)
	}
	return Column{API: col.APIName, Physical: col.PhysicalName}, nil
}

// join resolves a validated join edge to physical column names. Reversed
// edges traverse the relation from target to source.
func (r *Resolver) join(edge query.JoinEdge) (*Join, error) {
	var leftAPI, rightAPI string
	if edge.Reversed {
		leftAPI, rightAPI = edge.Relation.TargetColumn, edge.Relation.SourceColumn
	} else {
		leftAPI, rightAPI = edge.Relation.SourceColumn, edge.Relation.TargetColumn
	}
	left, err := r.column(edge.Left, leftAPI)
	if err != nil {
		return nil, err
	}
	right, err := r.column(edge.Right, rightAPI)
	if err != nil {
		return nil, err
	}
	return &Join{
		Type: edge.Type,
		On: JoinOn{
			LeftAlias:   edge.Left.APIName,
			LeftColumn:  left.Physical,
			RightAlias:  edge.Right.APIName,
			RightColumn: right.Physical,
		},
	}, nil
}

func (r *Resolver) aggregation(a query.Aggregation, resolveRef func(string) (string, Column, error)) (Aggregation, error) {
	out := Aggregation{Func: a.Func, DateTrunc: a.DateTrunc, Label: a.Alias}
	if a.Column != "" {
		alias, col, err := resolveRef(a.Column)
		if err != nil {
			return Aggregation{}, err
		}
		out.Alias = alias
		out.Column = col
	}
	if out.Label == "" {
		if a.Column == "" {
			out.Label = string(a.Func)
		} else {
			out.Label = fmt.Sprintf("%s_%s", a.Func, out.Column.API)
		}
	}
	return out, nil
}
