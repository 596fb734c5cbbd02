package query

import (
	"fmt"
	"strings"

	"github.com/fedsql/fedsql/internal/debuglog"
	"github.com/fedsql/fedsql/internal/metadata"
)

// ProblemKind classifies one validation failure.
type ProblemKind string

const (
	UnknownTable    ProblemKind = "unknown_table"
	UnknownColumn   ProblemKind = "unknown_column"
	InvalidJoin     ProblemKind = "invalid_join"
	InvalidOperator ProblemKind = "invalid_operator"
)

// Problem is one validation failure with expected-vs-received detail.
type Problem struct {
	Kind     ProblemKind `json:"kind"`
	Field    string      `json:"field"`
	Expected string      `json:"expected"`
	Received string      `json:"received"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: field %q expected %s, received %q", p.Kind, p.Field, p.Expected, p.Received)
}

// ValidationError collects every problem found in a single pass, so one
// failed call reports all of them.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return fmt.Sprintf("invalid query: %s", strings.Join(msgs, "; "))
}

// JoinEdge is one resolved join: the relation that connects the joined
// table to a table already in scope, possibly traversed in reverse.
type JoinEdge struct {
	Left     *metadata.Table
	Right    *metadata.Table
	Relation metadata.Relation
	Reversed bool
	Type     JoinType
}

// Scope is the validated view of a definition: every referenced table
// resolved, join edges established. Later stages consume it instead of
// re-resolving names.
type Scope struct {
	Def    *Definition
	From   *metadata.Table
	Joins  []JoinEdge
	byName map[string]*metadata.Table
}

// Tables returns the touched tables in declaration order, from first.
func (s *Scope) Tables() []*metadata.Table {
	out := make([]*metadata.Table, 0, 1+len(s.Joins))
	out = append(out, s.From)
	for _, j := range s.Joins {
		out = append(out, j.Right)
	}
	return out
}

// Table resolves an in-scope table by apiName; empty resolves the from
// table.
func (s *Scope) Table(apiName string) (*metadata.Table, bool) {
	if apiName == "" {
		return s.From, true
	}
	tbl, ok := s.byName[apiName]
	return tbl, ok
}

// Validator checks query definitions against the registry.
type Validator struct {
	reg *metadata.Registry
}

// NewValidator returns a validator over the given registry.
func NewValidator(reg *metadata.Registry) *Validator {
	return &Validator{reg: reg}
}

// Validate resolves every table and column reference in the definition and
// checks operator/type compatibility. Problems are collected, not
// short-circuited; on any problem the returned error is a
// *ValidationError listing all of them.
func (v *Validator) Validate(def *Definition, log *debuglog.Log) (*Scope, error) {
	var problems []Problem
	add := func(kind ProblemKind, field, expected, received string) {
		problems = append(problems, Problem{Kind: kind, Field: field, Expected: expected, Received: received})
	}

	scope := &Scope{Def: def, byName: make(map[string]*metadata.Table)}

	from, ok := v.reg.LookupTable(def.From)
	if !ok {
		add(UnknownTable, "from", "a table registered in the metadata", def.From)
	} else {
		scope.From = from
		scope.byName[from.APIName] = from
	}

	for _, join := range def.Joins {
		right, ok := v.reg.LookupTable(join.Table)
		if !ok {
			add(UnknownTable, "joins", "a table registered in the metadata", join.Table)
			continue
		}
		joinType := join.Type
		if joinType == "" {
			joinType = JoinLeft
		}
		edge, found := v.findRelation(scope, right)
		if !found {
			add(InvalidJoin, "joins",
				fmt.Sprintf("a declared relation between %q and a table already in the query", join.Table),
				join.Table)
		} else {
			edge.Type = joinType
			scope.Joins = append(scope.Joins, edge)
		}
		scope.byName[right.APIName] = right
	}

	// Column references are only checkable for tables that resolved.
	checkRef := func(field, ref string) (*metadata.Table, *metadata.Column) {
		tblName, colName := SplitRef(ref)
		tbl, ok := scope.Table(tblName)
		if !ok || tbl == nil {
			if tblName != "" {
				add(UnknownTable, field, "a table in the query scope", tblName)
			}
			return nil, nil
		}
		col, ok := v.reg.LookupColumn(tbl, colName)
		if !ok {
			add(UnknownColumn, field, fmt.Sprintf("a column of table %q", tbl.APIName), ref)
			return tbl, nil
		}
		return tbl, col
	}

	for _, ref := range def.Columns {
		checkRef("columns", ref)
	}
	for _, f := range def.Filters {
		_, col := checkRef("filters", f.Column)
		if col != nil && !f.Operator.AllowedFor(col.Type) {
			add(InvalidOperator, "filters",
				fmt.Sprintf("an operator valid for type %q on column %q", col.Type, f.Column),
				string(f.Operator))
		}
	}
	for _, o := range def.Order {
		checkRef("order", o.Column)
	}
	for _, g := range def.GroupBy {
		checkRef("group_by", g)
	}
	for _, a := range def.Aggregations {
		if a.Func == AggCount && a.Column == "" {
			continue // bare count(*)
		}
		checkRef("aggregations", a.Column)
	}
	for _, h := range def.Having {
		if h.Aggregation.Column != "" {
			checkRef("having", h.Aggregation.Column)
		}
	}

	if len(def.ByIDs) > 0 && scope.From != nil && len(scope.From.PrimaryKey) != 1 {
		add(InvalidOperator, "by_ids",
			fmt.Sprintf("table %q to have a single-column primary key", scope.From.APIName),
			fmt.Sprintf("%d primary key columns", len(scope.From.PrimaryKey)))
	}
	if def.Freshness != "" && !def.Freshness.Valid() {
		add(InvalidOperator, "freshness", "one of realtime, seconds, minutes, hours", string(def.Freshness))
	}

	if len(problems) > 0 {
		log.Append(debuglog.PhaseValidation, "query rejected", map[string]interface{}{
			"problems": len(problems),
		})
		return nil, &ValidationError{Problems: problems}
	}

	log.Append(debuglog.PhaseValidation, "query validated", map[string]interface{}{
		"from":   def.From,
		"tables": len(scope.Tables()),
	})
	return scope, nil
}

// findRelation looks for a relation between the candidate table and any
// table already in scope, in either direction. The first declared match
// wins.
func (v *Validator) findRelation(scope *Scope, right *metadata.Table) (JoinEdge, bool) {
	for _, left := range scope.Tables() {
		if left == nil {
			continue
		}
		for _, rel := range v.reg.RelationsOf(left) {
			if rel.TargetTable == right.ID {
				return JoinEdge{Left: left, Right: right, Relation: rel}, true
			}
		}
		for _, rel := range v.reg.RelationsOf(right) {
			if rel.TargetTable == left.ID {
				return JoinEdge{Left: left, Right: right, Relation: rel, Reversed: true}, true
			}
		}
	}
	return JoinEdge{}, false
}
