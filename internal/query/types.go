// Package query defines the transient query shape accepted by the public
// call surface and validates it against the metadata registry.
package query

import (
	"strings"

	"github.com/fedsql/fedsql/internal/metadata"
)

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq        Operator = "="
	OpNeq       Operator = "!="
	OpGt        Operator = ">"
	OpLt        Operator = "<"
	OpGte       Operator = ">="
	OpLte       Operator = "<="
	OpIn        Operator = "in"
	OpLike      Operator = "like"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
)

// AllowedFor reports whether the operator is permitted for a column of the
// given logical type. Ordering operators need an ordered type; like needs a
// string; booleans only support equality and null checks.
func (op Operator) AllowedFor(t metadata.ColumnType) bool {
	switch op {
	case OpEq, OpNeq, OpIsNull, OpIsNotNull:
		return true
	case OpIn:
		return t != metadata.TypeBool
	case OpGt, OpLt, OpGte, OpLte:
		return t.IsNumeric()
	case OpLike:
		return t == metadata.TypeString
	}
	return false
}

// JoinType selects the SQL join flavor. Left is the default so that rows
// with a null optional foreign key are preserved.
type JoinType string

const (
	JoinLeft  JoinType = "left"
	JoinInner JoinType = "inner"
)

// ExecuteMode selects what the pipeline produces.
type ExecuteMode string

const (
	ModeSQLOnly ExecuteMode = "sql"
	ModeRows    ExecuteMode = "rows"
	ModeCount   ExecuteMode = "count"
)

// AggFunc is an aggregate function name.
type AggFunc string

const (
	AggCount AggFunc = "count"
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
)

// Filter is one user-supplied predicate. Column may be qualified as
// "table.column"; unqualified references resolve against the from table.
type Filter struct {
	Column   string      `json:"column" yaml:"column"`
	Operator Operator    `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// Join requests one joined table by apiName.
type Join struct {
	Table string   `json:"table" yaml:"table"`
	Type  JoinType `json:"type,omitempty" yaml:"type,omitempty"`
}

// OrderBy is one ordering term.
type OrderBy struct {
	Column string `json:"column" yaml:"column"`
	Desc   bool   `json:"desc,omitempty" yaml:"desc,omitempty"`
}

// Aggregation is one aggregate select term.
type Aggregation struct {
	Column    string  `json:"column" yaml:"column"`
	Func      AggFunc `json:"func" yaml:"func"`
	DateTrunc string  `json:"date_trunc,omitempty" yaml:"date_trunc,omitempty"`
	Alias     string  `json:"alias,omitempty" yaml:"alias,omitempty"`
}

// Having is one post-aggregation predicate.
type Having struct {
	Aggregation Aggregation `json:"aggregation" yaml:"aggregation"`
	Operator    Operator    `json:"operator" yaml:"operator"`
	Value       interface{} `json:"value" yaml:"value"`
}

// Definition is the declarative query over the logical schema.
type Definition struct {
	From         string           `json:"from" yaml:"from"`
	Columns      []string         `json:"columns,omitempty" yaml:"columns,omitempty"`
	Filters      []Filter         `json:"filters,omitempty" yaml:"filters,omitempty"`
	Joins        []Join           `json:"joins,omitempty" yaml:"joins,omitempty"`
	Aggregations []Aggregation    `json:"aggregations,omitempty" yaml:"aggregations,omitempty"`
	GroupBy      []string         `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	Having       []Having         `json:"having,omitempty" yaml:"having,omitempty"`
	Order        []OrderBy        `json:"order,omitempty" yaml:"order,omitempty"`
	Limit        int              `json:"limit,omitempty" yaml:"limit,omitempty"`
	Offset       int              `json:"offset,omitempty" yaml:"offset,omitempty"`
	ByIDs        []interface{}    `json:"by_ids,omitempty" yaml:"by_ids,omitempty"`
	Freshness    metadata.SyncLag `json:"freshness,omitempty" yaml:"freshness,omitempty"`
	Mode         ExecuteMode      `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// Context carries the caller identity and the values RLS filters resolve
// against.
type Context struct {
	RoleID string                 `json:"role_id" yaml:"role_id"`
	Values map[string]interface{} `json:"values,omitempty" yaml:"values,omitempty"`
}

// SplitRef splits a possibly table-qualified column reference. The table
// part is empty for unqualified references.
func SplitRef(ref string) (table, column string) {
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}
