package sqlgen

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fedsql/fedsql/internal/debuglog"
	"github.com/fedsql/fedsql/internal/query"
	"github.com/fedsql/fedsql/internal/resolver"
)

var truncGranularities = map[string]bool{
	"year": true, "quarter": true, "month": true, "week": true,
	"day": true, "hour": true, "minute": true,
}

// Statement is the generated output: SQL text plus the positional
// parameter list in appearance order.
type Statement struct {
	SQL     string
	Params  []interface{}
	Dialect string
}

// Generator composes SELECT statements from resolved plans. It is
// stateless; one instance serves concurrent queries.
type Generator struct{}

// New returns a generator.
func New() *Generator {
	return &Generator{}
}

// Generate renders the resolved query in the given dialect. Filter values
// are collected into the parameter list in the order their predicates
// appear in the text.
func (g *Generator) Generate(q *resolver.Query, d Dialect, log *debuglog.Log) (*Statement, error) {
	b := &builder{dialect: d}

	selectList, err := b.selectList(q)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectList)

	from := q.Tables[0]
	sb.WriteString(" FROM ")
	sb.WriteString(d.QualifyTable(from.Catalog, from.Physical))
	sb.WriteString(" AS ")
	sb.WriteString(d.QuoteIdent(from.Alias))

	for _, tbl := range q.Tables[1:] {
		joinKind := "LEFT JOIN"
		if tbl.Join != nil && tbl.Join.Type == query.JoinInner {
			joinKind = "INNER JOIN"
		}
		sb.WriteString(" ")
		sb.WriteString(joinKind)
		sb.WriteString(" ")
		sb.WriteString(d.QualifyTable(tbl.Catalog, tbl.Physical))
		sb.WriteString(" AS ")
		sb.WriteString(d.QuoteIdent(tbl.Alias))
		if tbl.Join != nil {
			on := tbl.Join.On
			sb.WriteString(fmt.Sprintf(" ON %s.%s = %s.%s",
				d.QuoteIdent(on.LeftAlias), d.QuoteIdent(on.LeftColumn),
				d.QuoteIdent(on.RightAlias), d.QuoteIdent(on.RightColumn)))
		}
	}

	where, err := b.whereClause(q)
	if err != nil {
		return nil, err
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	if len(q.GroupBy) > 0 {
		terms := make([]string, len(q.GroupBy))
		for i, gt := range q.GroupBy {
			terms[i] = b.qualified(gt.Alias, gt.Column.Physical)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	if len(q.Having) > 0 {
		terms := make([]string, 0, len(q.Having))
		for _, h := range q.Having {
			expr, err := b.aggregateExpr(h.Aggregation)
			if err != nil {
				return nil, err
			}
			cond, err := b.condition(expr, h.Operator, h.Value)
			if err != nil {
				return nil, err
			}
			terms = append(terms, cond)
		}
		sb.WriteString(" HAVING ")
		sb.WriteString(strings.Join(terms, " AND "))
	}

	// Count mode collapses the result to one row; ordering and paging
	// would be meaningless.
	if q.Mode != query.ModeCount {
		if len(q.Order) > 0 {
			terms := make([]string, len(q.Order))
			for i, o := range q.Order {
				dir := "ASC"
				if o.Desc {
					dir = "DESC"
				}
				terms[i] = b.qualified(o.Alias, o.Column.Physical) + " " + dir
			}
			sb.WriteString(" ORDER BY ")
			sb.WriteString(strings.Join(terms, ", "))
		}
		if q.Limit > 0 {
			sb.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
		}
		if q.Offset > 0 {
			sb.WriteString(fmt.Sprintf(" OFFSET %d", q.Offset))
		}
	}

	log.Append(debuglog.PhaseSQLGeneration, "sql generated", map[string]interface{}{
		"dialect": d.Name(),
		"params":  len(b.params),
	})
	return &Statement{SQL: sb.String(), Params: b.params, Dialect: d.Name()}, nil
}

type builder struct {
	dialect Dialect
	params  []interface{}
}

func (b *builder) qualified(alias, physical string) string {
	return b.dialect.QuoteIdent(alias) + "." + b.dialect.QuoteIdent(physical)
}

func (b *builder) placeholder(value interface{}) string {
	b.params = append(b.params, value)
	return b.dialect.Placeholder(len(b.params))
}

// selectList renders the projection. Count mode replaces it with a single
// count aggregate; aggregate queries project group terms plus aggregates;
// plain queries project each table's effective columns aliased back to
// their apiNames.
func (b *builder) selectList(q *resolver.Query) (string, error) {
	d := b.dialect

	if q.Mode == query.ModeCount {
		return "count(*) AS " + d.QuoteIdent("count"), nil
	}

	if len(q.Aggregations) > 0 {
		var parts []string
		for _, gt := range q.GroupBy {
			parts = append(parts, b.qualified(gt.Alias, gt.Column.Physical)+" AS "+d.QuoteIdent(gt.Column.API))
		}
		for _, agg := range q.Aggregations {
			expr, err := b.aggregateExpr(agg)
			if err != nil {
				return "", err
			}
			parts = append(parts, expr+" AS "+d.QuoteIdent(agg.Label))
		}
		return strings.Join(parts, ", "), nil
	}

	var parts []string
	for _, tbl := range q.Tables {
		for _, col := range tbl.Columns {
			parts = append(parts, b.qualified(tbl.Alias, col.Physical)+" AS "+d.QuoteIdent(col.API))
		}
	}
	if len(parts) == 0 {
		return "", &GenerationError{Dialect: d.Name(), Construct: "select list", Detail: "no columns to project"}
	}
	return strings.Join(parts, ", "), nil
}

func (b *builder) aggregateExpr(agg resolver.Aggregation) (string, error) {
	d := b.dialect
	if agg.Column.Physical == "" {
		if agg.Func != query.AggCount {
			return "", &GenerationError{Dialect: d.Name(), Construct: "aggregate", Detail: fmt.Sprintf("%s requires a column", agg.Func)}
		}
		return "count(*)", nil
	}
	expr := b.qualified(agg.Alias, agg.Column.Physical)
	if agg.DateTrunc != "" {
		if !truncGranularities[agg.DateTrunc] {
			return "", &GenerationError{Dialect: d.Name(), Construct: "date truncation", Detail: fmt.Sprintf("unknown granularity %q", agg.DateTrunc)}
		}
		expr = d.DateTrunc(agg.DateTrunc, expr)
	}
	return fmt.Sprintf("%s(%s)", agg.Func, expr), nil
}

// whereClause renders user filters and mandatory RLS filters, ANDed, in
// table then appearance order. A byIds lookup contributes a membership
// test on the from table's primary key first.
func (b *builder) whereClause(q *resolver.Query) (string, error) {
	var conds []string

	if len(q.ByIDs) > 0 && q.PrimaryKey != nil {
		expr := b.qualified(q.Tables[0].Alias, q.PrimaryKey.Physical)
		placeholders := make([]string, len(q.ByIDs))
		for i, id := range q.ByIDs {
			placeholders[i] = b.placeholder(id)
		}
		conds = append(conds, b.dialect.ArrayMembership(expr, placeholders))
	}

	for _, tbl := range q.Tables {
		for _, f := range tbl.Filters {
			expr := b.qualified(tbl.Alias, f.Column.Physical)
			cond, err := b.condition(expr, f.Operator, f.Value)
			if err != nil {
				return "", err
			}
			conds = append(conds, cond)
		}
	}

	return strings.Join(conds, " AND "), nil
}

func (b *builder) condition(expr string, op query.Operator, value interface{}) (string, error) {
	d := b.dialect
	switch op {
	case query.OpIsNull:
		return expr + " IS NULL", nil
	case query.OpIsNotNull:
		return expr + " IS NOT NULL", nil
	case query.OpIn:
		values, ok := expandSlice(value)
		if !ok || len(values) == 0 {
			return "", &GenerationError{Dialect: d.Name(), Construct: "array membership", Detail: "in operator requires a non-empty list value"}
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = b.placeholder(v)
		}
		return d.ArrayMembership(expr, placeholders), nil
	case query.OpLike:
		return fmt.Sprintf("%s LIKE %s", expr, b.placeholder(value)), nil
	case query.OpEq, query.OpNeq:
		if v, isBool := value.(bool); isBool {
			sqlOp := "="
			if op == query.OpNeq {
				sqlOp = "!="
			}
			return fmt.Sprintf("%s %s %s", expr, sqlOp, d.BoolLiteral(v)), nil
		}
		sqlOp := "="
		if op == query.OpNeq {
			sqlOp = "!="
		}
		return fmt.Sprintf("%s %s %s", expr, sqlOp, b.placeholder(value)), nil
	case query.OpGt, query.OpLt, query.OpGte, query.OpLte:
		return fmt.Sprintf("%s %s %s", expr, op, b.placeholder(value)), nil
	}
	return "", &GenerationError{Dialect: d.Name(), Construct: "filter", Detail: fmt.Sprintf("unsupported operator %q", op)}
}

// expandSlice flattens a slice value of any element type.
func expandSlice(value interface{}) ([]interface{}, bool) {
	if vs, ok := value.([]interface{}); ok {
		return vs, true
	}
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
