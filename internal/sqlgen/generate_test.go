package sqlgen

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fedsql/fedsql/internal/debuglog"
	"github.com/fedsql/fedsql/internal/query"
	"github.com/fedsql/fedsql/internal/resolver"
)

func ordersQuery() *resolver.Query {
	return &resolver.Query{
		Tables: []resolver.Table{
			{
				Alias:    "orders",
				Physical: "tbl_orders",
				Columns: []resolver.Column{
					{API: "id", Physical: "ord_id"},
					{API: "amount", Physical: "order_amount"},
				},
			},
		},
	}
}

func generate(t *testing.T, q *resolver.Query, tag string) *Statement {
	t.Helper()
	d, err := ForDialect(tag)
	if err != nil {
		t.Fatalf("dialect %s: %v", tag, err)
	}
	stmt, err := New().Generate(q, d, debuglog.New())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return stmt
}

func TestGeneratePostgresSelect(t *testing.T) {
	q := ordersQuery()
	q.Tables[0].Filters = []resolver.Filter{
		{Column: resolver.Column{API: "amount", Physical: "order_amount"}, Operator: query.OpGt, Value: 100},
	}
	q.Tables = append(q.Tables, resolver.Table{
		Alias:    "users",
		Physical: "tbl_users",
		Columns:  []resolver.Column{{API: "email", Physical: "usr_email"}},
		Filters: []resolver.Filter{
			{Column: resolver.Column{API: "email", Physical: "usr_email"}, Operator: query.OpLike, Value: "%@example.com"},
		},
		Join: &resolver.Join{
			Type: query.JoinLeft,
			On: resolver.JoinOn{
				LeftAlias: "orders", LeftColumn: "user_id",
				RightAlias: "users", RightColumn: "usr_id",
			},
		},
	})
	q.Order = []resolver.OrderTerm{{Alias: "orders", Column: resolver.Column{API: "id", Physical: "ord_id"}, Desc: true}}
	q.Limit = 25
	q.Offset = 50

	stmt := generate(t, q, "postgres")

	want := `SELECT "orders"."ord_id" AS "id", "orders"."order_amount" AS "amount", "users"."usr_email" AS "email"` +
		` FROM "tbl_orders" AS "orders"` +
		` LEFT JOIN "tbl_users" AS "users" ON "orders"."user_id" = "users"."usr_id"` +
		` WHERE "orders"."order_amount" > $1 AND "users"."usr_email" LIKE $2` +
		` ORDER BY "orders"."ord_id" DESC LIMIT 25 OFFSET 50`
	if stmt.SQL != want {
		t.Errorf("sql mismatch\n got: %s\nwant: %s", stmt.SQL, want)
	}
	if !reflect.DeepEqual(stmt.Params, []interface{}{100, "%@example.com"}) {
		t.Errorf("params mismatch: %v", stmt.Params)
	}
	if stmt.Dialect != "postgres" {
		t.Errorf("dialect tag mismatch: %s", stmt.Dialect)
	}
}

func TestGenerateInnerJoin(t *testing.T) {
	q := ordersQuery()
	q.Tables = append(q.Tables, resolver.Table{
		Alias:    "users",
		Physical: "tbl_users",
		Columns:  []resolver.Column{{API: "id", Physical: "usr_id"}},
		Join: &resolver.Join{
			Type: query.JoinInner,
			On: resolver.JoinOn{
				LeftAlias: "orders", LeftColumn: "user_id",
				RightAlias: "users", RightColumn: "usr_id",
			},
		},
	})
	stmt := generate(t, q, "postgres")
	if want := `INNER JOIN "tbl_users" AS "users"`; !strings.Contains(stmt.SQL, want) {
		t.Errorf("expected %q in %s", want, stmt.SQL)
	}
}

func TestGenerateIDMembershipFirst(t *testing.T) {
	q := ordersQuery()
	q.ByIDs = []interface{}{1, 2, 3}
	q.PrimaryKey = &resolver.Column{API: "id", Physical: "ord_id"}
	q.Tables[0].Filters = []resolver.Filter{
		{Column: resolver.Column{API: "amount", Physical: "order_amount"}, Operator: query.OpGte, Value: 10},
	}

	stmt := generate(t, q, "postgres")

	if want := `WHERE "orders"."ord_id" IN ($1, $2, $3) AND "orders"."order_amount" >= $4`; !strings.Contains(stmt.SQL, want) {
		t.Errorf("expected %q in %s", want, stmt.SQL)
	}
	if !reflect.DeepEqual(stmt.Params, []interface{}{1, 2, 3, 10}) {
		t.Errorf("ids must precede filter params: %v", stmt.Params)
	}
}

func TestGenerateBoolLiteralInline(t *testing.T) {
	q := ordersQuery()
	q.Tables[0].Filters = []resolver.Filter{
		{Column: resolver.Column{API: "paid", Physical: "is_paid"}, Operator: query.OpEq, Value: true},
	}

	pg := generate(t, q, "postgres")
	if want := `"orders"."is_paid" = TRUE`; !strings.Contains(pg.SQL, want) {
		t.Errorf("expected %q in %s", want, pg.SQL)
	}
	if len(pg.Params) != 0 {
		t.Errorf("bool literals must not produce params: %v", pg.Params)
	}

	ch := generate(t, q, "clickhouse")
	if want := "`orders`.`is_paid` = 1"; !strings.Contains(ch.SQL, want) {
		t.Errorf("expected %q in %s", want, ch.SQL)
	}
}

func TestGenerateNullChecks(t *testing.T) {
	q := ordersQuery()
	q.Tables[0].Filters = []resolver.Filter{
		{Column: resolver.Column{API: "userId", Physical: "user_id"}, Operator: query.OpIsNull},
		{Column: resolver.Column{API: "amount", Physical: "order_amount"}, Operator: query.OpIsNotNull},
	}
	stmt := generate(t, q, "postgres")
	if want := `"orders"."user_id" IS NULL AND "orders"."order_amount" IS NOT NULL`; !strings.Contains(stmt.SQL, want) {
		t.Errorf("expected %q in %s", want, stmt.SQL)
	}
	if len(stmt.Params) != 0 {
		t.Errorf("null checks must not produce params: %v", stmt.Params)
	}
}

func TestGenerateInExpansion(t *testing.T) {
	q := ordersQuery()
	q.Tables[0].Filters = []resolver.Filter{
		{Column: resolver.Column{API: "id", Physical: "ord_id"}, Operator: query.OpIn, Value: []int{4, 5}},
	}
	stmt := generate(t, q, "postgres")
	if want := `"orders"."ord_id" IN ($1, $2)`; !strings.Contains(stmt.SQL, want) {
		t.Errorf("expected %q in %s", want, stmt.SQL)
	}
	if !reflect.DeepEqual(stmt.Params, []interface{}{4, 5}) {
		t.Errorf("typed slice not expanded: %v", stmt.Params)
	}

	q.Tables[0].Filters[0].Value = []interface{}{}
	d, _ := ForDialect("postgres")
	_, err := New().Generate(q, d, debuglog.New())
	var gErr *GenerationError
	if !errors.As(err, &gErr) {
		t.Fatalf("expected *GenerationError for an empty list, got %v", err)
	}
}

func TestGenerateCountMode(t *testing.T) {
	q := ordersQuery()
	q.Mode = query.ModeCount
	q.Order = []resolver.OrderTerm{{Alias: "orders", Column: resolver.Column{API: "id", Physical: "ord_id"}}}
	q.Limit = 10
	q.Offset = 5

	stmt := generate(t, q, "postgres")
	want := `SELECT count(*) AS "count" FROM "tbl_orders" AS "orders"`
	if stmt.SQL != want {
		t.Errorf("count mode must suppress ordering and paging\n got: %s\nwant: %s", stmt.SQL, want)
	}
}

func TestGenerateAggregations(t *testing.T) {
	q := ordersQuery()
	q.GroupBy = []resolver.GroupTerm{{Alias: "orders", Column: resolver.Column{API: "userId", Physical: "user_id"}}}
	q.Aggregations = []resolver.Aggregation{
		{Func: query.AggSum, Alias: "orders", Column: resolver.Column{API: "amount", Physical: "order_amount"}, Label: "sum_amount"},
		{Func: query.AggCount, Label: "orderCount"},
		{Func: query.AggMin, Alias: "orders", Column: resolver.Column{API: "placedAt", Physical: "placed_at"}, DateTrunc: "month", Label: "firstMonth"},
	}
	q.Having = []resolver.Having{
		{
			Aggregation: resolver.Aggregation{Func: query.AggSum, Alias: "orders", Column: resolver.Column{API: "amount", Physical: "order_amount"}},
			Operator:    query.OpGt,
			Value:       1000,
		},
	}

	stmt := generate(t, q, "postgres")
	want := `SELECT "orders"."user_id" AS "userId", sum("orders"."order_amount") AS "sum_amount", count(*) AS "orderCount", ` +
		`min(date_trunc('month', "orders"."placed_at")) AS "firstMonth"` +
		` FROM "tbl_orders" AS "orders"` +
		` GROUP BY "orders"."user_id"` +
		` HAVING sum("orders"."order_amount") > $1`
	if stmt.SQL != want {
		t.Errorf("sql mismatch\n got: %s\nwant: %s", stmt.SQL, want)
	}
	if !reflect.DeepEqual(stmt.Params, []interface{}{1000}) {
		t.Errorf("params mismatch: %v", stmt.Params)
	}
}

func TestGenerateRejectsUnknownGranularity(t *testing.T) {
	q := ordersQuery()
	q.Aggregations = []resolver.Aggregation{
		{Func: query.AggMax, Alias: "orders", Column: resolver.Column{API: "placedAt", Physical: "placed_at"}, DateTrunc: "fortnight", Label: "x"},
	}
	d, _ := ForDialect("postgres")
	_, err := New().Generate(q, d, debuglog.New())
	var gErr *GenerationError
	if !errors.As(err, &gErr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
	if gErr.Construct != "date truncation" {
		t.Errorf("unexpected construct %q", gErr.Construct)
	}
}

func TestGenerateClickHouse(t *testing.T) {
	q := ordersQuery()
	q.Tables[0].Filters = []resolver.Filter{
		{Column: resolver.Column{API: "amount", Physical: "order_amount"}, Operator: query.OpLt, Value: 50},
	}
	stmt := generate(t, q, "clickhouse")
	want := "SELECT `orders`.`ord_id` AS `id`, `orders`.`order_amount` AS `amount`" +
		" FROM `tbl_orders` AS `orders`" +
		" WHERE `orders`.`order_amount` < ?"
	if stmt.SQL != want {
		t.Errorf("sql mismatch\n got: %s\nwant: %s", stmt.SQL, want)
	}
}

func TestGenerateTrinoCatalogQualification(t *testing.T) {
	q := &resolver.Query{
		Tables: []resolver.Table{
			{
				Alias: "events", Physical: "tbl_events", Catalog: "ch_analytics",
				Columns: []resolver.Column{{API: "id", Physical: "evt_id"}},
			},
			{
				Alias: "orders", Physical: "tbl_orders", Catalog: "pg_main",
				Columns: []resolver.Column{{API: "id", Physical: "ord_id"}},
				Join: &resolver.Join{
					Type: query.JoinLeft,
					On: resolver.JoinOn{
						LeftAlias: "events", LeftColumn: "order_id",
						RightAlias: "orders", RightColumn: "ord_id",
					},
				},
			},
		},
	}
	stmt := generate(t, q, "trino")
	if want := `FROM "ch_analytics"."tbl_events" AS "events"`; !strings.Contains(stmt.SQL, want) {
		t.Errorf("expected %q in %s", want, stmt.SQL)
	}
	if want := `LEFT JOIN "pg_main"."tbl_orders" AS "orders"`; !strings.Contains(stmt.SQL, want) {
		t.Errorf("expected %q in %s", want, stmt.SQL)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	q := ordersQuery()
	q.Tables[0].Filters = []resolver.Filter{
		{Column: resolver.Column{API: "amount", Physical: "order_amount"}, Operator: query.OpGt, Value: 1},
	}
	first := generate(t, q, "postgres")
	second := generate(t, q, "postgres")
	if first.SQL != second.SQL || !reflect.DeepEqual(first.Params, second.Params) {
		t.Errorf("generation is not deterministic:\n%s\n%s", first.SQL, second.SQL)
	}
}

func TestForDialectUnknown(t *testing.T) {
	_, err := ForDialect("oracle")
	var gErr *GenerationError
	if !errors.As(err, &gErr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
}

