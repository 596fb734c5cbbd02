package rls

import (
	"errors"
	"testing"

	"github.com/fedsql/fedsql/internal/debuglog"
	"github.com/fedsql/fedsql/internal/metadata"
	"github.com/fedsql/fedsql/internal/query"
	"github.com/fedsql/fedsql/pkg/dbcapabilities"
)

func testRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	cfg := &metadata.MultiDbConfig{
		Databases: []metadata.Database{
			{ID: "pg-main", Engine: dbcapabilities.PostgreSQL},
		},
		Tables: []metadata.Table{
			{
				ID: "tbl-users", APIName: "users", DatabaseID: "pg-main", PhysicalName: "tbl_users",
				Columns: []metadata.Column{
					{APIName: "id", PhysicalName: "usr_id", Type: metadata.TypeInt},
					{APIName: "email", PhysicalName: "usr_email", Type: metadata.TypeString},
					{APIName: "passwordHash", PhysicalName: "password_hash", Type: metadata.TypeString},
				},
				PrimaryKey: []string{"id"},
			},
			{
				ID: "tbl-orders", APIName: "orders", DatabaseID: "pg-main", PhysicalName: "tbl_orders",
				Columns: []metadata.Column{
					{APIName: "id", PhysicalName: "ord_id", Type: metadata.TypeInt},
					{APIName: "userId", PhysicalName: "user_id", Type: metadata.TypeInt},
					{APIName: "amount", PhysicalName: "order_amount", Type: metadata.TypeDecimal},
					{APIName: "tenantId", PhysicalName: "tenant_id", Type: metadata.TypeString},
				},
				PrimaryKey: []string{"id"},
				Relations: []metadata.Relation{
					{SourceColumn: "userId", TargetTable: "tbl-users", TargetColumn: "id", Cardinality: metadata.ManyToOne},
				},
			},
		},
		Roles: []metadata.Role{
			{ID: "admin", Tables: []metadata.TableRoleAccess{
				{TableID: "tbl-users", AllowedColumns: metadata.ColumnSet{All: true}},
				{TableID: "tbl-orders", AllowedColumns: metadata.ColumnSet{All: true}},
			}},
			{ID: "tenant-user", Tables: []metadata.TableRoleAccess{
				{TableID: "tbl-users", AllowedColumns: metadata.ColumnSet{Columns: []string{"id", "email"}}},
				{
					TableID:        "tbl-orders",
					AllowedColumns: metadata.ColumnSet{Columns: []string{"id", "amount", "tenantId"}},
					Filters: []metadata.RLSFilter{
						{Column: "tenantId", Operator: "=", ContextKey: "tenantId"},
					},
				},
			}},
		},
	}
	reg, err := metadata.NewRegistry(cfg)
	if err != nil {
		t.Fatalf("fixture registry: %v", err)
	}
	return reg
}

func validate(t *testing.T, reg *metadata.Registry, def *query.Definition) *query.Scope {
	t.Helper()
	scope, err := query.NewValidator(reg).Validate(def, debuglog.New())
	if err != nil {
		t.Fatalf("fixture query: %v", err)
	}
	return scope
}

func TestInjectTrimsToRequestedColumns(t *testing.T) {
	reg := testRegistry(t)
	scope := validate(t, reg, &query.Definition{From: "orders", Columns: []string{"id", "amount"}})
	adj, err := NewInjector(reg).Inject(scope, &query.Context{
		RoleID: "tenant-user",
		Values: map[string]interface{}{"tenantId": "t-1"},
	}, debuglog.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := adj.Tables[0].Columns
	if len(got) != 2 || got[0] != "id" || got[1] != "amount" {
		t.Errorf("expected requested columns [id amount], got %v", got)
	}
}

func TestInjectDefaultsToAllowedSet(t *testing.T) {
	reg := testRegistry(t)
	scope := validate(t, reg, &query.Definition{From: "orders"})
	adj, err := NewInjector(reg).Inject(scope, &query.Context{
		RoleID: "tenant-user",
		Values: map[string]interface{}{"tenantId": "t-1"},
	}, debuglog.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := adj.Tables[0].Columns
	want := []string{"id", "amount", "tenantId"}
	if len(got) != len(want) {
		t.Fatalf("expected allowed set %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestInjectDeniesColumnOutsideAllowedSet(t *testing.T) {
	reg := testRegistry(t)
	scope := validate(t, reg, &query.Definition{From: "orders", Columns: []string{"id", "userId"}})
	_, err := NewInjector(reg).Inject(scope, &query.Context{
		RoleID: "tenant-user",
		Values: map[string]interface{}{"tenantId": "t-1"},
	}, debuglog.New())
	var denied *AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *AccessDeniedError, got %v", err)
	}
	if denied.Column != "userId" {
		t.Errorf("expected denial to name userId, got %q", denied.Column)
	}
}

func TestInjectDeniesTableWithoutRule(t *testing.T) {
	reg := testRegistry(t)
	scope := validate(t, reg, &query.Definition{From: "users"})
	_, err := NewInjector(reg).Inject(scope, &query.Context{RoleID: "ghost"}, debuglog.New())
	var denied *AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *AccessDeniedError, got %v", err)
	}
	if denied.Table != "users" || denied.Column != "" {
		t.Errorf("expected whole-table denial for users, got %+v", denied)
	}
}

func TestInjectAppendsMandatoryFilters(t *testing.T) {
	reg := testRegistry(t)
	scope := validate(t, reg, &query.Definition{
		From:    "orders",
		Filters: []query.Filter{{Column: "amount", Operator: query.OpGt, Value: 5}},
	})
	adj, err := NewInjector(reg).Inject(scope, &query.Context{
		RoleID: "tenant-user",
		Values: map[string]interface{}{"tenantId": "t-42"},
	}, debuglog.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	filters := adj.Tables[0].Filters
	if len(filters) != 2 {
		t.Fatalf("expected user filter plus mandatory filter, got %d", len(filters))
	}
	if filters[0].Column != "amount" {
		t.Errorf("expected user filter first, got %s", filters[0].Column)
	}
	mandatory := filters[1]
	if mandatory.Column != "tenantId" || mandatory.Operator != query.OpEq || mandatory.Value != "t-42" {
		t.Errorf("unexpected mandatory filter: %+v", mandatory)
	}
}

func TestInjectMissingContext(t *testing.T) {
	reg := testRegistry(t)
	scope := validate(t, reg, &query.Definition{From: "orders"})
	_, err := NewInjector(reg).Inject(scope, &query.Context{
		RoleID: "tenant-user",
		Values: map[string]interface{}{},
	}, debuglog.New())
	var missing *MissingContextError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingContextError, got %v", err)
	}
	if missing.ContextKey != "tenantId" {
		t.Errorf("expected the error to name tenantId, got %q", missing.ContextKey)
	}
}

func TestInjectCoversJoinedTables(t *testing.T) {
	reg := testRegistry(t)
	scope := validate(t, reg, &query.Definition{
		From:    "orders",
		Columns: []string{"id", "users.email"},
		Joins:   []query.Join{{Table: "users"}},
	})
	adj, err := NewInjector(reg).Inject(scope, &query.Context{
		RoleID: "tenant-user",
		Values: map[string]interface{}{"tenantId": "t-1"},
	}, debuglog.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(adj.Tables) != 2 {
		t.Fatalf("expected plans for both tables, got %d", len(adj.Tables))
	}
	users := adj.TableFor("tbl-users")
	if users == nil || len(users.Columns) != 1 || users.Columns[0] != "email" {
		t.Errorf("expected users plan with requested email column, got %+v", users)
	}
}
