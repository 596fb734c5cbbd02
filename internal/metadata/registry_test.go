package metadata

import (
	"errors"
	"testing"

	"github.com/fedsql/fedsql/pkg/dbcapabilities"
)

func validConfig() *MultiDbConfig {
	return &MultiDbConfig{
		Databases: []Database{
			{ID: "pg-main", Engine: dbcapabilities.PostgreSQL, TrinoCatalog: "pg_main"},
			{ID: "ch-analytics", Engine: dbcapabilities.ClickHouse, TrinoCatalog: "ch_analytics"},
		},
		Tables: []Table{
			{
				ID: "tbl-users", APIName: "users", DatabaseID: "pg-main", PhysicalName: "tbl_users",
				Columns: []Column{
					{APIName: "id", PhysicalName: "usr_id", Type: TypeInt},
					{APIName: "email", PhysicalName: "usr_email", Type: TypeString},
				},
				PrimaryKey: []string{"id"},
			},
			{
				ID: "tbl-orders", APIName: "orders", DatabaseID: "pg-main", PhysicalName: "tbl_orders",
				Columns: []Column{
					{APIName: "id", PhysicalName: "ord_id", Type: TypeInt},
					{APIName: "userId", PhysicalName: "user_id", Type: TypeInt},
				},
				PrimaryKey: []string{"id"},
				Relations: []Relation{
					{SourceColumn: "userId", TargetTable: "tbl-users", TargetColumn: "id", Cardinality: ManyToOne},
				},
			},
		},
		Syncs: []ExternalSync{
			{SourceTable: "tbl-orders", TargetDatabase: "ch-analytics", TargetPhysicalName: "tbl_orders_replica", Method: "debezium", EstimatedLag: LagSeconds},
		},
		Caches: []CachedTableMeta{
			{TableID: "tbl-users", KeyPattern: "users:{id}"},
		},
		Roles: []Role{
			{ID: "admin", Tables: []TableRoleAccess{
				{TableID: "tbl-users", AllowedColumns: ColumnSet{All: true}},
				{TableID: "tbl-orders", AllowedColumns: ColumnSet{All: true}},
			}},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(validConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tbl, ok := reg.LookupTable("orders")
	if !ok {
		t.Fatal("expected orders table to resolve")
	}
	if tbl.PhysicalName != "tbl_orders" {
		t.Errorf("expected physical name tbl_orders, got %s", tbl.PhysicalName)
	}
	if _, ok := reg.LookupColumn(tbl, "userId"); !ok {
		t.Error("expected userId column to resolve")
	}
	if _, ok := reg.LookupColumn(tbl, "missing"); ok {
		t.Error("expected missing column not to resolve")
	}
	if syncs := reg.SyncsOf("tbl-orders"); len(syncs) != 1 {
		t.Errorf("expected 1 sync for orders, got %d", len(syncs))
	}
	if _, ok := reg.CacheOf("tbl-users"); !ok {
		t.Error("expected cache metadata for users")
	}
	if _, ok := reg.RoleAccess("admin", "tbl-users"); !ok {
		t.Error("expected admin rule for users")
	}
	if _, ok := reg.RoleAccess("ghost", "tbl-users"); ok {
		t.Error("expected no rule for unknown role")
	}
}

func TestNewRegistryIntegrity(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MultiDbConfig)
	}{
		{
			name: "table references unknown database",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Tables[0].DatabaseID = "nope"
			},
		},
		{
			name: "duplicate table api name",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Tables[1].APIName = "users"
			},
		},
		{
			name: "primary key outside columns",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Tables[0].PrimaryKey = []string{"ghost"}
			},
		},
		{
			name: "relation targets unknown table",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Tables[1].Relations[0].TargetTable = "tbl-ghost"
			},
		},
		{
			name: "relation targets unknown column",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Tables[1].Relations[0].TargetColumn = "ghost"
			},
		},
		{
			name: "sync source missing",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Syncs[0].SourceTable = "tbl-ghost"
			},
		},
		{
			name: "sync target database missing",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Syncs[0].TargetDatabase = "nope"
			},
		},
		{
			name: "duplicate sync pair",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Syncs = append(cfg.Syncs, cfg.Syncs[0])
			},
		},
		{
			name: "cache references unknown table",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Caches[0].TableID = "tbl-ghost"
			},
		},
		{
			name: "role references unknown table",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Roles[0].Tables[0].TableID = "tbl-ghost"
			},
		},
		{
			name: "role filter references unknown column",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Roles[0].Tables[0].Filters = []RLSFilter{{Column: "ghost", Operator: "=", ContextKey: "k"}}
			},
		},
		{
			name: "unknown engine",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Databases[0].Engine = "oracle"
			},
		},
		{
			name: "unknown sync lag",
			mutate: func(cfg *MultiDbConfig) {
				cfg.Syncs[0].EstimatedLag = "eventual"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			_, err := NewRegistry(cfg)
			if err == nil {
				t.Fatal("expected a configuration error")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if len(cfgErr.Problems) == 0 {
				t.Error("expected at least one problem to be reported")
			}
		})
	}
}

func TestSyncLagWithin(t *testing.T) {
	tests := []struct {
		lag       SyncLag
		tolerance SyncLag
		want      bool
	}{
		{LagRealtime, LagRealtime, true},
		{LagRealtime, LagHours, true},
		{LagSeconds, LagRealtime, false},
		{LagSeconds, LagSeconds, true},
		{LagSeconds, LagHours, true},
		{LagMinutes, LagSeconds, false},
		{LagHours, LagHours, true},
		{LagHours, LagMinutes, false},
	}
	for _, tt := range tests {
		if got := tt.lag.Within(tt.tolerance); got != tt.want {
			t.Errorf("lag %s within %s: got %v, want %v", tt.lag, tt.tolerance, got, tt.want)
		}
	}
}
