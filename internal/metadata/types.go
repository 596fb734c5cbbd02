package metadata

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fedsql/fedsql/pkg/dbcapabilities"
)

// ColumnType is the logical type of a column as exposed through the API
// layer, independent of how any particular backend stores it.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInt       ColumnType = "int"
	TypeFloat     ColumnType = "float"
	TypeDecimal   ColumnType = "decimal"
	TypeBool      ColumnType = "bool"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
	TypeUUID      ColumnType = "uuid"
	TypeJSON      ColumnType = "json"
)

// IsNumeric reports whether the type supports ordering comparisons.
func (t ColumnType) IsNumeric() bool {
	switch t {
	case TypeInt, TypeFloat, TypeDecimal, TypeDate, TypeTimestamp:
		return true
	}
	return false
}

// Cardinality describes the shape of a foreign-key relation.
type Cardinality string

const (
	OneToOne  Cardinality = "one_to_one"
	ManyToOne Cardinality = "many_to_one"
	OneToMany Cardinality = "one_to_many"
)

// SyncLag is the estimated replication lag class of an external sync,
// ordered by freshness: realtime < seconds < minutes < hours.
type SyncLag string

const (
	LagRealtime SyncLag = "realtime"
	LagSeconds  SyncLag = "seconds"
	LagMinutes  SyncLag = "minutes"
	LagHours    SyncLag = "hours"
)

var lagRank = map[SyncLag]int{
	LagRealtime: 0,
	LagSeconds:  1,
	LagMinutes:  2,
	LagHours:    3,
}

// Valid reports whether the lag class is one of the known values.
func (l SyncLag) Valid() bool {
	_, ok := lagRank[l]
	return ok
}

// Within reports whether a replica with lag l satisfies the freshness
// tolerance f. A realtime replica satisfies any tolerance; an hours-lag
// replica only satisfies an hours tolerance.
func (l SyncLag) Within(f SyncLag) bool {
	return lagRank[l] <= lagRank[f]
}

// Database represents one physical backend.
type Database struct {
	ID           string                  `json:"id" yaml:"id"`
	Engine       dbcapabilities.EngineID `json:"engine" yaml:"engine"`
	TrinoCatalog string                  `json:"trino_catalog,omitempty" yaml:"trino_catalog,omitempty"`
}

// Column is one logical field of a table.
type Column struct {
	APIName      string     `json:"api_name" yaml:"api_name"`
	PhysicalName string     `json:"physical_name" yaml:"physical_name"`
	Type         ColumnType `json:"type" yaml:"type"`
	Nullable     bool       `json:"nullable" yaml:"nullable"`
	Indexed      bool       `json:"indexed,omitempty" yaml:"indexed,omitempty"`
}

// Relation is a foreign-key edge from a column of the owning table to a
// column of another table.
type Relation struct {
	SourceColumn string      `json:"source_column" yaml:"source_column"`
	TargetTable  string      `json:"target_table" yaml:"target_table"`
	TargetColumn string      `json:"target_column" yaml:"target_column"`
	Cardinality  Cardinality `json:"cardinality" yaml:"cardinality"`
}

// Table is a logical table owned by exactly one database.
type Table struct {
	ID           string     `json:"id" yaml:"id"`
	APIName      string     `json:"api_name" yaml:"api_name"`
	DatabaseID   string     `json:"database_id" yaml:"database_id"`
	PhysicalName string     `json:"physical_name" yaml:"physical_name"`
	Columns      []Column   `json:"columns" yaml:"columns"`
	PrimaryKey   []string   `json:"primary_key" yaml:"primary_key"`
	Relations    []Relation `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// Column returns the column with the given apiName, or nil.
func (t *Table) Column(apiName string) *Column {
	for i := range t.Columns {
		if t.Columns[i].APIName == apiName {
			return &t.Columns[i]
		}
	}
	return nil
}

// ExternalSync is a CDC-replicated copy of a table in another database.
type ExternalSync struct {
	SourceTable        string  `json:"source_table" yaml:"source_table"`
	TargetDatabase     string  `json:"target_database" yaml:"target_database"`
	TargetPhysicalName string  `json:"target_physical_name" yaml:"target_physical_name"`
	Method             string  `json:"method" yaml:"method"`
	EstimatedLag       SyncLag `json:"estimated_lag" yaml:"estimated_lag"`
}

// CachedTableMeta marks a table as cacheable and describes its key layout.
type CachedTableMeta struct {
	TableID    string        `json:"table_id" yaml:"table_id"`
	KeyPattern string        `json:"key_pattern" yaml:"key_pattern"`
	TTL        time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Columns    []string      `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// RLSFilter is one mandatory predicate appended for a role. The value is
// resolved from the execution context at query time.
type RLSFilter struct {
	Column     string `json:"column" yaml:"column"`
	Operator   string `json:"operator" yaml:"operator"`
	ContextKey string `json:"context_key" yaml:"context_key"`
}

// ColumnSet is either the literal "all" or an explicit list of apiNames.
type ColumnSet struct {
	All     bool
	Columns []string
}

// UnmarshalYAML accepts either the scalar "all" or a sequence of names.
func (c *ColumnSet) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value != "all" {
			return fmt.Errorf("allowed_columns must be \"all\" or a list, got %q", value.Value)
		}
		c.All = true
		c.Columns = nil
		return nil
	}
	c.All = false
	return value.Decode(&c.Columns)
}

// Contains reports whether the set permits the given column.
func (c ColumnSet) Contains(apiName string) bool {
	if c.All {
		return true
	}
	for _, col := range c.Columns {
		if col == apiName {
			return true
		}
	}
	return false
}

// TableRoleAccess is one role's rule for one table.
type TableRoleAccess struct {
	TableID        string      `json:"table_id" yaml:"table_id"`
	AllowedColumns ColumnSet   `json:"allowed_columns" yaml:"allowed_columns"`
	Filters        []RLSFilter `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// Role is an access profile holding per-table rules.
type Role struct {
	ID     string            `json:"id" yaml:"id"`
	Tables []TableRoleAccess `json:"tables" yaml:"tables"`
}

// TrinoConfig controls whether cross-database plans may target trino.
type TrinoConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host,omitempty" yaml:"host,omitempty"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
}

// MultiDbConfig is the full metadata document produced by a MetadataLoader.
type MultiDbConfig struct {
	Databases []Database        `json:"databases" yaml:"databases"`
	Tables    []Table           `json:"tables" yaml:"tables"`
	Syncs     []ExternalSync    `json:"syncs,omitempty" yaml:"syncs,omitempty"`
	Caches    []CachedTableMeta `json:"caches,omitempty" yaml:"caches,omitempty"`
	Roles     []Role            `json:"roles,omitempty" yaml:"roles,omitempty"`
	Trino     TrinoConfig       `json:"trino,omitempty" yaml:"trino,omitempty"`
}
