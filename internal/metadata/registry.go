package metadata

import (
	"fmt"
	"strings"

	"github.com/fedsql/fedsql/pkg/dbcapabilities"
)

// ConfigError reports invalid metadata detected while building the
// registry. It is fatal: a process must not serve queries over a registry
// that failed construction.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid metadata configuration: %s", strings.Join(e.Problems, "; "))
}

// Registry is an immutable, indexed view of the full metadata set. It is
// built once at startup and may be read concurrently without locking.
type Registry struct {
	databases map[string]*Database
	tables    map[string]*Table // by id
	byAPIName map[string]*Table
	syncs     map[string][]ExternalSync // by source table id
	caches    map[string]*CachedTableMeta
	access    map[string]map[string]*TableRoleAccess // role id -> table id
	trino     TrinoConfig
}

// NewRegistry indexes a MultiDbConfig and validates its referential
// integrity. The check runs once here, not per query.
func NewRegistry(cfg *MultiDbConfig) (*Registry, error) {
	r := &Registry{
		databases: make(map[string]*Database),
		tables:    make(map[string]*Table),
		byAPIName: make(map[string]*Table),
		syncs:     make(map[string][]ExternalSync),
		caches:    make(map[string]*CachedTableMeta),
		access:    make(map[string]map[string]*TableRoleAccess),
		trino:     cfg.Trino,
	}

	var problems []string
	addProblem := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for i := range cfg.Databases {
		db := &cfg.Databases[i]
		if !dbcapabilities.Known(db.Engine) {
			addProblem("database %q has unknown engine %q", db.ID, db.Engine)
		}
		if _, dup := r.databases[db.ID]; dup {
			addProblem("duplicate database id %q", db.ID)
			continue
		}
		r.databases[db.ID] = db
	}

	for i := range cfg.Tables {
		tbl := &cfg.Tables[i]
		if _, dup := r.tables[tbl.ID]; dup {
			addProblem("duplicate table id %q", tbl.ID)
			continue
		}
		if _, dup := r.byAPIName[tbl.APIName]; dup {
			addProblem("duplicate table api name %q", tbl.APIName)
			continue
		}
		if _, ok := r.databases[tbl.DatabaseID]; !ok {
			addProblem("table %q references unknown database %q", tbl.ID, tbl.DatabaseID)
		}
		seen := make(map[string]bool, len(tbl.Columns))
		for _, col := range tbl.Columns {
			if seen[col.APIName] {
				addProblem("table %q has duplicate column %q", tbl.ID, col.APIName)
			}
			seen[col.APIName] = true
		}
		for _, pk := range tbl.PrimaryKey {
			if !seen[pk] {
				addProblem("table %q primary key column %q is not a column of the table", tbl.ID, pk)
			}
		}
		r.tables[tbl.ID] = tbl
		r.byAPIName[tbl.APIName] = tbl
	}

	// Relations can only be checked once every table is indexed.
	for _, tbl := range r.tables {
		for _, rel := range tbl.Relations {
			if tbl.Column(rel.SourceColumn) == nil {
				addProblem("table %q relation source column %q does not exist", tbl.ID, rel.SourceColumn)
			}
			target, ok := r.tables[rel.TargetTable]
			if !ok {
				addProblem("table %q relation targets unknown table %q", tbl.ID, rel.TargetTable)
				continue
			}
			if target.Column(rel.TargetColumn) == nil {
				addProblem("table %q relation targets unknown column %q.%q", tbl.ID, rel.TargetTable, rel.TargetColumn)
			}
		}
	}

	for _, sync := range cfg.Syncs {
		if _, ok := r.tables[sync.SourceTable]; !ok {
			addProblem("sync references unknown source table %q", sync.SourceTable)
			continue
		}
		if _, ok := r.databases[sync.TargetDatabase]; !ok {
			addProblem("sync for table %q references unknown target database %q", sync.SourceTable, sync.TargetDatabase)
			continue
		}
		if !sync.EstimatedLag.Valid() {
			addProblem("sync for table %q has unknown lag class %q", sync.SourceTable, sync.EstimatedLag)
			continue
		}
		for _, existing := range r.syncs[sync.SourceTable] {
			if existing.TargetDatabase == sync.TargetDatabase {
				addProblem("duplicate sync for table %q into database %q", sync.SourceTable, sync.TargetDatabase)
			}
		}
		r.syncs[sync.SourceTable] = append(r.syncs[sync.SourceTable], sync)
	}

	for i := range cfg.Caches {
		c := &cfg.Caches[i]
		if _, ok := r.tables[c.TableID]; !ok {
			addProblem("cache entry references unknown table %q", c.TableID)
			continue
		}
		if c.KeyPattern == "" {
			addProblem("cache entry for table %q has an empty key pattern", c.TableID)
			continue
		}
		r.caches[c.TableID] = c
	}

	for _, role := range cfg.Roles {
		if _, dup := r.access[role.ID]; dup {
			addProblem("duplicate role id %q", role.ID)
			continue
		}
		rules := make(map[string]*TableRoleAccess, len(role.Tables))
		for i := range role.Tables {
			rule := &role.Tables[i]
			tbl, ok := r.tables[rule.TableID]
			if !ok {
				addProblem("role %q references unknown table %q", role.ID, rule.TableID)
				continue
			}
			for _, col := range rule.AllowedColumns.Columns {
				if tbl.Column(col) == nil {
					addProblem("role %q allows unknown column %q.%q", role.ID, tbl.APIName, col)
				}
			}
			for _, f := range rule.Filters {
				if tbl.Column(f.Column) == nil {
					addProblem("role %q filter references unknown column %q.%q", role.ID, tbl.APIName, f.Column)
				}
			}
			rules[rule.TableID] = rule
		}
		r.access[role.ID] = rules
	}

	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	return r, nil
}

// LookupTable resolves a table by its apiName.
func (r *Registry) LookupTable(apiName string) (*Table, bool) {
	tbl, ok := r.byAPIName[apiName]
	return tbl, ok
}

// TableByID resolves a table by its id.
func (r *Registry) TableByID(id string) (*Table, bool) {
	tbl, ok := r.tables[id]
	return tbl, ok
}

// Tables returns all tables keyed by id.
func (r *Registry) Tables() map[string]*Table {
	return r.tables
}

// Database resolves a database by id.
func (r *Registry) Database(id string) (*Database, bool) {
	db, ok := r.databases[id]
	return db, ok
}

// Databases returns all databases keyed by id.
func (r *Registry) Databases() map[string]*Database {
	return r.databases
}

// LookupColumn resolves a column on a table by apiName.
func (r *Registry) LookupColumn(tbl *Table, apiName string) (*Column, bool) {
	col := tbl.Column(apiName)
	return col, col != nil
}

// RelationsOf returns the relation edges declared on a table.
func (r *Registry) RelationsOf(tbl *Table) []Relation {
	return tbl.Relations
}

// RoleAccess returns the role's rule for a table, if any.
func (r *Registry) RoleAccess(roleID, tableID string) (*TableRoleAccess, bool) {
	rules, ok := r.access[roleID]
	if !ok {
		return nil, false
	}
	rule, ok := rules[tableID]
	return rule, ok
}

// HasRole reports whether the role id exists at all.
func (r *Registry) HasRole(roleID string) bool {
	_, ok := r.access[roleID]
	return ok
}

// SyncsOf returns all external syncs whose source is the given table.
func (r *Registry) SyncsOf(tableID string) []ExternalSync {
	return r.syncs[tableID]
}

// CacheOf returns the cache metadata for a table, if any.
func (r *Registry) CacheOf(tableID string) (*CachedTableMeta, bool) {
	c, ok := r.caches[tableID]
	return c, ok
}

// Trino returns the federation engine configuration.
func (r *Registry) Trino() TrinoConfig {
	return r.trino
}
