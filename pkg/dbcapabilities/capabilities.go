// Package dbcapabilities describes what each supported backend engine can
// do in a way the planner and SQL generator can consume uniformly.
package dbcapabilities

import "fmt"

// EngineID is the canonical identifier for a backend engine.
type EngineID string

const (
	PostgreSQL EngineID = "postgres"
	ClickHouse EngineID = "clickhouse"
	Iceberg    EngineID = "iceberg"
	Trino      EngineID = "trino"
)

// Capability describes one engine.
type Capability struct {
	// Human-friendly product name, e.g. "PostgreSQL".
	Name string `json:"name"`

	// DialectTag selects the SQL dialect used when generating text for
	// this engine.
	DialectTag string `json:"dialect_tag"`

	// NativeJoins reports whether the engine executes multi-table joins
	// itself. Iceberg tables are only reachable through trino.
	NativeJoins bool `json:"native_joins"`

	// CatalogQualified reports whether table references must carry a
	// catalog prefix (trino only).
	CatalogQualified bool `json:"catalog_qualified"`

	// DirectlyExecutable reports whether the system can run generated SQL
	// against the engine without going through a federation layer.
	DirectlyExecutable bool `json:"directly_executable"`

	// DefaultPort is the conventional port for client connections.
	DefaultPort int `json:"default_port"`
}

var capabilities = map[EngineID]Capability{
	PostgreSQL: {
		Name:               "PostgreSQL",
		DialectTag:         "postgres",
		NativeJoins:        true,
		DirectlyExecutable: true,
		DefaultPort:        5432,
	},
	ClickHouse: {
		Name:               "ClickHouse",
		DialectTag:         "clickhouse",
		NativeJoins:        true,
		DirectlyExecutable: true,
		DefaultPort:        9000,
	},
	Iceberg: {
		Name:               "Apache Iceberg",
		DialectTag:         "trino",
		NativeJoins:        false,
		DirectlyExecutable: false,
		DefaultPort:        0,
	},
	Trino: {
		Name:               "Trino",
		DialectTag:         "trino",
		NativeJoins:        true,
		CatalogQualified:   true,
		DirectlyExecutable: true,
		DefaultPort:        8080,
	},
}

// Get returns the capability record for an engine.
func Get(id EngineID) (Capability, error) {
	cap, ok := capabilities[id]
	if !ok {
		return Capability{}, fmt.Errorf("unknown engine: %s", id)
	}
	return cap, nil
}

// Known reports whether the engine id is supported.
func Known(id EngineID) bool {
	_, ok := capabilities[id]
	return ok
}

// All returns a copy of the full capability map.
func All() map[EngineID]Capability {
	out := make(map[EngineID]Capability, len(capabilities))
	for k, v := range capabilities {
		out[k] = v
	}
	return out
}
