// Package planner selects the cheapest correct execution strategy for an
// RLS-adjusted query: cache, single-database direct, materialized replica,
// or trino cross-database federation.
package planner

import (
	"sort"

	"github.com/fedsql/fedsql/internal/metadata"
)

// CopyKind distinguishes the original table from a CDC-replicated copy.
type CopyKind string

const (
	CopyOriginal     CopyKind = "original"
	CopyMaterialized CopyKind = "materialized"
)

// Location is one physical copy of a table.
type Location struct {
	DatabaseID string
	Kind       CopyKind
	Lag        metadata.SyncLag // realtime for originals
	Sync       *metadata.ExternalSync
}

// Connectivity is the derived view of which database holds which table,
// as an original or as a replica with its lag. It is computed once from
// the registry and shared read-only.
type Connectivity struct {
	reg  *metadata.Registry
	locs map[string][]Location // table id -> locations, original first
}

// NewConnectivity builds the location index for every table.
func NewConnectivity(reg *metadata.Registry) *Connectivity {
	c := &Connectivity{reg: reg, locs: make(map[string][]Location)}
	for id, tbl := range reg.Tables() {
		locs := []Location{{DatabaseID: tbl.DatabaseID, Kind: CopyOriginal, Lag: metadata.LagRealtime}}
		syncs := reg.SyncsOf(id)
		for i := range syncs {
			sync := &syncs[i]
			locs = append(locs, Location{
				DatabaseID: sync.TargetDatabase,
				Kind:       CopyMaterialized,
				Lag:        sync.EstimatedLag,
				Sync:       sync,
			})
		}
		sort.SliceStable(locs[1:], func(a, b int) bool {
			return locs[1+a].DatabaseID < locs[1+b].DatabaseID
		})
		c.locs[id] = locs
	}
	return c
}

// Locations returns every copy of a table, original first, replicas in
// database-id order.
func (c *Connectivity) Locations(tableID string) []Location {
	return c.locs[tableID]
}

// At returns the best copy of a table in one database: the original if
// present there, else the replica.
func (c *Connectivity) At(tableID, databaseID string) (Location, bool) {
	var replica Location
	var found bool
	for _, loc := range c.locs[tableID] {
		if loc.DatabaseID != databaseID {
			continue
		}
		if loc.Kind == CopyOriginal {
			return loc, true
		}
		replica, found = loc, true
	}
	return replica, found
}

// Databases returns the sorted union of database ids holding any copy of
// any of the given tables.
func (c *Connectivity) Databases(tableIDs []string) []string {
	set := make(map[string]bool)
	for _, id := range tableIDs {
		for _, loc := range c.locs[id] {
			set[loc.DatabaseID] = true
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
