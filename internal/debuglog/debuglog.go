// Package debuglog provides the per-query decision trail. A Log is
// threaded explicitly through the pipeline stages so that concurrent
// queries never interleave entries; it records decisions but never
// influences control flow.
package debuglog

import "time"

// Phase identifies the pipeline stage that produced an entry.
type Phase string

const (
	PhaseValidation     Phase = "validation"
	PhaseAccessControl  Phase = "access-control"
	PhaseRLS            Phase = "rls"
	PhasePlanning       Phase = "planning"
	PhaseNameResolution Phase = "name-resolution"
	PhaseSQLGeneration  Phase = "sql-generation"
	PhaseCache          Phase = "cache"
	PhaseExecution      Phase = "execution"
)

// Entry is one structured decision record.
type Entry struct {
	Time    time.Time              `json:"time"`
	Phase   Phase                  `json:"phase"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Log is an append-only sequence of entries. The zero value is ready to
// use. A Log is owned by a single query and is not safe for concurrent
// appends.
type Log struct {
	entries []Entry
	now     func() time.Time
}

// New returns an empty log.
func New() *Log {
	return &Log{now: time.Now}
}

// NewWithClock returns a log using the given clock, for deterministic
// timestamps in tests.
func NewWithClock(now func() time.Time) *Log {
	return &Log{now: now}
}

// Append records one entry. Details may be nil.
func (l *Log) Append(phase Phase, message string, details map[string]interface{}) {
	clock := l.now
	if clock == nil {
		clock = time.Now
	}
	l.entries = append(l.entries, Entry{
		Time:    clock(),
		Phase:   phase,
		Message: message,
		Details: details,
	})
}

// Entries returns the accumulated entries in append order.
func (l *Log) Entries() []Entry {
	return l.entries
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}
