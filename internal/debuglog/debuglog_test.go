package debuglog

import (
	"testing"
	"time"
)

func TestAppendOrder(t *testing.T) {
	log := New()
	log.Append(PhaseValidation, "query validated", nil)
	log.Append(PhasePlanning, "direct strategy selected", map[string]interface{}{"database": "pg-main"})

	if log.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", log.Len())
	}
	entries := log.Entries()
	if entries[0].Phase != PhaseValidation || entries[1].Phase != PhasePlanning {
		t.Errorf("entries out of order: %v", entries)
	}
	if entries[1].Details["database"] != "pg-main" {
		t.Errorf("details not carried: %v", entries[1].Details)
	}
}

func TestZeroValueUsable(t *testing.T) {
	var log Log
	log.Append(PhaseCache, "cache lookup complete", nil)
	if log.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", log.Len())
	}
	if log.Entries()[0].Time.IsZero() {
		t.Error("entries must be timestamped")
	}
}

func TestDeterministicClock(t *testing.T) {
	at := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	log := NewWithClock(func() time.Time { return at })
	log.Append(PhaseExecution, "backend execution complete", nil)
	if !log.Entries()[0].Time.Equal(at) {
		t.Errorf("got %v, want %v", log.Entries()[0].Time, at)
	}
}
