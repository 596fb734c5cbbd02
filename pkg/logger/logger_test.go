package logger

import (
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestRenderFieldsSorted(t *testing.T) {
	out := renderFields(map[string]string{"strategy": "direct", "database": "pg-main", "query_id": "q1"})
	if out != "database=pg-main query_id=q1 strategy=direct" {
		t.Errorf("fields not sorted: %q", out)
	}
	if renderFields(nil) != "" {
		t.Error("nil fields must render empty")
	}
}

func TestRenderFieldsStable(t *testing.T) {
	fields := map[string]string{"a": "1", "b": "2", "c": "3"}
	first := renderFields(fields)
	for i := 0; i < 10; i++ {
		if got := renderFields(fields); got != first {
			t.Fatalf("rendering unstable: %q vs %q", got, first)
		}
	}
	if !strings.HasPrefix(first, "a=1") {
		t.Errorf("unexpected order: %q", first)
	}
}
