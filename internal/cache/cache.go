// Package cache defines the external cache collaborator consumed by the
// cache strategy, plus key construction from cached-table key patterns.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/fedsql/fedsql/internal/metadata"
	"github.com/fedsql/fedsql/internal/rls"
)

// Provider is the external cache lookup interface. Absent keys are simply
// missing from the returned map; only transport failures are errors.
type Provider interface {
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// BuildKey renders one cache key from the table's key pattern. The {id}
// placeholder takes the row id; any other placeholder resolves from the
// execution context values. A placeholder missing from the context is a
// *rls.MissingContextError, like a mandatory filter without its value.
func BuildKey(meta *metadata.CachedTableMeta, id interface{}, ctxValues map[string]interface{}) (string, error) {
	var missing string
	key := placeholderPattern.ReplaceAllStringFunc(meta.KeyPattern, func(match string) string {
		name := match[1 : len(match)-1]
		if name == "id" {
			return fmt.Sprintf("%v", id)
		}
		if v, ok := ctxValues[name]; ok {
			return fmt.Sprintf("%v", v)
		}
		if missing == "" {
			missing = name
		}
		return match
	})
	if missing != "" {
		return "", &rls.MissingContextError{Table: meta.TableID, ContextKey: missing}
	}
	return key, nil
}

// DecodeRow decodes one cached value into a row.
func DecodeRow(data []byte) (map[string]interface{}, error) {
	var row map[string]interface{}
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("error decoding cached row: %v", err)
	}
	return row, nil
}

// EncodeRow encodes a row for storage. Exposed for cache warmers and
// tests; the query pipeline itself never writes.
func EncodeRow(row map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("error encoding row for cache: %v", err)
	}
	return data, nil
}

// Memory is an in-process Provider used in tests and single-node setups.
type Memory struct {
	values map[string][]byte
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Set stores one encoded row.
func (m *Memory) Set(key string, value []byte) {
	m.values[key] = value
}

// SetRow encodes and stores one row.
func (m *Memory) SetRow(key string, row map[string]interface{}) error {
	data, err := EncodeRow(row)
	if err != nil {
		return err
	}
	m.Set(key, data)
	return nil
}

// GetMany returns the present subset of keys.
func (m *Memory) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, key := range keys {
		if v, ok := m.values[key]; ok {
			out[key] = v
		}
	}
	return out, nil
}
