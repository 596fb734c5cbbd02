// Package sqlgen turns a name-resolved plan into dialect-correct SQL text
// with an ordered positional parameter list.
package sqlgen

import (
	"fmt"
	"strings"
)

// Dialect is the fixed capability set a backend engine must provide. One
// implementation per engine; the generator never inspects engine names.
type Dialect interface {
	// Name is the dialect tag carried on results.
	Name() string
	// QuoteIdent quotes one identifier.
	QuoteIdent(ident string) string
	// Placeholder renders the n-th parameter placeholder, 1-based.
	Placeholder(n int) string
	// BoolLiteral renders a boolean literal.
	BoolLiteral(v bool) string
	// ArrayMembership renders an array-membership test over the given
	// placeholders.
	ArrayMembership(expr string, placeholders []string) string
	// DateTrunc renders truncation of expr to the given granularity.
	DateTrunc(granularity, expr string) string
	// QualifyTable renders a table reference, catalog-qualified when the
	// engine requires it. Catalog is empty outside cross-db plans.
	QualifyTable(catalog, table string) string
}

// GenerationError reports that a dialect cannot render a required
// construct. It indicates an internal inconsistency, not caller error.
type GenerationError struct {
	Dialect   string
	Construct string
	Detail    string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("dialect %q cannot render %s: %s", e.Dialect, e.Construct, e.Detail)
}

// ForDialect returns the dialect implementation for a tag.
func ForDialect(tag string) (Dialect, error) {
	switch tag {
	case "postgres":
		return PostgresDialect{}, nil
	case "clickhouse":
		return ClickHouseDialect{}, nil
	case "trino":
		return TrinoDialect{}, nil
	}
	return nil, &GenerationError{Dialect: tag, Construct: "dialect", Detail: "no implementation registered"}
}

// PostgresDialect renders PostgreSQL syntax with $n placeholders.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (PostgresDialect) BoolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (PostgresDialect) ArrayMembership(expr string, placeholders []string) string {
	return fmt.Sprintf("%s IN (%s)", expr, strings.Join(placeholders, ", "))
}

func (PostgresDialect) DateTrunc(granularity, expr string) string {
	return fmt.Sprintf("date_trunc('%s', %s)", granularity, expr)
}

func (PostgresDialect) QualifyTable(catalog, table string) string {
	return PostgresDialect{}.QuoteIdent(table)
}

// ClickHouseDialect renders ClickHouse syntax with ? placeholders and
// backtick quoting.
type ClickHouseDialect struct{}

func (ClickHouseDialect) Name() string { return "clickhouse" }

func (ClickHouseDialect) QuoteIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (ClickHouseDialect) Placeholder(n int) string { return "?" }

func (ClickHouseDialect) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (ClickHouseDialect) ArrayMembership(expr string, placeholders []string) string {
	return fmt.Sprintf("%s IN (%s)", expr, strings.Join(placeholders, ", "))
}

func (ClickHouseDialect) DateTrunc(granularity, expr string) string {
	return fmt.Sprintf("date_trunc('%s', %s)", granularity, expr)
}

func (ClickHouseDialect) QualifyTable(catalog, table string) string {
	return ClickHouseDialect{}.QuoteIdent(table)
}

// TrinoDialect renders Trino syntax: ? placeholders and catalog-qualified
// table references.
type TrinoDialect struct{}

func (TrinoDialect) Name() string { return "trino" }

func (TrinoDialect) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (TrinoDialect) Placeholder(n int) string { return "?" }

func (TrinoDialect) BoolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (TrinoDialect) ArrayMembership(expr string, placeholders []string) string {
	return fmt.Sprintf("%s IN (%s)", expr, strings.Join(placeholders, ", "))
}

func (TrinoDialect) DateTrunc(granularity, expr string) string {
	return fmt.Sprintf("date_trunc('%s', %s)", granularity, expr)
}

func (TrinoDialect) QualifyTable(catalog, table string) string {
	d := TrinoDialect{}
	if catalog == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(catalog) + "." + d.QuoteIdent(table)
}
