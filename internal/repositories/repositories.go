// package repositories provides persistence layer implementations for all model types.
//
// Queries are written once with "?" placeholders and rebound for the active [Dialect].
package repositories

import (
	"strconv"
	"strings"

	"github.com/desertthunder/spotlink/internal/shared"
)

// Dialect selects placeholder syntax for a SQL driver.
type Dialect int

const (
	// DialectSQLite uses "?" placeholders.
	DialectSQLite Dialect = iota
	// DialectPostgres uses "$n" placeholders.
	DialectPostgres
)

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) Dialect {
	if driver == shared.DriverPostgres {
		return DialectPostgres
	}
	return DialectSQLite
}

// Rebind rewrites "?" placeholders for the dialect. Question marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	quoted := false
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
			b.WriteRune(r)
		case r == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
