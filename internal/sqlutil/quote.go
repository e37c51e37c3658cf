// Package sqlutil provides dialect-aware SQL helpers for the sandbox.
package sqlutil

import (
	"regexp"
	"strings"
)

// Dialect selects quoting and placeholder rules.
type Dialect string

const (
	SQLite Dialect = "sqlite"
	MySQL  Dialect = "mysql"
)

// ParseDialect maps a sandbox driver name onto a Dialect. Unknown names fall back to SQLite.
func ParseDialect(driver string) Dialect {
	if strings.EqualFold(driver, string(MySQL)) {
		return MySQL
	}
	return SQLite
}

// Quote quotes an identifier for the dialect.
// MySQL uses backticks; SQLite uses ANSI double quotes. Embedded quote
// characters are doubled.
func (d Dialect) Quote(name string) string {
	if d == MySQL {
		return QuoteIdentifier(name)
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteSafe validates and quotes an identifier.
func (d Dialect) QuoteSafe(name string) (string, error) {
	if !IsValidIdentifier(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return d.Quote(name), nil
}

// QuoteList quotes each identifier and joins them with ", ".
func (d Dialect) QuoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// Placeholders returns n comma-separated "?" placeholders. Both dialects accept "?".
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// QuoteIdentifier quotes a MySQL identifier with backticks.
// Example: "my`table" -> "`my``table`"
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// validIdentifierRegex restricts identifiers to alphanumerics and underscore.
var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier checks that a name only contains alphanumeric characters and underscores.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// InvalidIdentifierError is returned when an identifier contains invalid characters.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must contain only alphanumeric characters and underscores)"
}
