package introspect

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dbsmedya/typeprobe/internal/schema"
)

// Enrichment is the constraint information recovered from a column's DDL.
type Enrichment struct {
	EnumValues []string
	Boolean    bool
	Range      *schema.Range
	MaxLength  int
}

// identifier matches a bare or quoted column name inside a CHECK expression.
const identifier = "[`\"\\[]?(\\w+)[`\"\\]]?"

var (
	inListPattern  = regexp.MustCompile(`(?is)^` + identifier + `\s+IN\s*\((.*)\)$`)
	rangePattern   = regexp.MustCompile(`(?is)^` + identifier + `\s*>=\s*(-?[\d.]+)\s+AND\s+` + identifier + `\s*<=\s*(-?[\d.]+)$`)
	betweenPattern = regexp.MustCompile(`(?is)^` + identifier + `\s+BETWEEN\s+(-?[\d.]+)\s+AND\s+(-?[\d.]+)$`)
	lengthPattern  = regexp.MustCompile(`(?i)^(?:var)?char\s*\(\s*(\d+)\s*\)`)
	checkPattern   = regexp.MustCompile(`(?i)\bCHECK\s*\(`)
)

// ParseColumnDDL extracts enum, boolean, range and length constraints for a
// single column from a CREATE TABLE statement. Unknown syntax yields an empty
// Enrichment rather than an error: enrichment is best effort.
func ParseColumnDDL(createSQL, column string) Enrichment {
	var out Enrichment

	body := tableBody(createSQL)
	if body == "" {
		return out
	}

	var checks []string
	for _, def := range splitTopLevel(body) {
		name, rest := leadingIdentifier(def)
		switch {
		case strings.EqualFold(name, column) && !isTableConstraintKeyword(name, def):
			if m := lengthPattern.FindStringSubmatch(strings.TrimSpace(rest)); m != nil {
				out.MaxLength, _ = strconv.Atoi(m[1])
			}
			checks = append(checks, extractChecks(rest)...)
		case isTableConstraintKeyword(name, def):
			checks = append(checks, extractChecks(def)...)
		}
	}

	for _, expr := range checks {
		applyCheck(&out, expr, column)
	}
	return out
}

// ParseMySQLColumnType reads enum members and tinyint(1) booleans from an
// information_schema COLUMN_TYPE such as "enum('draft','published')".
func ParseMySQLColumnType(columnType string) Enrichment {
	var out Enrichment
	t := strings.TrimSpace(columnType)
	lower := strings.ToLower(t)

	switch {
	case strings.HasPrefix(lower, "enum(") && strings.HasSuffix(t, ")"):
		out.EnumValues = splitLiteralList(t[len("enum(") : len(t)-1])
	case lower == "tinyint(1)" || strings.HasPrefix(lower, "tinyint(1) "):
		out.Boolean = true
	default:
		if m := lengthPattern.FindStringSubmatch(lower); m != nil {
			out.MaxLength, _ = strconv.Atoi(m[1])
		}
	}
	return out
}

// Enrich applies an Enrichment to a column and keeps the column model
// consistent: enum values imply KindEnum, a range is kept only on numeric
// columns and a boolean check turns the column boolean.
func Enrich(col schema.Column, e Enrichment) schema.Column {
	if e.MaxLength > 0 && col.MaxLength == 0 {
		col.MaxLength = e.MaxLength
	}
	switch {
	case e.Boolean:
		col.Kind = schema.KindBoolean
	case len(e.EnumValues) > 0:
		col.Kind = schema.KindEnum
		col.EnumValues = e.EnumValues
	case e.Range != nil && col.Kind.IsNumeric():
		col.Range = e.Range
	}
	return col
}

func applyCheck(out *Enrichment, expr, column string) {
	expr = stripParens(expr)
	if m := inListPattern.FindStringSubmatch(expr); m != nil && strings.EqualFold(m[1], column) {
		values := splitLiteralList(m[2])
		if isBooleanSet(values) {
			out.Boolean = true
			return
		}
		if len(values) > 0 {
			out.EnumValues = values
		}
		return
	}
	// MySQL stores "(`qty` >= 1) and (`qty` <= 10)"
	expr = parenStripper.Replace(expr)
	if m := rangePattern.FindStringSubmatch(expr); m != nil && strings.EqualFold(m[1], column) && strings.EqualFold(m[3], column) {
		setRange(out, m[2], m[4])
		return
	}
	if m := betweenPattern.FindStringSubmatch(expr); m != nil && strings.EqualFold(m[1], column) {
		setRange(out, m[2], m[3])
	}
}

var parenStripper = strings.NewReplacer("(", "", ")", "")

func setRange(out *Enrichment, lo, hi string) {
	min, err1 := strconv.ParseFloat(lo, 64)
	max, err2 := strconv.ParseFloat(hi, 64)
	if err1 != nil || err2 != nil || min > max {
		return
	}
	out.Range = &schema.Range{Min: min, Max: max}
}

func isBooleanSet(values []string) bool {
	if len(values) != 2 {
		return false
	}
	return (values[0] == "0" && values[1] == "1") || (values[0] == "1" && values[1] == "0")
}

// stripParens removes balanced parentheses wrapping the whole expression.
func stripParens(expr string) string {
	for {
		expr = strings.TrimSpace(expr)
		if len(expr) < 2 || expr[0] != '(' || expr[len(expr)-1] != ')' {
			return expr
		}
		depth := 0
		for i := 0; i < len(expr); i++ {
			switch expr[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			// the opening paren closes before the end: not a wrapper
			if depth == 0 && i < len(expr)-1 {
				return expr
			}
		}
		expr = expr[1 : len(expr)-1]
	}
}

// tableBody returns the text between the outermost parentheses of a CREATE TABLE.
func tableBody(createSQL string) string {
	start := strings.IndexByte(createSQL, '(')
	if start < 0 {
		return ""
	}
	depth := 0
	var quote byte
	for i := start; i < len(createSQL); i++ {
		c := createSQL[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return createSQL[start+1 : i]
			}
		}
	}
	return ""
}

// splitTopLevel splits on commas that are not nested in parentheses or quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[last:]); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

// leadingIdentifier returns the first identifier of a definition, unquoted,
// and the remainder of the definition.
func leadingIdentifier(def string) (string, string) {
	def = strings.TrimSpace(def)
	if def == "" {
		return "", ""
	}
	closer := map[byte]byte{'"': '"', '`': '`', '[': ']'}
	if end, ok := closer[def[0]]; ok {
		if i := strings.IndexByte(def[1:], end); i >= 0 {
			return def[1 : i+1], def[i+2:]
		}
		return "", def
	}
	i := strings.IndexAny(def, " \t\n\r(")
	if i < 0 {
		return def, ""
	}
	return def[:i], def[i:]
}

func isTableConstraintKeyword(name, def string) bool {
	// Quoted identifiers never name a constraint clause.
	if c := strings.TrimSpace(def); c != "" && (c[0] == '"' || c[0] == '`' || c[0] == '[') {
		return false
	}
	switch strings.ToUpper(name) {
	case "CHECK", "CONSTRAINT", "PRIMARY", "UNIQUE", "FOREIGN", "KEY", "INDEX":
		return true
	}
	return false
}

// extractChecks returns the expression of every CHECK (...) clause in s.
func extractChecks(s string) []string {
	var out []string
	for _, loc := range checkPattern.FindAllStringIndex(s, -1) {
		open := loc[1] - 1
		depth := 0
		for i := open; i < len(s); i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					out = append(out, s[open+1:i])
					i = len(s)
				}
			}
		}
	}
	return out
}

// splitLiteralList turns "'a', 'b', 3" into [a b 3].
func splitLiteralList(s string) []string {
	var values []string
	for _, part := range splitTopLevel(s) {
		v := strings.TrimSpace(part)
		// MySQL prefixes literals with their charset: _utf8mb4'a'
		if i := strings.IndexByte(v, '\''); i > 0 && v[0] == '_' {
			v = v[i:]
		}
		if len(v) >= 2 && (v[0] == '\'' || v[0] == '"') && v[len(v)-1] == v[0] {
			v = strings.ReplaceAll(v[1:len(v)-1], string(v[0])+string(v[0]), string(v[0]))
		}
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}
