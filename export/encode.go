package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// LiteralStyle selects how text containing backslashes is quoted.
type LiteralStyle string

const (
	// StyleCompat writes '...' with quotes and backslashes doubled, matching
	// earlier exports for text values. Structured values are the exception:
	// they are written as compact JSON with sorted keys ({"a":1}), not the
	// spaced insertion-order form ({"a": 1}) older dumps carry. Both load to
	// the same jsonb value.
	StyleCompat LiteralStyle = "compat"
	// StyleEscape switches to Postgres E'...' syntax when a backslash is
	// present, so the literal reads back unchanged with
	// standard_conforming_strings on.
	StyleEscape LiteralStyle = "escape"
)

func ParseLiteralStyle(s string) (LiteralStyle, error) {
	switch LiteralStyle(s) {
	case "", StyleCompat:
		return StyleCompat, nil
	case StyleEscape:
		return StyleEscape, nil
	}
	return "", fmt.Errorf("unknown literal style %q (want %s or %s)", s, StyleCompat, StyleEscape)
}

var plainIdent = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

// reservedWords are the Postgres keywords that cannot name a table or
// column unquoted (reserved and type/function-name categories).
var reservedWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		all analyse analyze and any array as asc asymmetric authorization
		binary both case cast check collate collation column concurrently
		constraint create cross current_catalog current_date current_role
		current_schema current_time current_timestamp current_user default
		deferrable desc distinct do else end except false fetch for foreign
		freeze from full grant group having ilike in initially inner
		intersect into is isnull join lateral leading left like limit
		localtime localtimestamp natural not notnull null offset on only or
		order outer overlaps placing primary references returning right
		select session_user similar some symmetric system_user table
		tablesample then to trailing true union unique user using variadic
		verbose when where window with`) {
		reservedWords[w] = struct{}{}
	}
}

// QuoteIdent leaves plain lower-case identifiers bare and double-quotes
// everything else, including reserved keywords.
func QuoteIdent(name string) string {
	if _, reserved := reservedWords[name]; !reserved && plainIdent.MatchString(name) {
		return name
	}
	return pq.QuoteIdentifier(name)
}

// Encoder turns decoded JSON values into SQL literals.
type Encoder struct {
	Style LiteralStyle
}

// Literal renders v as a SQL literal.
func (e Encoder) Literal(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case json.Number:
		return val.String(), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case string:
		return e.quoteText(val), nil
	case map[string]any, []any:
		js, err := canonicalJSON(val)
		if err != nil {
			return "", err
		}
		return "'" + strings.ReplaceAll(js, "'", "''") + "'", nil
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(val), "'", "''") + "'", nil
	}
}

func (e Encoder) quoteText(s string) string {
	if !strings.Contains(s, `\`) {
		return pq.QuoteLiteral(s)
	}
	if e.Style == StyleEscape {
		return strings.TrimPrefix(pq.QuoteLiteral(s), " ")
	}
	// Quote doubling never introduces a backslash, so the two replacements
	// don't interfere.
	s = strings.ReplaceAll(s, `'`, `''`)
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + s + "'"
}

// canonicalJSON marshals with sorted object keys and without HTML escaping.
func canonicalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encoding structured value: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// InsertStatement renders one INSERT line (without the trailing newline).
// Columns missing from values are written as NULL.
func (e Encoder) InsertStatement(table string, columns []string, values map[string]any) (string, error) {
	cols := make([]string, len(columns))
	lits := make([]string, len(columns))
	for i, col := range columns {
		cols[i] = QuoteIdent(col)
		lit, err := e.Literal(values[col])
		if err != nil {
			return "", fmt.Errorf("column %s: %w", col, err)
		}
		lits[i] = lit
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		QuoteIdent(table), strings.Join(cols, ", "), strings.Join(lits, ", ")), nil
}
