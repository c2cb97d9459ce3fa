// Package normalize shapes API payloads into report records.
package normalize

import (
	"database/sql"
	"strings"
	"time"

	"github.com/teranos/paysync/remote"
)

// DateLayout is the layout of every stored date
const DateLayout = "2006-01-02"

// Text returns the string form of v with single quotes replaced by backticks.
// Null and absent values become "".
func Text(v remote.Scalar) string {
	return Clean(v.String())
}

// Clean replaces single quotes with backticks
func Clean(s string) string {
	return strings.ReplaceAll(s, "'", "`")
}

// Number returns v as a float, 0.0 when null, absent or not numeric
func Number(v remote.Scalar) float64 {
	f, ok := v.Float()
	if !ok {
		return 0.0
	}
	return f
}

// Date returns the date part of a date-time value, the text before the first T.
// Null, absent and empty values are NULL.
func Date(v remote.Scalar) sql.NullString {
	if !v.Valid() {
		return sql.NullString{}
	}
	s := Clean(v.String())
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// LoadDate formats the load day of a record
func LoadDate(t time.Time) string {
	return t.Format(DateLayout)
}

var statusCodes = map[string]string{
	"Active":     "A",
	"Inactive":   "I",
	"Terminated": "T",
}

// StatusCode maps an employment status to its single-letter code.
// Unknown statuses pass through unchanged.
func StatusCode(status string) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return status
}

// SplitName returns the first and last whitespace-separated tokens of name.
// Middle parts are dropped and a single token is both first and last name.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], parts[len(parts)-1]
}

// ExceptionSet is a case-insensitive set of facility names
type ExceptionSet map[string]struct{}

// NewExceptionSet builds a set from names
func NewExceptionSet(names []string) ExceptionSet {
	set := make(ExceptionSet, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

// Contains reports whether name is in the set, ignoring case
func (s ExceptionSet) Contains(name string) bool {
	_, ok := s[strings.ToLower(name)]
	return ok
}

// MatchesExceptionCode reports whether legalCode contains any of codes
func MatchesExceptionCode(legalCode string, codes []string) bool {
	for _, c := range codes {
		if c != "" && strings.Contains(legalCode, c) {
			return true
		}
	}
	return false
}
