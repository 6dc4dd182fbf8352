// Package compare decides whether a program's output matches the expected output.
//
// Compare is total: every policy and string pair yields an answer, and
// unrecognized policies behave like model.PolicyStrict.
package compare

import (
	"fmt"
	"strings"
	"unicode"

	"autograde/internal/grading/model"
)

// Compare reports whether actual matches expected under policy.
func Compare(actual, expected string, policy model.ComparisonPolicy) bool {
	switch policy {
	case model.PolicyIgnoreWhitespace:
		return collapse(actual) == collapse(expected)
	case model.PolicyIgnoreCaseAndWhitespace:
		return strings.EqualFold(collapse(actual), collapse(expected))
	default:
		return trimRight(actual) == trimRight(expected)
	}
}

// CompareValues is Compare for loosely typed inputs such as decoded JSON.
// nil becomes "" and other values use their fmt representation.
func CompareValues(actual, expected interface{}, policy model.ComparisonPolicy) bool {
	return Compare(Coerce(actual), Coerce(expected), policy)
}

// Coerce converts v to the string Compare should see.
func Coerce(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case *string:
		if s == nil {
			return ""
		}
		return *s
	case []byte:
		return string(s)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// FirstMismatchLine returns the 1-based line where actual and expected
// diverge after normalization, or 0 when they match. Under the strict policy
// only whitespace at the very end of the output is ignored, so interior lines
// are compared byte for byte.
func FirstMismatchLine(actual, expected string, policy model.ComparisonPolicy) int {
	if Compare(actual, expected, policy) {
		return 0
	}
	act := strings.Split(trimRight(actual), "\n")
	exp := strings.Split(trimRight(expected), "\n")
	for i := 0; i < len(act) || i < len(exp); i++ {
		var a, e string
		if i < len(act) {
			a = act[i]
		}
		if i < len(exp) {
			e = exp[i]
		}
		if !lineMatches(a, e, policy) {
			return i + 1
		}
	}
	// Only the line layout differs, which the whitespace policies fold away per line.
	return 1
}

func lineMatches(a, e string, policy model.ComparisonPolicy) bool {
	switch policy {
	case model.PolicyIgnoreWhitespace, model.PolicyIgnoreCaseAndWhitespace:
		return Compare(a, e, policy)
	default:
		return a == e
	}
}

func trimRight(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
