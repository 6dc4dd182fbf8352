package model

import (
	"strings"

	pkgerrors "autograde/pkg/errors"
)

// ComparisonPolicy selects how actual and expected output are compared.
type ComparisonPolicy string

const (
	// PolicyStrict trims trailing whitespace only.
	PolicyStrict ComparisonPolicy = "strict"
	// PolicyIgnoreWhitespace collapses whitespace runs and trims both ends.
	PolicyIgnoreWhitespace ComparisonPolicy = "ignore_whitespace"
	// PolicyIgnoreCaseAndWhitespace additionally folds case.
	PolicyIgnoreCaseAndWhitespace ComparisonPolicy = "ignore_case_and_whitespace"
)

// ParsePolicy maps a checker name onto a policy. Empty selects PolicyStrict.
// Matching ignores case, surrounding spaces, and treats '-' like '_'.
func ParsePolicy(name string) (ComparisonPolicy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	switch ComparisonPolicy(normalized) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyIgnoreWhitespace:
		return PolicyIgnoreWhitespace, nil
	case PolicyIgnoreCaseAndWhitespace:
		return PolicyIgnoreCaseAndWhitespace, nil
	}
	return "", pkgerrors.Newf(pkgerrors.PolicyInvalid, "unknown comparison policy %q", name).
		WithDetail("policy", name)
}
