// Package model holds the data shapes shared by the grading orchestrators and their callers.
package model

import "fmt"

// Group defaults applied when a field is absent.
const (
	DefaultGroupName   = "default"
	DefaultGroupWeight = 100
)

// TestCase is one stdin/expected-output pair worth Points on success.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Points         int    `json:"points"`
	IsHidden       bool   `json:"isHidden"`
}

// TestGroup is an ordered set of tests scored together and scaled by Weight percent.
// Nil Weight and ContinueOnFailure take their defaults.
type TestGroup struct {
	Name              string     `json:"name,omitempty"`
	Weight            *int       `json:"weight,omitempty"`
	ContinueOnFailure *bool      `json:"continueOnFailure,omitempty"`
	Tests             []TestCase `json:"tests"`
}

// DisplayName returns the group label, "default" when unset.
func (g TestGroup) DisplayName() string {
	if g.Name == "" {
		return DefaultGroupName
	}
	return g.Name
}

// EffectiveWeight returns the weight percentage, 100 when unset.
func (g TestGroup) EffectiveWeight() int {
	if g.Weight == nil {
		return DefaultGroupWeight
	}
	return *g.Weight
}

// ContinuesOnFailure reports whether remaining tests run after a failure.
func (g TestGroup) ContinuesOnFailure() bool {
	if g.ContinueOnFailure == nil {
		return true
	}
	return *g.ContinueOnFailure
}

func (tc TestCase) validate(path string) error {
	if tc.Points < 0 {
		return fmt.Errorf("%s.points must be non-negative", path)
	}
	return nil
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
