package model

import (
	"encoding/json"
	"fmt"

	pkgerrors "autograde/pkg/errors"
)

// Mode identifies which variant a GradingConfig holds.
type Mode string

const (
	ModeFlat    Mode = "flat"
	ModeGrouped Mode = "grouped"
)

// GradingConfig is either a flat list of tests or an ordered list of groups, never both.
// The zero value holds neither and is rejected by the grader.
type GradingConfig struct {
	mode   Mode
	tests  []TestCase
	groups []TestGroup
}

// Flat builds a flat configuration.
func Flat(tests []TestCase) GradingConfig {
	return GradingConfig{mode: ModeFlat, tests: tests}
}

// Grouped builds a grouped configuration.
func Grouped(groups []TestGroup) GradingConfig {
	return GradingConfig{mode: ModeGrouped, groups: groups}
}

func (c GradingConfig) Mode() Mode          { return c.mode }
func (c GradingConfig) Tests() []TestCase   { return c.tests }
func (c GradingConfig) Groups() []TestGroup { return c.groups }

// IsZero reports whether the configuration carries no variant.
func (c GradingConfig) IsZero() bool { return c.mode == "" }

// Validate rejects configurations that must not reach the executor.
func (c GradingConfig) Validate() error {
	switch c.mode {
	case ModeFlat:
		if len(c.tests) == 0 {
			return pkgerrors.Newf(pkgerrors.GradingConfigInvalid, "flat configuration has no tests")
		}
		for i, tc := range c.tests {
			if err := tc.validate(fmt.Sprintf("tests[%d]", i)); err != nil {
				return pkgerrors.Newf(pkgerrors.GradingConfigInvalid, "%v", err)
			}
		}
	case ModeGrouped:
		if len(c.groups) == 0 {
			return pkgerrors.Newf(pkgerrors.GradingConfigInvalid, "grouped configuration has no groups")
		}
		for i, g := range c.groups {
			if g.EffectiveWeight() < 0 {
				return pkgerrors.Newf(pkgerrors.GradingConfigInvalid, "groups[%d].weight must be non-negative", i)
			}
			if len(g.Tests) == 0 {
				return pkgerrors.Newf(pkgerrors.GradingConfigInvalid, "groups[%d] has no tests", i)
			}
			for j, tc := range g.Tests {
				if err := tc.validate(fmt.Sprintf("groups[%d].tests[%d]", i, j)); err != nil {
					return pkgerrors.Newf(pkgerrors.GradingConfigInvalid, "%v", err)
				}
			}
		}
	default:
		return pkgerrors.Newf(pkgerrors.GradingConfigInvalid, "grading configuration has neither tests nor groups")
	}
	return nil
}

type gradingConfigJSON struct {
	Mode   Mode        `json:"mode,omitempty"`
	Tests  []TestCase  `json:"tests,omitempty"`
	Groups []TestGroup `json:"groups,omitempty"`
}

func (c GradingConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(gradingConfigJSON{Mode: c.mode, Tests: c.tests, Groups: c.groups})
}

// UnmarshalJSON accepts an explicit mode or infers it. Without a mode,
// non-empty groups win over tests.
func (c *GradingConfig) UnmarshalJSON(data []byte) error {
	var raw gradingConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Mode {
	case ModeFlat:
		*c = Flat(raw.Tests)
	case ModeGrouped:
		*c = Grouped(raw.Groups)
	case "":
		switch {
		case len(raw.Groups) > 0:
			*c = Grouped(raw.Groups)
		case len(raw.Tests) > 0:
			*c = Flat(raw.Tests)
		default:
			*c = GradingConfig{}
		}
	default:
		return pkgerrors.Newf(pkgerrors.GradingConfigInvalid, "unknown grading mode %q", raw.Mode)
	}
	return nil
}
