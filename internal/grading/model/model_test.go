package model_test

import (
	"encoding/json"
	"testing"

	"autograde/internal/grading/model"
	pkgerrors "autograde/pkg/errors"
)

func TestGradingConfigUnmarshal(t *testing.T) {
	cases := []struct {
		name       string
		raw        string
		wantMode   model.Mode
		wantGroups int
		wantTests  int
	}{
		{name: "explicit flat", raw: `{"mode":"flat","tests":[{"points":1}]}`, wantMode: model.ModeFlat, wantTests: 1},
		{name: "inferred grouped", raw: `{"groups":[{"tests":[{"points":1}]}]}`, wantMode: model.ModeGrouped, wantGroups: 1},
		{name: "grouped wins over tests", raw: `{"tests":[{"points":1},{"points":2}],"groups":[{"tests":[{"points":1}]}]}`, wantMode: model.ModeGrouped, wantGroups: 1},
		{name: "neither", raw: `{}`, wantMode: ""},
		{name: "empty groups fall back to tests", raw: `{"tests":[{"points":3}],"groups":[]}`, wantMode: model.ModeFlat, wantTests: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg model.GradingConfig
			if err := json.Unmarshal([]byte(tc.raw), &cfg); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if cfg.Mode() != tc.wantMode {
				t.Fatalf("mode = %q, want %q", cfg.Mode(), tc.wantMode)
			}
			if len(cfg.Groups()) != tc.wantGroups || len(cfg.Tests()) != tc.wantTests {
				t.Fatalf("unexpected contents: groups=%d tests=%d", len(cfg.Groups()), len(cfg.Tests()))
			}
		})
	}

	var cfg model.GradingConfig
	err := json.Unmarshal([]byte(`{"mode":"weighted"}`), &cfg)
	if !pkgerrors.Is(err, pkgerrors.GradingConfigInvalid) {
		t.Fatalf("expected GradingConfigInvalid, got %v", err)
	}
}

func TestGradingConfigRoundTripKeepsMode(t *testing.T) {
	cfg := model.Grouped([]model.TestGroup{{Name: "a", Weight: model.Int(0), Tests: []model.TestCase{{Points: 5}}}})
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var back model.GradingConfig
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.Mode() != model.ModeGrouped || back.Groups()[0].EffectiveWeight() != 0 {
		t.Fatalf("zero weight lost: %s", data)
	}
}

func TestGradingConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     model.GradingConfig
		wantErr bool
	}{
		{name: "zero", cfg: model.GradingConfig{}, wantErr: true},
		{name: "flat empty", cfg: model.Flat(nil), wantErr: true},
		{name: "grouped empty", cfg: model.Grouped(nil), wantErr: true},
		{name: "negative points", cfg: model.Flat([]model.TestCase{{Points: -1}}), wantErr: true},
		{name: "negative weight", cfg: model.Grouped([]model.TestGroup{{Weight: model.Int(-5), Tests: []model.TestCase{{Points: 1}}}}), wantErr: true},
		{name: "group without tests", cfg: model.Grouped([]model.TestGroup{{Name: "x"}}), wantErr: true},
		{name: "flat ok", cfg: model.Flat([]model.TestCase{{Points: 0}}), wantErr: false},
		{name: "weight above 100 ok", cfg: model.Grouped([]model.TestGroup{{Weight: model.Int(250), Tests: []model.TestCase{{Points: 1}}}}), wantErr: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !pkgerrors.Is(err, pkgerrors.GradingConfigInvalid) {
				t.Fatalf("expected GradingConfigInvalid, got %v", err)
			}
		})
	}
}

func TestGroupDefaults(t *testing.T) {
	var g model.TestGroup
	if err := json.Unmarshal([]byte(`{"tests":[]}`), &g); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if g.DisplayName() != "default" || g.EffectiveWeight() != 100 || !g.ContinuesOnFailure() {
		t.Fatalf("defaults not applied: %q %d %v", g.DisplayName(), g.EffectiveWeight(), g.ContinuesOnFailure())
	}
	if err := json.Unmarshal([]byte(`{"name":"edge","weight":0,"continueOnFailure":false,"tests":[]}`), &g); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if g.DisplayName() != "edge" || g.EffectiveWeight() != 0 || g.ContinuesOnFailure() {
		t.Fatalf("explicit values lost")
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]model.ComparisonPolicy{
		"":                           model.PolicyStrict,
		"Strict":                     model.PolicyStrict,
		" ignore-whitespace ":        model.PolicyIgnoreWhitespace,
		"IGNORE_CASE_AND_WHITESPACE": model.PolicyIgnoreCaseAndWhitespace,
	}
	for in, want := range cases {
		got, err := model.ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := model.ParsePolicy("fuzzy"); !pkgerrors.Is(err, pkgerrors.PolicyInvalid) {
		t.Fatalf("expected PolicyInvalid, got %v", err)
	}
}

func TestRedacted(t *testing.T) {
	hidden := model.TestResult{Input: "secret in", ExpectedOutput: "secret out", ActualOutput: "mine", Hidden: true, Passed: true, Points: 4}
	visible := model.TestResult{Input: "1 2", ExpectedOutput: "3", ActualOutput: "3", Passed: true, Points: 1}
	res := model.GradingResult{
		Tests:  []model.TestResult{hidden, visible},
		Groups: []model.GroupResult{{Name: "g", Tests: []model.TestResult{hidden}}},
	}

	student := res.Redacted()
	if !student.Restricted {
		t.Fatalf("redacted copy should be marked restricted")
	}
	got := student.Tests[0]
	if got.Input != model.RedactionMarker || got.ExpectedOutput != model.RedactionMarker {
		t.Fatalf("hidden test leaked: %+v", got)
	}
	if got.ActualOutput != "mine" || !got.Passed || got.Points != 4 {
		t.Fatalf("non-sensitive fields must survive: %+v", got)
	}
	if student.Tests[1].Input != "1 2" {
		t.Fatalf("visible test must not be redacted")
	}
	if student.Groups[0].Tests[0].Input != model.RedactionMarker {
		t.Fatalf("group copy leaked hidden input")
	}
	if res.Tests[0].Input != "secret in" || res.Groups[0].Tests[0].ExpectedOutput != "secret out" {
		t.Fatalf("original result was mutated")
	}
}

func TestResultRecordForViewer(t *testing.T) {
	res := model.GradingResult{Tests: []model.TestResult{{Input: "x", Hidden: true}}}
	rec := model.ResultRecord{SubmissionID: "s1", Status: model.StatusFinished, Result: &res}

	if rec.ForViewer(true).Result.Tests[0].Input != "x" {
		t.Fatalf("teacher view must be unredacted")
	}
	if rec.ForViewer(false).Result.Tests[0].Input != model.RedactionMarker {
		t.Fatalf("student view must be redacted")
	}
	if rec.Result.Tests[0].Input != "x" {
		t.Fatalf("record mutated by student view")
	}

	pending := model.ResultRecord{SubmissionID: "s2", Status: model.StatusPending}
	if pending.ForViewer(false).Result != nil {
		t.Fatalf("pending record has no result")
	}
}

func TestResultRecordVisibleTo(t *testing.T) {
	owned := model.ResultRecord{SubmissionID: "s1", Owner: "alice"}
	orphan := model.ResultRecord{SubmissionID: "s2"}
	cases := []struct {
		name       string
		rec        model.ResultRecord
		subject    string
		privileged bool
		want       bool
	}{
		{"owner", owned, "alice", false, true},
		{"other student", owned, "bob", false, false},
		{"teacher", owned, "t-1", true, true},
		{"no owner student", orphan, "", false, false},
		{"no owner teacher", orphan, "t-1", true, true},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.VisibleTo(tt.subject, tt.privileged); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
