package model

import "time"

// TestResult is the outcome of one executed test case.
type TestResult struct {
	Group          string  `json:"group,omitempty"`
	Index          int     `json:"index"`
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expectedOutput"`
	ActualOutput   string  `json:"actualOutput"`
	Hidden         bool    `json:"hidden"`
	Passed         bool    `json:"passed"`
	Points         int     `json:"points"`
	MaxPoints      int     `json:"maxPoints"`
	Status         string  `json:"status"`
	TimeMs         int64   `json:"timeMs"`
	MemoryKb       int64   `json:"memoryKb"`
	Stderr         string  `json:"stderr,omitempty"`
	CompileOutput  *string `json:"compileOutput,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// GroupResult aggregates one group in grouped mode. Score and MaxScore only
// count tests that actually ran.
type GroupResult struct {
	Name             string       `json:"name"`
	Weight           int          `json:"weight"`
	Score            int          `json:"score"`
	MaxScore         int          `json:"maxScore"`
	WeightedScore    int          `json:"weightedScore"`
	WeightedMaxScore int          `json:"weightedMaxScore"`
	FailedEarly      bool         `json:"failedEarly"`
	Skipped          int          `json:"skipped,omitempty"`
	Tests            []TestResult `json:"tests"`
}

// GradingResult is the outcome of grading one submission.
type GradingResult struct {
	Mode       Mode          `json:"mode"`
	TotalScore int           `json:"totalScore"`
	MaxScore   int           `json:"maxScore"`
	Percentage int           `json:"percentage"`
	AllPassed  bool          `json:"allPassed"`
	Tests      []TestResult  `json:"tests"`
	Groups     []GroupResult `json:"groups,omitempty"`
	Restricted bool          `json:"restricted,omitempty"`
	GradedAt   time.Time     `json:"gradedAt"`
	DurationMs int64         `json:"durationMs"`
}
