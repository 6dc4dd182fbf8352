package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"autograde/internal/grading/compare"
	"autograde/internal/grading/executor"
	"autograde/internal/grading/model"
	"autograde/internal/grading/observer"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxParallel     = 4
	defaultCallTimeoutPad  = 10 * time.Second
	defaultMinCallTimeout  = 15 * time.Second
	runOutcomeOK           = "ok"
	runOutcomeCancelled    = "cancelled"
	runOutcomeConfigReject = "rejected"
)

// Limits bounds a single program run. Zero values defer to the execution service.
type Limits struct {
	TimeLimitSeconds float64
	MemoryLimitKb    int64
}

// GraderConfig holds grader dependencies and settings.
type GraderConfig struct {
	Executor executor.Executor
	Metrics  observer.MetricsRecorder

	// MaxParallel caps concurrent executor calls within one grading run.
	MaxParallel int
	// CallTimeoutPad is added to the time limit to form the wall-clock cap of one call.
	CallTimeoutPad time.Duration
	// MinCallTimeout is the smallest wall-clock cap of one call.
	MinCallTimeout time.Duration
}

// Grader runs test configurations against one submission. It holds no
// per-run state and is safe for concurrent use.
type Grader struct {
	executor       executor.Executor
	metrics        observer.MetricsRecorder
	maxParallel    int
	callTimeoutPad time.Duration
	minCallTimeout time.Duration
}

// NewGrader creates a grader.
func NewGrader(cfg GraderConfig) (*Grader, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	g := &Grader{
		executor:       cfg.Executor,
		metrics:        cfg.Metrics,
		maxParallel:    cfg.MaxParallel,
		callTimeoutPad: cfg.CallTimeoutPad,
		minCallTimeout: cfg.MinCallTimeout,
	}
	if g.metrics == nil {
		g.metrics = observer.Nop{}
	}
	if g.maxParallel <= 0 {
		g.maxParallel = defaultMaxParallel
	}
	if g.callTimeoutPad <= 0 {
		g.callTimeoutPad = defaultCallTimeoutPad
	}
	if g.minCallTimeout <= 0 {
		g.minCallTimeout = defaultMinCallTimeout
	}
	return g, nil
}

// Grade validates req and dispatches on its configuration variant.
// req.Config must already be resolved; test pack keys are handled by Service.
func (g *Grader) Grade(ctx context.Context, req model.GradingRequest) (model.GradingResult, error) {
	limits := Limits{TimeLimitSeconds: req.TimeLimitSeconds, MemoryLimitKb: req.MemoryLimitKb}
	switch req.Config.Mode() {
	case model.ModeFlat:
		return g.GradeFlat(ctx, req.Code, req.Language, req.Config.Tests(), limits, req.Policy)
	case model.ModeGrouped:
		return g.GradeGrouped(ctx, req.Code, req.Language, req.Config.Groups(), limits, req.Policy)
	}
	return model.GradingResult{}, req.Config.Validate()
}

// GradeFlat runs every test, in parallel up to the configured cap, and sums
// points. No test is skipped after a failure.
func (g *Grader) GradeFlat(ctx context.Context, code, language string, tests []model.TestCase, limits Limits, policy model.ComparisonPolicy) (model.GradingResult, error) {
	start := time.Now()
	policy, err := g.precheck(ctx, code, model.Flat(tests), limits, policy)
	if err != nil {
		return model.GradingResult{}, err
	}

	results := make([]model.TestResult, len(tests))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxParallel)
	for i := range tests {
		if egCtx.Err() != nil {
			break
		}
		i := i
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = g.runTest(egCtx, code, language, tests[i], limits, policy, i, "")
			return nil
		})
	}
	if err := g.finishRun(ctx, eg, model.ModeFlat, start); err != nil {
		return model.GradingResult{}, err
	}

	res := model.GradingResult{Mode: model.ModeFlat, Tests: results}
	for i, tc := range tests {
		res.MaxScore += tc.Points
		if results[i].Passed {
			res.TotalScore += tc.Points
		}
	}
	res.AllPassed = res.TotalScore == res.MaxScore
	res.Percentage = percentage(res.TotalScore, res.MaxScore)
	g.stamp(ctx, &res, start)
	return res, nil
}

// GradeGrouped runs groups in parallel up to the configured cap. Tests inside
// a group run sequentially so that a failure in a group with
// continueOnFailure=false stops the rest of that group.
func (g *Grader) GradeGrouped(ctx context.Context, code, language string, groups []model.TestGroup, limits Limits, policy model.ComparisonPolicy) (model.GradingResult, error) {
	start := time.Now()
	policy, err := g.precheck(ctx, code, model.Grouped(groups), limits, policy)
	if err != nil {
		return model.GradingResult{}, err
	}

	groupResults := make([]model.GroupResult, len(groups))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxParallel)
	for i := range groups {
		if egCtx.Err() != nil {
			break
		}
		i := i
		eg.Go(func() error {
			gr, err := g.runGroup(egCtx, code, language, groups[i], limits, policy)
			if err != nil {
				return err
			}
			groupResults[i] = gr
			return nil
		})
	}
	if err := g.finishRun(ctx, eg, model.ModeGrouped, start); err != nil {
		return model.GradingResult{}, err
	}

	res := model.GradingResult{Mode: model.ModeGrouped, Groups: groupResults, AllPassed: true}
	for _, gr := range groupResults {
		res.TotalScore += gr.WeightedScore
		res.MaxScore += gr.WeightedMaxScore
		res.Tests = append(res.Tests, gr.Tests...)
		// Raw sums over executed tests only; weighted rounding never decides allPassed.
		if gr.Score != gr.MaxScore {
			res.AllPassed = false
		}
	}
	res.Percentage = percentage(res.TotalScore, res.MaxScore)
	g.stamp(ctx, &res, start)
	return res, nil
}

func (g *Grader) runGroup(ctx context.Context, code, language string, group model.TestGroup, limits Limits, policy model.ComparisonPolicy) (model.GroupResult, error) {
	name := group.DisplayName()
	gr := model.GroupResult{
		Name:   name,
		Weight: group.EffectiveWeight(),
		Tests:  make([]model.TestResult, 0, len(group.Tests)),
	}
	for j, tc := range group.Tests {
		if err := ctx.Err(); err != nil {
			return model.GroupResult{}, err
		}
		tr := g.runTest(ctx, code, language, tc, limits, policy, j, name)
		gr.MaxScore += tc.Points
		gr.Tests = append(gr.Tests, tr)
		if tr.Passed {
			gr.Score += tc.Points
			continue
		}
		if !group.ContinuesOnFailure() {
			gr.FailedEarly = true
			gr.Skipped = len(group.Tests) - j - 1
			break
		}
	}
	gr.WeightedScore = scale(gr.Score, gr.Weight)
	gr.WeightedMaxScore = scale(gr.MaxScore, gr.Weight)
	return gr, nil
}

// runTest executes one test under its own wall-clock cap. It never fails:
// transport errors and timeouts become a failed result.
func (g *Grader) runTest(ctx context.Context, code, language string, tc model.TestCase, limits Limits, policy model.ComparisonPolicy, index int, group string) model.TestResult {
	timeout := g.callTimeout(limits)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := model.ExecutionRequest{
		Code:             code,
		Language:         language,
		Stdin:            tc.Input,
		TimeLimitSeconds: limits.TimeLimitSeconds,
		MemoryLimitKb:    limits.MemoryLimitKb,
	}
	// Buffered so a collaborator that ignores ctx does not leak the goroutine forever.
	done := make(chan model.ExecutionOutcome, 1)
	go func() { done <- g.executor.Run(callCtx, req) }()

	var out model.ExecutionOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = model.ExecutionOutcome{Succeeded: false, Error: callCtx.Err().Error()}
		if ctx.Err() == nil {
			out.Status = model.StatusTimeout
			out.Error = fmt.Sprintf("execution exceeded wall-clock limit of %s", timeout)
		}
	}

	tr := model.TestResult{
		Group:          group,
		Index:          index,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		ActualOutput:   out.Stdout,
		Hidden:         tc.IsHidden,
		MaxPoints:      tc.Points,
		Status:         out.Status,
		TimeMs:         out.TimeMs,
		MemoryKb:       out.MemoryKb,
		Stderr:         out.Stderr,
		CompileOutput:  out.CompileOutput,
		Error:          out.Error,
	}
	tr.Passed = out.Succeeded && out.Status == model.StatusAccepted &&
		compare.Compare(out.Stdout, tc.ExpectedOutput, policy)
	if tr.Passed {
		tr.Points = tc.Points
	} else if out.Succeeded && out.Status == model.StatusAccepted {
		tr.Error = fmt.Sprintf("wrong answer: first difference at line %d",
			compare.FirstMismatchLine(out.Stdout, tc.ExpectedOutput, policy))
	}
	if !out.Succeeded && ctx.Err() == nil {
		logger.Warn(ctx, "execution failed",
			zap.String("group", group),
			zap.Int("index", index),
			zap.String("status", out.Status),
			zap.String("error", out.Error),
		)
	}
	return tr
}

func (g *Grader) precheck(ctx context.Context, code string, cfg model.GradingConfig, limits Limits, policy model.ComparisonPolicy) (model.ComparisonPolicy, error) {
	reject := func(err error) (model.ComparisonPolicy, error) {
		g.metrics.ObserveRun(ctx, string(cfg.Mode()), runOutcomeConfigReject, 0)
		return "", err
	}
	parsed, err := model.ParsePolicy(string(policy))
	if err != nil {
		return reject(err)
	}
	if err := cfg.Validate(); err != nil {
		return reject(err)
	}
	if strings.TrimSpace(code) == "" {
		return reject(appErr.New(appErr.CodeEmpty))
	}
	if limits.TimeLimitSeconds < 0 || limits.MemoryLimitKb < 0 {
		return reject(appErr.ValidationError("limits", "must be non-negative"))
	}
	return parsed, nil
}

func (g *Grader) finishRun(ctx context.Context, eg *errgroup.Group, mode model.Mode, start time.Time) error {
	err := eg.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		g.metrics.ObserveRun(ctx, string(mode), runOutcomeCancelled, time.Since(start))
		logger.Info(ctx, "grading run abandoned", zap.String("mode", string(mode)), zap.Error(err))
		return err
	}
	return nil
}

func (g *Grader) stamp(ctx context.Context, res *model.GradingResult, start time.Time) {
	elapsed := time.Since(start)
	res.GradedAt = time.Now().UTC()
	res.DurationMs = elapsed.Milliseconds()
	g.metrics.ObserveRun(ctx, string(res.Mode), runOutcomeOK, elapsed)
	logger.Info(ctx, "grading run finished",
		zap.String("mode", string(res.Mode)),
		zap.Int("score", res.TotalScore),
		zap.Int("max_score", res.MaxScore),
		zap.Int("tests", len(res.Tests)),
		zap.Duration("elapsed", elapsed),
	)
}

func (g *Grader) callTimeout(limits Limits) time.Duration {
	timeout := time.Duration(limits.TimeLimitSeconds*float64(time.Second)) + g.callTimeoutPad
	if timeout < g.minCallTimeout {
		timeout = g.minCallTimeout
	}
	return timeout
}

// scale applies a weight percentage and rounds half away from zero.
func scale(points, weight int) int {
	return int(math.Round(float64(points) * float64(weight) / 100))
}

func percentage(score, maxScore int) int {
	if maxScore <= 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(maxScore) * 100))
}
