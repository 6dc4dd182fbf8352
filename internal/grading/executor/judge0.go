// Package executor adapts the remote code-execution service to model.ExecutionOutcome.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autograde/internal/grading/model"
	"autograde/internal/grading/observer"
	"autograde/pkg/utils/logger"

	"go.uber.org/zap"
)

// Executor runs one program against one stdin. It never returns an error:
// transport problems come back as an outcome with Succeeded=false.
type Executor interface {
	Run(ctx context.Context, req model.ExecutionRequest) model.ExecutionOutcome
}

const maxResponseBytes = 8 << 20

// Config configures the Judge0 client.
type Config struct {
	BaseURL         string
	AuthHeader      string
	AuthToken       string
	RequestTimeout  time.Duration
	DefaultLanguage string
	Languages       map[string]int
}

type judge0Submission struct {
	SourceCode   string  `json:"source_code"`
	LanguageID   int     `json:"language_id"`
	Stdin        string  `json:"stdin,omitempty"`
	CPUTimeLimit float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit  int64   `json:"memory_limit,omitempty"`
}

type judge0Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type judge0Details struct {
	Status        *judge0Status `json:"status"`
	Stdout        *string       `json:"stdout"`
	Stderr        *string       `json:"stderr"`
	CompileOutput *string       `json:"compile_output"`
	Message       *string       `json:"message"`
	Time          *string       `json:"time"`
	Memory        *int64        `json:"memory"`
}

// Judge0Client talks to a Judge0-compatible API in synchronous mode.
type Judge0Client struct {
	baseURL    string
	authHeader string
	authToken  string
	languages  *LanguageTable
	httpClient *http.Client
	metrics    observer.MetricsRecorder
}

// NewJudge0Client validates cfg and builds a client.
func NewJudge0Client(cfg Config, metrics observer.MetricsRecorder) (*Judge0Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("executor base url is required")
	}
	languages, err := NewLanguageTable(cfg.DefaultLanguage, cfg.Languages)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = observer.Nop{}
	}
	authHeader := cfg.AuthHeader
	if authHeader == "" {
		authHeader = "X-Auth-Token"
	}
	return &Judge0Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: authHeader,
		authToken:  cfg.AuthToken,
		languages:  languages,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		metrics:    metrics,
	}, nil
}

// Run submits req and waits for the verdict.
func (c *Judge0Client) Run(ctx context.Context, req model.ExecutionRequest) model.ExecutionOutcome {
	languageID, language, fellBack := c.languages.Resolve(req.Language)
	if fellBack {
		logger.Warn(ctx, "unknown language, using default",
			zap.String("language", req.Language),
			zap.String("default", language),
		)
		c.metrics.ObserveLanguageFallback(ctx, language)
	}

	out, err := c.submit(ctx, judge0Submission{
		SourceCode:   req.Code,
		LanguageID:   languageID,
		Stdin:        req.Stdin,
		CPUTimeLimit: req.TimeLimitSeconds,
		MemoryLimit:  req.MemoryLimitKb,
	})
	if err != nil {
		out = model.ExecutionOutcome{Succeeded: false, Error: err.Error()}
	}
	c.metrics.ObserveExecution(ctx, language, out.Status, out.TimeMs)
	return out
}

func (c *Judge0Client) submit(ctx context.Context, sub judge0Submission) (model.ExecutionOutcome, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return model.ExecutionOutcome{}, fmt.Errorf("encode submission failed: %w", err)
	}
	url := c.baseURL + "/submissions?base64_encoded=false&wait=true"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return model.ExecutionOutcome{}, fmt.Errorf("build request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set(c.authHeader, c.authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.ExecutionOutcome{}, fmt.Errorf("execution request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.ExecutionOutcome{}, fmt.Errorf("read execution response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.ExecutionOutcome{}, fmt.Errorf("execution service returned %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	var details judge0Details
	if err := json.Unmarshal(raw, &details); err != nil {
		return model.ExecutionOutcome{}, fmt.Errorf("decode execution response failed: %w", err)
	}
	if details.Status == nil || details.Status.Description == "" {
		return model.ExecutionOutcome{}, fmt.Errorf("execution response has no status")
	}
	return details.outcome(), nil
}

func (d judge0Details) outcome() model.ExecutionOutcome {
	out := model.ExecutionOutcome{
		Succeeded:     true,
		Stdout:        deref(d.Stdout),
		Stderr:        deref(d.Stderr),
		Status:        d.Status.Description,
		CompileOutput: d.CompileOutput,
	}
	if d.Time != nil {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(*d.Time), 64); err == nil {
			out.TimeMs = int64(math.Round(secs * 1000))
		}
	}
	if d.Memory != nil {
		out.MemoryKb = *d.Memory
	}
	if d.Message != nil && *d.Message != "" && d.Status.Description != model.StatusAccepted {
		out.Error = *d.Message
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
