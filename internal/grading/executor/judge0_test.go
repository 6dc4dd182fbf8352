package executor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"autograde/internal/grading/executor"
	"autograde/internal/grading/model"
	"autograde/internal/grading/observer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type capturedSubmission struct {
	SourceCode   string  `json:"source_code"`
	LanguageID   int     `json:"language_id"`
	Stdin        string  `json:"stdin"`
	CPUTimeLimit float64 `json:"cpu_time_limit"`
	MemoryLimit  int64   `json:"memory_limit"`
}

type fakeJudge0 struct {
	mu       sync.Mutex
	last     capturedSubmission
	token    string
	status   int
	response string
}

func (f *fakeJudge0) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.URL.Path != "/submissions" || r.URL.Query().Get("wait") != "true" {
		http.NotFound(w, r)
		return
	}
	f.token = r.Header.Get("X-Auth-Token")
	_ = json.NewDecoder(r.Body).Decode(&f.last)
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	_, _ = w.Write([]byte(f.response))
}

type fallbackCounter struct {
	mu        sync.Mutex
	fallbacks []string
	statuses  []string
	languages []string
}

func (c *fallbackCounter) ObserveRun(context.Context, string, string, time.Duration) {}
func (c *fallbackCounter) ObserveExecution(_ context.Context, language string, status string, _ int64) {
	c.mu.Lock()
	c.statuses = append(c.statuses, status)
	c.languages = append(c.languages, language)
	c.mu.Unlock()
}
func (c *fallbackCounter) ObserveLanguageFallback(_ context.Context, fallback string) {
	c.mu.Lock()
	c.fallbacks = append(c.fallbacks, fallback)
	c.mu.Unlock()
}
func (c *fallbackCounter) JobStarted(context.Context)  {}
func (c *fallbackCounter) JobFinished(context.Context) {}

func newClient(t *testing.T, url string, metrics *fallbackCounter) *executor.Judge0Client {
	t.Helper()
	client, err := executor.NewJudge0Client(executor.Config{
		BaseURL:         url,
		AuthToken:       "secret",
		RequestTimeout:  2 * time.Second,
		DefaultLanguage: "python",
	}, metrics)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return client
}

func TestRunAccepted(t *testing.T) {
	fake := &fakeJudge0{response: `{"stdout":"3\n","stderr":null,"compile_output":null,"message":null,"time":"0.012","memory":3180,"status":{"id":3,"description":"Accepted"}}`}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	out := newClient(t, srv.URL, &fallbackCounter{}).Run(context.Background(), model.ExecutionRequest{
		Code: "print(1+2)", Language: "Python3", Stdin: "1 2", TimeLimitSeconds: 1.5, MemoryLimitKb: 65536,
	})
	if !out.Succeeded || out.Status != "Accepted" || out.Stdout != "3\n" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.TimeMs != 12 || out.MemoryKb != 3180 || out.CompileOutput != nil || out.Error != "" {
		t.Fatalf("unexpected resource mapping: %+v", out)
	}
	if fake.last.LanguageID != 71 || fake.last.Stdin != "1 2" || fake.last.CPUTimeLimit != 1.5 || fake.last.MemoryLimit != 65536 {
		t.Fatalf("unexpected submission: %+v", fake.last)
	}
	if fake.token != "secret" {
		t.Fatalf("auth header not sent")
	}
}

func TestRunCompileError(t *testing.T) {
	fake := &fakeJudge0{response: `{"stdout":null,"compile_output":"main.c:1: error","message":"Exited with error status 1","status":{"id":6,"description":"Compilation Error"}}`}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	out := newClient(t, srv.URL, &fallbackCounter{}).Run(context.Background(), model.ExecutionRequest{Code: "x", Language: "c"})
	if !out.Succeeded || out.Status != "Compilation Error" {
		t.Fatalf("judge-reported failure is still a successful transport: %+v", out)
	}
	if out.CompileOutput == nil || *out.CompileOutput != "main.c:1: error" || out.Error == "" {
		t.Fatalf("diagnostics not surfaced: %+v", out)
	}
}

func TestRunUnknownLanguageFallsBack(t *testing.T) {
	fake := &fakeJudge0{response: `{"stdout":"ok","status":{"id":3,"description":"Accepted"}}`}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	metrics := &fallbackCounter{}
	out := newClient(t, srv.URL, metrics).Run(context.Background(), model.ExecutionRequest{Code: "x", Language: "cobol-2077"})
	if !out.Succeeded {
		t.Fatalf("unknown language must not fail: %+v", out)
	}
	if fake.last.LanguageID != 71 {
		t.Fatalf("expected default language id 71, got %d", fake.last.LanguageID)
	}
	if len(metrics.fallbacks) != 1 || metrics.fallbacks[0] != "python" {
		t.Fatalf("fallback not observed: %v", metrics.fallbacks)
	}
	if len(metrics.languages) != 1 || metrics.languages[0] != "python" {
		t.Fatalf("execution must be labelled by the resolved language: %v", metrics.languages)
	}
}

func TestRunLanguageLabelsStayBounded(t *testing.T) {
	fake := &fakeJudge0{response: `{"stdout":"ok","time":"0.010","status":{"id":3,"description":"Accepted"}}`}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	reg := prometheus.NewRegistry()
	rec, err := observer.NewPrometheus(reg)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	client, err := executor.NewJudge0Client(executor.Config{BaseURL: srv.URL, DefaultLanguage: "python"}, rec)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		lang := "lang-" + strings.Repeat("z", i)
		client.Run(context.Background(), model.ExecutionRequest{Code: "x", Language: lang})
	}
	for _, name := range []string{"autograde_language_fallbacks_total", "autograde_execution_time_ms"} {
		n, err := testutil.GatherAndCount(reg, name)
		if err != nil || n != 1 {
			t.Fatalf("%s: expected one series for 50 unknown languages, got %d (%v)", name, n, err)
		}
	}
}

func TestRunTransportFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantErr: "returned 500"},
		{name: "malformed body", body: "{not json", wantErr: "decode execution response"},
		{name: "missing status", body: `{"stdout":"1"}`, wantErr: "no status"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(&fakeJudge0{status: tc.status, response: tc.body})
			defer srv.Close()
			metrics := &fallbackCounter{}
			out := newClient(t, srv.URL, metrics).Run(context.Background(), model.ExecutionRequest{Code: "x", Language: "go"})
			if out.Succeeded || !strings.Contains(out.Error, tc.wantErr) {
				t.Fatalf("unexpected outcome: %+v", out)
			}
			if len(metrics.statuses) != 1 || metrics.statuses[0] != "" {
				t.Fatalf("transport failure not observed: %v", metrics.statuses)
			}
		})
	}

	srv := httptest.NewServer(&fakeJudge0{})
	url := srv.URL
	srv.Close()
	out := newClient(t, url, &fallbackCounter{}).Run(context.Background(), model.ExecutionRequest{Code: "x", Language: "go"})
	if out.Succeeded || out.Error == "" {
		t.Fatalf("connection failure should be reported, got %+v", out)
	}
}

func TestRunHonoursContextDeadline(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	out := newClient(t, srv.URL, &fallbackCounter{}).Run(ctx, model.ExecutionRequest{Code: "x", Language: "go"})
	if out.Succeeded {
		t.Fatalf("expected failure on deadline")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("deadline not honoured")
	}
}

func TestLanguageTable(t *testing.T) {
	table, err := executor.NewLanguageTable("Python", map[string]int{"Haskell": 61})
	if err != nil {
		t.Fatalf("new table failed: %v", err)
	}
	if id, name, fell := table.Resolve(" haskell "); id != 61 || name != "haskell" || fell {
		t.Fatalf("extra language not resolved: %d %q %v", id, name, fell)
	}
	if id, name, fell := table.Resolve("CPP"); id != 54 || name != "cpp" || fell {
		t.Fatalf("builtin lookup should ignore case: %d %q %v", id, name, fell)
	}
	if id, name, fell := table.Resolve(""); id != 71 || name != "python" || !fell {
		t.Fatalf("empty language should fall back: %d %q %v", id, name, fell)
	}
	if _, name, _ := table.Resolve(strings.Repeat("x", 200)); name != "python" {
		t.Fatalf("unknown names must resolve to a table name, got %q", name)
	}
	if _, err := executor.NewLanguageTable("klingon", nil); err == nil {
		t.Fatalf("unknown default language must be rejected")
	}
	if _, err := executor.NewJudge0Client(executor.Config{DefaultLanguage: "python"}, nil); err == nil {
		t.Fatalf("missing base url must be rejected")
	}
}
