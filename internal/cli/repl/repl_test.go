package repl

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autograde/internal/cli/command"
	"autograde/internal/cli/config"
	"autograde/internal/cli/state"
	"autograde/internal/common/http/middleware"
	appErr "autograde/pkg/errors"
)

type apiStub struct {
	path   string
	auth   string
	body   string
	status int
	reply  string
}

func (a *apiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	a.path = r.Method + " " + r.URL.Path
	a.auth = r.Header.Get("Authorization")
	a.body = string(data)
	w.WriteHeader(a.status)
	_, _ = io.WriteString(w, a.reply)
}

func newSession(t *testing.T, stub *apiStub, token string) (*Session, *bytes.Buffer, *state.Store) {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	cfg := config.Config{
		Server:  config.ServerConfig{BaseURL: srv.URL, Timeout: time.Second},
		Session: config.SessionConfig{HistoryPath: filepath.Join(t.TempDir(), "history"), Token: token},
	}
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	var out bytes.Buffer
	s, err := New(cfg, command.Registry(), store, &out)
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	return s, &out, store
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"Language=python", "code=a=b"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if params.Get("language") != "python" || params.Get("code") != "a=b" {
		t.Fatalf("unexpected params: %v", params)
	}
	for _, bad := range []string{"oops", "=value"} {
		if _, err := parseParams([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestExecuteResult(t *testing.T) {
	stub := &apiStub{status: http.StatusOK, reply: `{"code":10000,"message":"Success","data":{"submissionId":"s-1","status":"finished"},"traceId":"tr-9"}`}
	s, out, _ := newSession(t, stub, "tok")

	if err := s.Execute(context.Background(), `grading result id=s-1`); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if stub.path != "GET /api/v1/grading/submissions/s-1" || stub.auth != "Bearer tok" {
		t.Fatalf("unexpected request: %+v", stub)
	}
	printed := out.String()
	if !strings.Contains(printed, "HTTP 200") || !strings.Contains(printed, "trace=tr-9") {
		t.Fatalf("missing header: %s", printed)
	}
	if !strings.Contains(printed, `"submissionId": "s-1"`) {
		t.Fatalf("expected indented data, got %s", printed)
	}
}

func TestExecuteReportsGradingErrorCode(t *testing.T) {
	stub := &apiStub{status: http.StatusNotFound, reply: `{"code":13200,"message":"Grading result not found"}`}
	s, _, _ := newSession(t, stub, "")

	err := s.Execute(context.Background(), "grading history id=nope")
	if appErr.GetCode(err) != appErr.ResultNotFound {
		t.Fatalf("expected result not found, got %v", err)
	}
	if stub.auth != "" {
		t.Fatalf("no token means no auth header, got %q", stub.auth)
	}
}

func TestExecuteGradeSendsCamelCaseBody(t *testing.T) {
	stub := &apiStub{status: http.StatusOK, reply: `{"code":10000,"message":"Success","data":{}}`}
	s, _, _ := newSession(t, stub, "tok")

	line := `grading grade code="print(1)" lang=python submission_id=s-2 config='{"tests":[{"input":"","expectedOutput":"1","points":1}]}'`
	if err := s.Execute(context.Background(), line); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if stub.path != "POST /api/v1/grading/grade" {
		t.Fatalf("unexpected request: %s", stub.path)
	}
	for _, want := range []string{`"submissionId":"s-2"`, `"code":"print(1)"`, `"expectedOutput":"1"`} {
		if !strings.Contains(stub.body, want) {
			t.Fatalf("body %s missing %s", stub.body, want)
		}
	}
}

func TestExecuteWithoutTerminalReportsMissingFields(t *testing.T) {
	stub := &apiStub{status: http.StatusOK}
	s, _, _ := newSession(t, stub, "")

	err := s.Execute(context.Background(), "grading grade language=python")
	if err == nil || !strings.Contains(err.Error(), "missing code (or source_file=path)") {
		t.Fatalf("expected missing field error, got %v", err)
	}
	if stub.path != "" {
		t.Fatalf("nothing must be sent, got %s", stub.path)
	}
}

func TestTokenCommands(t *testing.T) {
	s, out, store := newSession(t, &apiStub{status: http.StatusOK}, "")
	ctx := context.Background()

	auth := middleware.NewAuthenticator("secret", "autograde")
	token, err := auth.Issue("s-3", middleware.RoleStudent, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if err := s.Execute(ctx, "set token "+token); err != nil {
		t.Fatalf("set token failed: %v", err)
	}
	if saved, _ := store.Load(); saved.AccessToken != token {
		t.Fatalf("token not persisted: %+v", saved)
	}
	if err := s.Execute(ctx, "show token"); err != nil {
		t.Fatalf("show token failed: %v", err)
	}
	if !strings.Contains(out.String(), "subject: s-3  role: student") || strings.Contains(out.String(), token) {
		t.Fatalf("unexpected token display: %s", out.String())
	}

	if err := s.Execute(ctx, "set token"); err != nil {
		t.Fatalf("clear token failed: %v", err)
	}
	if saved, _ := store.Load(); saved.AccessToken != "" || s.token != "" {
		t.Fatalf("token not cleared")
	}
}

func TestSystemCommands(t *testing.T) {
	s, out, _ := newSession(t, &apiStub{status: http.StatusOK}, "")
	ctx := context.Background()
	cases := []struct {
		line    string
		wantErr bool
	}{
		{"help", false},
		{"set timeout 5s", false},
		{"set timeout soon", true},
		{"set base http://localhost:1/", false},
		{"set colour red", true},
		{"show config", false},
		{"show nothing", true},
		{"grading", true},
		{"grading explode", true},
	}
	for _, tc := range cases {
		if err := s.Execute(ctx, tc.line); (err != nil) != tc.wantErr {
			t.Fatalf("%q: unexpected error state %v", tc.line, err)
		}
	}
	if !strings.Contains(out.String(), "base: http://localhost:1") {
		t.Fatalf("base not applied: %s", out.String())
	}
	if err := s.Execute(ctx, "exit"); err != errExit {
		t.Fatalf("exit should stop the session, got %v", err)
	}
}
