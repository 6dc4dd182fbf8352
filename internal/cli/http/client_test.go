package httpclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autograde/internal/cli/command"
	httpclient "autograde/internal/cli/http"
	appErr "autograde/pkg/errors"
)

type seenRequest struct {
	method string
	path   string
	auth   string
	ctype  string
	body   string
}

func newServer(t *testing.T, status int, body string, seen *seenRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		*seen = seenRequest{
			method: r.Method,
			path:   r.URL.EscapedPath(),
			auth:   r.Header.Get("Authorization"),
			ctype:  r.Header.Get("Content-Type"),
			body:   string(data),
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDoDecodesSuccessEnvelope(t *testing.T) {
	var seen seenRequest
	srv := newServer(t, http.StatusAccepted, `{"code":10000,"message":"Accepted","data":{"jobId":"j-1"},"traceId":"tr-1"}`, &seen)
	token := "abc"
	client := httpclient.New(srv.URL+"/", time.Second, func() string { return token })

	resp, err := client.Do(context.Background(), command.Request{Method: "POST", Path: "/api/v1/grading/jobs", Body: []byte(`{"code":"x"}`)})
	if err != nil {
		t.Fatalf("do failed: %v", err)
	}
	if seen.method != "POST" || seen.path != "/api/v1/grading/jobs" || seen.body != `{"code":"x"}` {
		t.Fatalf("unexpected request: %+v", seen)
	}
	if seen.auth != "Bearer abc" || seen.ctype != "application/json" {
		t.Fatalf("unexpected headers: %+v", seen)
	}
	if resp.StatusCode != http.StatusAccepted || resp.Envelope == nil || resp.Envelope.TraceID != "tr-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if string(resp.Envelope.Data) != `{"jobId":"j-1"}` {
		t.Fatalf("unexpected data: %s", resp.Envelope.Data)
	}
	if err := resp.Err(); err != nil {
		t.Fatalf("success must not be an error: %v", err)
	}

	token = ""
	if _, err := client.Do(context.Background(), command.Request{Method: "GET", Path: "/x"}); err != nil {
		t.Fatalf("do failed: %v", err)
	}
	if seen.auth != "" || seen.ctype != "" {
		t.Fatalf("empty token and body must not set headers: %+v", seen)
	}
}

func TestResponseErrCarriesGradingCode(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   appErr.ErrorCode
		msg    string
	}{
		{"result not found", http.StatusNotFound, `{"code":13200,"message":"Grading result not found","traceId":"tr-2"}`, appErr.ResultNotFound, "Grading result not found"},
		{"queue full", http.StatusTooManyRequests, `{"code":13100,"message":"busy"}`, appErr.GradingQueueFull, "busy"},
		{"proxy page", http.StatusBadGateway, `<html>bad gateway</html>`, appErr.ServiceUnavailable, "HTTP 502: <html>bad gateway</html>"},
		{"plain forbidden", http.StatusForbidden, ``, appErr.Forbidden, "HTTP 403: "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen seenRequest
			srv := newServer(t, tc.status, tc.body, &seen)
			resp, err := httpclient.New(srv.URL, time.Second, nil).Do(context.Background(), command.Request{Method: "GET", Path: "/r"})
			if err != nil {
				t.Fatalf("api failures are not transport errors: %v", err)
			}
			apiErr := resp.Err()
			if appErr.GetCode(apiErr) != tc.code {
				t.Fatalf("expected code %d, got %v", tc.code, apiErr)
			}
			if apiErr.Error() != tc.msg {
				t.Fatalf("expected message %q, got %q", tc.msg, apiErr.Error())
			}
		})
	}
}

func TestDoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := httpclient.New("http://unused", time.Second, nil)
	client.SetBaseURL(url)
	client.SetTimeout(0)
	if client.BaseURL() != url {
		t.Fatalf("base url not updated: %s", client.BaseURL())
	}
	if _, err := client.Do(context.Background(), command.Request{Method: "GET", Path: "/"}); err == nil {
		t.Fatalf("expected connection error")
	}
}
