package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autograde/internal/common/http/middleware"
	pkgerrors "autograde/pkg/errors"
	"autograde/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Code int `json:"code"`
}

func TestTraceContextMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.TraceContextMiddleware())
	router.GET("/trace", func(c *gin.Context) {
		ctxTrace, _ := c.Request.Context().Value(contextkey.TraceID).(string)
		c.String(http.StatusOK, ctxTrace)
	})

	req := httptest.NewRequest(http.MethodGet, "/trace", nil)
	req.Header.Set("X-Trace-Id", "trace-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Body.String() != "trace-1" {
		t.Fatalf("expected trace id in context, got %q", rec.Body.String())
	}
	if rec.Header().Get("X-Trace-Id") != "trace-1" {
		t.Fatalf("trace header not echoed")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id should be generated")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trace", nil))
	if rec.Body.String() == "" || rec.Body.String() != rec.Header().Get("X-Trace-Id") {
		t.Fatalf("generated trace id mismatch: body=%q header=%q", rec.Body.String(), rec.Header().Get("X-Trace-Id"))
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := middleware.NewAuthenticator("test-secret", "autograde")

	router := gin.New()
	router.GET("/teacher", middleware.AuthMiddleware(auth, middleware.RoleTeacher), func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		c.Header("X-User-Id", p.Subject)
		c.Status(http.StatusOK)
	})
	router.GET("/any", middleware.AuthMiddleware(auth), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	teacher := mustIssue(t, auth, "7", middleware.RoleTeacher, time.Hour)
	student := mustIssue(t, auth, "9", middleware.RoleStudent, time.Hour)
	expired := mustIssue(t, auth, "9", middleware.RoleStudent, -time.Minute)
	foreign := mustIssue(t, middleware.NewAuthenticator("other", "autograde"), "9", middleware.RoleTeacher, time.Hour)

	cases := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
		wantCode   pkgerrors.ErrorCode
		wantUserID string
	}{
		{name: "missing token", path: "/any", wantStatus: http.StatusUnauthorized, wantCode: pkgerrors.TokenInvalid},
		{name: "malformed header", path: "/any", authHeader: "Token abc", wantStatus: http.StatusUnauthorized, wantCode: pkgerrors.TokenInvalid},
		{name: "expired token", path: "/any", authHeader: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantCode: pkgerrors.TokenExpired},
		{name: "wrong secret", path: "/any", authHeader: "Bearer " + foreign, wantStatus: http.StatusUnauthorized, wantCode: pkgerrors.TokenInvalid},
		{name: "student on open route", path: "/any", authHeader: "Bearer " + student, wantStatus: http.StatusOK},
		{name: "student on teacher route", path: "/teacher", authHeader: "Bearer " + student, wantStatus: http.StatusForbidden, wantCode: pkgerrors.Forbidden},
		{name: "teacher on teacher route", path: "/teacher", authHeader: "Bearer " + teacher, wantStatus: http.StatusOK, wantUserID: "7"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			if tc.wantCode != 0 {
				var resp envelope
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("decode response failed: %v", err)
				}
				if resp.Code != int(tc.wantCode) {
					t.Fatalf("unexpected error code: %d", resp.Code)
				}
			}
			if tc.wantUserID != "" && rec.Header().Get("X-User-Id") != tc.wantUserID {
				t.Fatalf("unexpected user id header: %s", rec.Header().Get("X-User-Id"))
			}
		})
	}
}

func TestPrincipalPrivileged(t *testing.T) {
	if (middleware.Principal{Role: middleware.RoleStudent}).Privileged() {
		t.Fatalf("student must not be privileged")
	}
	if !(middleware.Principal{Role: middleware.RoleTeacher}).Privileged() || !(middleware.Principal{Role: middleware.RoleService}).Privileged() {
		t.Fatalf("teacher and service must be privileged")
	}
}

func mustIssue(t *testing.T, auth *middleware.Authenticator, subject, role string, ttl time.Duration) string {
	t.Helper()
	token, err := auth.Issue(subject, role, ttl)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	return token
}
