package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "autograde/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{InvalidParams, "Invalid parameters"},
		{PolicyInvalid, "Unknown comparison policy"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{GradingConfigInvalid, 400},
		{PolicyInvalid, 400},
		{ValidationFailed, 400},
		{Unauthorized, 401},
		{TokenInvalid, 401},
		{Forbidden, 403},
		{ResultNotFound, 404},
		{GradingQueueFull, 429},
		{ExecutorUnavailable, 503},
		{InternalServerError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestWrapKeepsInnermostCode(t *testing.T) {
	inner := New(PolicyInvalid)
	wrapped := Wrap(fmt.Errorf("decode: %w", inner), InternalServerError)
	if wrapped.Code != PolicyInvalid {
		t.Fatalf("expected inner code to win, got %d", wrapped.Code)
	}
}

func TestWrapfUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrapf(cause, CacheError, "save result failed")
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the cause")
	}
	if err.Error() != "save result failed: connection refused" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if Wrapf(nil, CacheError, "x") != nil {
		t.Fatalf("expected nil for nil cause")
	}
}

func TestGetCodeAndIs(t *testing.T) {
	if GetCode(nil) != Success {
		t.Fatalf("nil error should map to Success")
	}
	if GetCode(errors.New("plain")) != InternalServerError {
		t.Fatalf("plain error should map to InternalServerError")
	}
	err := fmt.Errorf("outer: %w", New(GradingConfigInvalid))
	if GetCode(err) != GradingConfigInvalid {
		t.Fatalf("expected code through chain")
	}
	if !Is(err, GradingConfigInvalid) || Is(err, PolicyInvalid) {
		t.Fatalf("Is mismatch")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("groups[0].weight", "must be non-negative")
	if err.Code != ValidationFailed {
		t.Fatalf("unexpected code %d", err.Code)
	}
	if err.Details["field"] != "groups[0].weight" {
		t.Fatalf("missing field detail: %v", err.Details)
	}
	if err.Error() != "groups[0].weight: must be non-negative" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestGetErrorWrapsPlainError(t *testing.T) {
	cause := errors.New("boom")
	e := GetError(cause)
	if e.Code != InternalServerError || !errors.Is(e, cause) {
		t.Fatalf("unexpected wrap: %+v", e)
	}
}
