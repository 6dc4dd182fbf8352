package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Auth errors
// 13000-13999: Grading errors
const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError  ErrorCode = 10100
	RecordNotFound ErrorCode = 10101

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Auth Errors (11000-11999) ==========
	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// ========== Grading Errors (13000-13999) ==========

	// Configuration (13000-13099)
	GradingConfigInvalid ErrorCode = 13000
	PolicyInvalid        ErrorCode = 13001
	TestPackNotFound     ErrorCode = 13002
	LanguageNotSupported ErrorCode = 13003
	CodeEmpty            ErrorCode = 13004

	// Execution (13100-13199)
	GradingQueueFull    ErrorCode = 13100
	GradingSystemError  ErrorCode = 13101
	ExecutorUnavailable ErrorCode = 13102

	// Results (13200-13299)
	ResultNotFound ErrorCode = 13200
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized",
	Forbidden:           "Forbidden",
	TooManyRequests:     "Too many requests",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:  "Database error",
	RecordNotFound: "Record not found",

	CacheError: "Cache error",
	CacheMiss:  "Cache miss",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	GradingConfigInvalid: "Grading configuration is invalid",
	PolicyInvalid:        "Unknown comparison policy",
	TestPackNotFound:     "Test pack not found",
	LanguageNotSupported: "Programming language not supported",
	CodeEmpty:            "Source code is empty",

	GradingQueueFull:    "Grading queue is full, please try again later",
	GradingSystemError:  "Grading system error",
	ExecutorUnavailable: "Execution service unavailable",

	ResultNotFound: "Grading result not found",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return http.StatusOK
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return http.StatusUnauthorized
	case c == Forbidden:
		return http.StatusForbidden
	case c == NotFound, c == RecordNotFound, c == ResultNotFound, c == TestPackNotFound:
		return http.StatusNotFound
	case c == TooManyRequests, c == GradingQueueFull:
		return http.StatusTooManyRequests
	case c == ServiceUnavailable, c == ExecutorUnavailable:
		return http.StatusServiceUnavailable
	case c == Timeout:
		return http.StatusGatewayTimeout
	case c >= 10300 && c < 10400: // Validation errors
		return http.StatusBadRequest
	case c >= 13000 && c < 13100: // Grading configuration errors
		return http.StatusBadRequest
	case c == InvalidParams:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
