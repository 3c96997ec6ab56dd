package dto

import (
	"net/http"
	"strings"
)

// Transport-level error codes. Domain codes come through verbatim from
// shared.DomainError.
const (
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeInternal   = "INTERNAL_ERROR"
)

// errorCodeHTTPStatus maps domain error codes to HTTP status codes.
// Idempotency-as-success cases (already billed) never reach this table; they
// respond 200 with the existing event.
var errorCodeHTTPStatus = map[string]int{
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeNotFound:   http.StatusNotFound,
	ErrCodeInternal:   http.StatusInternalServerError,

	"INVALID_INPUT": http.StatusBadRequest,

	// Conflicts with existing state
	"ALREADY_EXISTS":         http.StatusConflict,
	"CONCURRENCY_CONFLICT":   http.StatusConflict,
	"DUPLICATE_ACTIVE_METER": http.StatusConflict,

	// Business rule violations
	"OUT_OF_ORDER_READ":         http.StatusUnprocessableEntity,
	"NO_RATE_PLAN_FOUND":        http.StatusUnprocessableEntity,
	"RATE_PLAN_INACTIVE":        http.StatusUnprocessableEntity,
	"INSUFFICIENT_READ_HISTORY": http.StatusUnprocessableEntity,
	"METER_INACTIVE":            http.StatusUnprocessableEntity,
	"READ_METER_MISMATCH":       http.StatusUnprocessableEntity,
	"CLASS_NOT_METERED":         http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for a domain error code.
// Validation codes all start with INVALID_; unknown codes are treated as
// internal errors so nothing leaks as a silent 200.
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	if strings.HasPrefix(code, "INVALID_") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
