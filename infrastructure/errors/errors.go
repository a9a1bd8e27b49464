// Package errors provides unified error handling for the compiler and its
// surrounding tooling.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code.
type ErrorCode string

const (
	// Compile-time errors (1xxx) — spec.md §7.
	ErrCodeUnsupportedSyntax     ErrorCode = "COMPILE_1001"
	ErrCodeUnknownCallee         ErrorCode = "COMPILE_1002"
	ErrCodeArityMismatch         ErrorCode = "COMPILE_1003"
	ErrCodeUnsupportedTest       ErrorCode = "COMPILE_1004"
	ErrCodeDuplicateRegistration ErrorCode = "COMPILE_1005"
	ErrCodeWithScopeMisuse       ErrorCode = "COMPILE_1006"
	ErrCodeUnsupportedException  ErrorCode = "COMPILE_1007"
	ErrCodeUndefinedVariable     ErrorCode = "COMPILE_1008"
	ErrCodeMissingReturnSchema   ErrorCode = "COMPILE_1009"

	// Parse errors (2xxx).
	ErrCodeParseFailure   ErrorCode = "PARSE_2001"
	ErrCodeNotSingleFunc  ErrorCode = "PARSE_2002"
	ErrCodeBadDefault     ErrorCode = "PARSE_2003"

	// Validation errors (3xxx) — request/config validation for ambient tooling.
	ErrCodeInvalidInput     ErrorCode = "VAL_3001"
	ErrCodeMissingParameter ErrorCode = "VAL_3002"

	// Resource errors (4xxx).
	ErrCodeNotFound      ErrorCode = "RES_4001"
	ErrCodeAlreadyExists ErrorCode = "RES_4002"
	ErrCodeConflict      ErrorCode = "RES_4003"

	// Service errors (5xxx).
	ErrCodeInternal          ErrorCode = "SVC_5001"
	ErrCodeDatabaseError     ErrorCode = "SVC_5002"
	ErrCodeTimeout           ErrorCode = "SVC_5003"
	ErrCodeRateLimitExceeded ErrorCode = "SVC_5004"

	// Auth errors (6xxx) — the HTTP inspector surface, §4.12.
	ErrCodeUnauthorized ErrorCode = "AUTH_6001"
	ErrCodeInvalidToken ErrorCode = "AUTH_6002"
	ErrCodeTokenExpired ErrorCode = "AUTH_6003"
)

// CompileError represents a structured error with code, message, HTTP status,
// and enough context to point a user back at the offending source.
type CompileError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *CompileError) WithDetails(key string, value interface{}) *CompileError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new CompileError.
func New(code ErrorCode, message string, httpStatus int) *CompileError {
	return &CompileError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a CompileError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *CompileError {
	return &CompileError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Compile-time errors — spec.md §7.

// UnsupportedSyntax reports an AST shape outside the documented subset,
// including a repr of the offending source.
func UnsupportedSyntax(repr string) *CompileError {
	return New(ErrCodeUnsupportedSyntax, "unsupported syntax", http.StatusUnprocessableEntity).
		WithDetails("source", repr)
}

// UnknownCallee reports a call whose target cannot be resolved.
func UnknownCallee(name string) *CompileError {
	return New(ErrCodeUnknownCallee, "unknown callee", http.StatusUnprocessableEntity).
		WithDetails("callee", name)
}

// ArityMismatch reports a return-tuple/target-count mismatch against a
// declared output schema.
func ArityMismatch(fn string, want, got int) *CompileError {
	return New(ErrCodeArityMismatch, "arity mismatch", http.StatusUnprocessableEntity).
		WithDetails("function", fn).
		WithDetails("want", want).
		WithDetails("got", got)
}

// UnsupportedTest reports a condition shape not covered by the condition
// builder.
func UnsupportedTest(repr string) *CompileError {
	return New(ErrCodeUnsupportedTest, "unsupported condition", http.StatusUnprocessableEntity).
		WithDetails("test", repr)
}

// DuplicateRegistration reports two compute units sharing a name.
func DuplicateRegistration(name string) *CompileError {
	return New(ErrCodeDuplicateRegistration, "duplicate compute unit registration", http.StatusConflict).
		WithDetails("name", name)
}

// WithScopeMisuse reports a `with` block that isn't a single Retry(...) item.
func WithScopeMisuse(repr string) *CompileError {
	return New(ErrCodeWithScopeMisuse, "unsupported with-block", http.StatusUnprocessableEntity).
		WithDetails("with", repr)
}

// UnsupportedException reports a catch arm other than the catch-all.
func UnsupportedException(kind string) *CompileError {
	return New(ErrCodeUnsupportedException, "unsupported exception type", http.StatusUnprocessableEntity).
		WithDetails("kind", kind)
}

// UndefinedVariable reports a read of a variable not yet written in scope.
func UndefinedVariable(name string) *CompileError {
	return New(ErrCodeUndefinedVariable, "variable read before assignment", http.StatusUnprocessableEntity).
		WithDetails("name", name)
}

// MissingReturnSchema reports an orchestrator with no declared/annotated
// output schema.
func MissingReturnSchema(fn string) *CompileError {
	return New(ErrCodeMissingReturnSchema, "missing return schema", http.StatusUnprocessableEntity).
		WithDetails("function", fn)
}

// Parse errors.

func ParseFailure(file string, err error) *CompileError {
	return Wrap(ErrCodeParseFailure, "failed to parse source", http.StatusBadRequest, err).
		WithDetails("file", file)
}

func NotSingleFunction(file string) *CompileError {
	return New(ErrCodeNotSingleFunc, "source must declare a single top-level function", http.StatusUnprocessableEntity).
		WithDetails("file", file)
}

func BadDefault(param string) *CompileError {
	return New(ErrCodeBadDefault, "optional parameter default must be a literal", http.StatusUnprocessableEntity).
		WithDetails("parameter", param)
}

// Ambient-tooling errors (registry store, HTTP inspector).

func InvalidInput(field, reason string) *CompileError {
	return New(ErrCodeInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *CompileError {
	return New(ErrCodeMissingParameter, "missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

func NotFound(resource, id string) *CompileError {
	return New(ErrCodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func AlreadyExists(resource, id string) *CompileError {
	return New(ErrCodeAlreadyExists, "resource already exists", http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *CompileError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

func Internal(message string, err error) *CompileError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func DatabaseError(operation string, err error) *CompileError {
	return Wrap(ErrCodeDatabaseError, "database operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

func Timeout(operation string) *CompileError {
	return New(ErrCodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

func RateLimitExceeded(limit int, window string) *CompileError {
	return New(ErrCodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func Unauthorized(message string) *CompileError {
	return New(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(err error) *CompileError {
	return Wrap(ErrCodeInvalidToken, "invalid authentication token", http.StatusUnauthorized, err)
}

func TokenExpired() *CompileError {
	return New(ErrCodeTokenExpired, "authentication token has expired", http.StatusUnauthorized)
}

// Helper functions.

// IsCompileError checks if an error is a CompileError.
func IsCompileError(err error) bool {
	var compileErr *CompileError
	return errors.As(err, &compileErr)
}

// GetCompileError extracts a CompileError from an error chain.
func GetCompileError(err error) *CompileError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return compileErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	if compileErr := GetCompileError(err); compileErr != nil {
		return compileErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
