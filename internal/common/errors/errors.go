// Package errors provides the error taxonomy of the query gateway and its
// mapping onto workflow (BPMN) errors.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Client input
	ErrCodeInvalidQuestion    ErrorCode = "INVALID_QUESTION"
	ErrCodeInvalidRequestBody ErrorCode = "INVALID_REQUEST_BODY"
	ErrCodeMethodNotAllowed   ErrorCode = "METHOD_NOT_ALLOWED"

	// Retrieval-and-generation backend
	ErrCodeBackendInvocationFailed ErrorCode = "BACKEND_INVOCATION_FAILED"
	ErrCodeBackendTimeout          ErrorCode = "BACKEND_TIMEOUT"
	ErrCodeMalformedBackendPayload ErrorCode = "MALFORMED_BACKEND_PAYLOAD"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks across packages.
var (
	ErrInvalidQuestion         = stderrors.New("question is required")
	ErrMalformedBackendPayload = stderrors.New("malformed backend payload")
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// IsClientError reports whether the caller, not the backend, is at fault.
func (e *StandardError) IsClientError() bool {
	switch e.Code {
	case ErrCodeInvalidQuestion, ErrCodeInvalidRequestBody, ErrCodeMethodNotAllowed:
		return true
	default:
		return false
	}
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewInvalidQuestionError creates a non-retryable client error.
func NewInvalidQuestionError() *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidQuestion,
		Message:   "question is required",
		Details:   "question must be a non-empty string",
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     ErrInvalidQuestion,
	}
}

// NewInvalidRequestBodyError creates a non-retryable body parsing error.
func NewInvalidRequestBodyError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequestBody,
		Message:   "invalid request body",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMethodNotAllowedError creates a non-retryable transport error.
func NewMethodNotAllowedError(method string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMethodNotAllowed,
		Message:   "method not allowed",
		Details:   fmt.Sprintf("method: %s", method),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewBackendInvocationError creates a retryable backend error.
func NewBackendInvocationError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBackendInvocationFailed,
		Message:   "retrieve and generate call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewBackendTimeoutError creates a retryable timeout error.
func NewBackendTimeoutError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBackendTimeout,
		Message:   "retrieve and generate call did not finish in time",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewMalformedBackendPayloadError creates a non-retryable payload error.
func NewMalformedBackendPayloadError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedBackendPayload,
		Message:   "backend returned an unusable payload",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     ErrMalformedBackendPayload,
	}
}

// ClassifyBackendError wraps any backend failure into a StandardError.
func ClassifyBackendError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return NewBackendTimeoutError(err)
	case stderrors.Is(err, ErrMalformedBackendPayload):
		return NewMalformedBackendPayloadError(err.Error())
	default:
		return NewBackendInvocationError(err)
	}
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the BPMN error codes caught
// by boundary events. Timeouts and malformed payloads share the backend code.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidQuestion:         "INVALID_QUESTION",
	ErrCodeInvalidRequestBody:      "INVALID_QUESTION",
	ErrCodeBackendInvocationFailed: "BACKEND_INVOCATION_FAILED",
	ErrCodeBackendTimeout:          "BACKEND_INVOCATION_FAILED",
	ErrCodeMalformedBackendPayload: "BACKEND_INVOCATION_FAILED",
}

// GetRetryCount returns how many job retries the workflow engine should
// attempt. The gateway itself never retries.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeBackendInvocationFailed:
		return 2
	case ErrCodeBackendTimeout:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "BACKEND") || strings.HasPrefix(codeStr, "MALFORMED_BACKEND"):
		return "BACKEND"
	case strings.HasPrefix(codeStr, "INVALID") || code == ErrCodeMethodNotAllowed:
		return "CLIENT"
	default:
		return "OTHER"
	}
}
