// Package errors provides the standardized error taxonomy for build runs.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Request boundary errors.
const (
	ErrCodeAuthFailed       ErrorCode = "AUTH_FAILED"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeTaskNotFound     ErrorCode = "TASK_NOT_FOUND"
)

// Pipeline errors.
const (
	ErrCodeGenerationDegraded ErrorCode = "GENERATION_DEGRADED"
	ErrCodePrecheckFailed     ErrorCode = "PRECHECK_FAILED"
	ErrCodePublishFatal       ErrorCode = "PUBLISH_FATAL"
	ErrCodePublishSoftWarning ErrorCode = "PUBLISH_SOFT_WARNING"
	ErrCodeNotifyFailed       ErrorCode = "NOTIFY_FAILED"
)

// Infrastructure errors.
const (
	ErrCodeDatabaseInsertFailed ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeRegistryUnavailable  ErrorCode = "REGISTRY_UNAVAILABLE"
	ErrCodeAlertPublishFailed   ErrorCode = "ALERT_PUBLISH_FAILED"
	ErrCodeExternalService      ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout              ErrorCode = "TIMEOUT"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *StandardError) Unwrap() error { return e.cause }

// WithMetadata returns e after attaching a metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	e := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// BPMNError carries a failure back to the workflow engine.
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

func NewAuthError(details string) *StandardError {
	e := newError(ErrCodeAuthFailed, "Invalid shared secret", nil, false)
	e.Details = details
	return e
}

func NewValidationError(details string) *StandardError {
	e := newError(ErrCodeValidationFailed, "Build request validation failed", nil, false)
	e.Details = details
	return e
}

func NewTaskNotFoundError(taskID string) *StandardError {
	e := newError(ErrCodeTaskNotFound, "No recorded round 1 for task", nil, false)
	e.Details = fmt.Sprintf("taskId: %s", taskID)
	return e
}

func NewGenerationDegradedError(err error) *StandardError {
	return newError(ErrCodeGenerationDegraded, "Model generation degraded to templates", err, false)
}

func NewPrecheckFailedError(check string, err error) *StandardError {
	return newError(ErrCodePrecheckFailed, fmt.Sprintf("Pre-publish check %q failed", check), err, false)
}

func NewPublishFatalError(step string, err error) *StandardError {
	return newError(ErrCodePublishFatal, fmt.Sprintf("Publish step %q failed", step), err, true).
		WithMetadata("step", step)
}

func NewPublishSoftWarning(step string, err error) *StandardError {
	return newError(ErrCodePublishSoftWarning, fmt.Sprintf("Publish step %q degraded", step), err, false).
		WithMetadata("step", step)
}

func NewNotifyFailedError(attempts int, err error) *StandardError {
	return newError(ErrCodeNotifyFailed, "Evaluation callback failed", err, true).
		WithMetadata("attempts", attempts)
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert operation failed", err, true)
}

func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, fmt.Sprintf("Database query %q failed", queryType), err, true)
}

func NewRegistryUnavailableError(err error) *StandardError {
	return newError(ErrCodeRegistryUnavailable, "Task registry unavailable", err, true)
}

func NewAlertPublishFailedError(err error) *StandardError {
	return newError(ErrCodeAlertPublishFailed, "Operator alert could not be published", err, true)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service %s failed", service), err, true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("%s timed out", service), err, true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// CodeOf returns the code of the first StandardError in err's chain.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsClientError reports whether err should be answered as a caller mistake.
func IsClientError(err error) bool {
	switch CodeOf(err) {
	case ErrCodeAuthFailed, ErrCodeValidationFailed, ErrCodeTaskNotFound:
		return true
	}
	return false
}

// GetRetryCount returns how many times the workflow engine should retry a job.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodePublishFatal,
		ErrCodeDatabaseInsertFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeRegistryUnavailable,
		ErrCodeExternalService:
		return 3
	case ErrCodeTimeout:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for the workflow engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"errorCategory":     GetErrorCategory(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case code == ErrCodeAuthFailed || code == ErrCodeValidationFailed || code == ErrCodeTaskNotFound:
		return "CLIENT"
	case strings.HasPrefix(codeStr, "PUBLISH") || code == ErrCodePrecheckFailed:
		return "PUBLISH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "REGISTRY"):
		return "STORAGE"
	case strings.Contains(codeStr, "NOTIFY") || strings.Contains(codeStr, "ALERT"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "GENERATION"):
		return "GENERATION"
	default:
		return "OTHER"
	}
}
