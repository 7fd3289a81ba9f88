package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/inventory"
)

// Kind classifies an error for reporting and exit-code mapping.
type Kind string

const (
	// KindConfig indicates an unusable inventory or invalid command input.
	KindConfig Kind = "config"

	// KindAuth indicates the appliance rejected the stored credentials.
	KindAuth Kind = "auth"

	// KindNetwork indicates a transport failure or timeout.
	KindNetwork Kind = "network"

	// KindNotFound indicates a name or reference that resolved to nothing.
	KindNotFound Kind = "not_found"

	// KindAmbiguous indicates a name or prefix that resolved to several objects.
	KindAmbiguous Kind = "ambiguous"

	// KindRequest indicates the appliance rejected a well-formed call.
	KindRequest Kind = "request"

	// KindJob indicates an awaited appliance job ended FAILED or CANCELED.
	KindJob Kind = "job"

	// KindInterrupted indicates the user interrupted the run.
	KindInterrupted Kind = "interrupted"

	// KindInternal indicates a bug or an unexpected condition.
	KindInternal Kind = "internal"
)

// Error is a classified error with engine and operation context.
// nolint:revive // engine.Error reads naturally at call sites
type Error struct {
	// Kind is the error classification.
	Kind Kind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional machine-readable code.
	Code string `json:"code,omitempty"`

	// Engine is the hostname of the appliance involved, if any.
	Engine string `json:"engine,omitempty"`

	// Resource is the object name or reference involved, if any.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	switch {
	case e.Engine != "" && e.Resource != "":
		msg += fmt.Sprintf(" (engine=%s, resource=%s)", e.Engine, e.Resource)
	case e.Engine != "":
		msg += fmt.Sprintf(" (engine=%s)", e.Engine)
	case e.Resource != "":
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// WithEngine adds engine context.
func (e *Error) WithEngine(hostname string) *Error {
	e.Engine = hostname
	return e
}

// WithResource adds resource context.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithOperation adds operation context.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode adds an error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, err error) *Error {
	return newError(KindConfig, message, err)
}

// NewAuthError creates an authentication error.
func NewAuthError(message string, err error) *Error {
	return newError(KindAuth, message, err)
}

// NewNetworkError creates a transport error.
func NewNetworkError(message string, err error) *Error {
	return newError(KindNetwork, message, err)
}

// NewNotFoundError creates a lookup miss.
func NewNotFoundError(message string, err error) *Error {
	return newError(KindNotFound, message, err).WithCode(ErrCodeNotFound)
}

// NewAmbiguousError creates a lookup that matched more than one object.
func NewAmbiguousError(message string, err error) *Error {
	return newError(KindAmbiguous, message, err).WithCode(ErrCodeAmbiguous)
}

// NewRequestError creates an appliance rejection error.
func NewRequestError(message string, err error) *Error {
	return newError(KindRequest, message, err)
}

// NewJobError creates a job failure error.
func NewJobError(message string, err error) *Error {
	return newError(KindJob, message, err)
}

// NewInterruptedError creates an interruption error.
func NewInterruptedError(message string, err error) *Error {
	return newError(KindInterrupted, message, err)
}

// NewInternalError creates an internal error.
func NewInternalError(message string, err error) *Error {
	return newError(KindInternal, message, err).WithCode(ErrCodeInternal)
}

// KindOf classifies err. Appliance and context errors that were never
// wrapped in an *Error are classified by their concrete type.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var cfgErr *inventory.ConfigError
	if errors.As(err, &cfgErr) || errors.Is(err, inventory.ErrDecrypt) {
		return KindConfig
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case appliance.IsAuthFailure(err):
		return KindAuth
	case appliance.IsNotFound(err):
		return KindNotFound
	case appliance.IsTransport(err):
		return KindNetwork
	}
	var reqErr *appliance.RequestError
	if errors.As(err, &reqErr) {
		return KindRequest
	}
	var httpErr *appliance.HTTPError
	if errors.As(err, &httpErr) {
		return KindNetwork
	}
	return KindInternal
}

// Classify wraps err in an *Error unless it already is one.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return newError(KindOf(err), message, err)
}

// IsConfig returns true if err is a configuration error.
func IsConfig(err error) bool { return KindOf(err) == KindConfig }

// IsAuth returns true if err is an authentication error.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsNotFound returns true if err is a lookup miss.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsAmbiguous returns true if err is an ambiguous lookup.
func IsAmbiguous(err error) bool { return KindOf(err) == KindAmbiguous }

// IsJob returns true if err is a job failure.
func IsJob(err error) bool { return KindOf(err) == KindJob }

// IsInterrupted returns true if err stems from a user interrupt.
func IsInterrupted(err error) bool { return KindOf(err) == KindInterrupted }

// Common error codes.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeAmbiguous  = "AMBIGUOUS"
	ErrCodeTimeout    = "TIMEOUT"
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeNoDefault  = "NO_DEFAULT_ENGINE"
	ErrCodeJobFailed  = "JOB_FAILED"
	ErrCodeCanceled   = "JOB_CANCELED"
	ErrCodePanic      = "PANIC"
	ErrCodePolicy     = "POLICY_DENIED"
)
