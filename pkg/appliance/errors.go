package appliance

import (
	"errors"
	"fmt"
	"net/http"
)

// RequestError is an ErrorResult returned by the appliance for a well-formed call.
type RequestError struct {
	// ID is the appliance exception identifier, e.g. exception.webservices.login.failed.
	ID string `json:"id"`

	// Details is the human-readable reason.
	Details string `json:"details"`

	// Action is the remedy the appliance suggests.
	Action string `json:"action,omitempty"`

	// CommandOutput carries remote command output when the failure came from a host.
	CommandOutput string `json:"commandOutput,omitempty"`

	// StatusCode is the HTTP status of the response that carried the error.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("appliance rejected request (%s): %s", e.ID, e.Details)
	}
	return fmt.Sprintf("appliance rejected request: %s", e.Details)
}

// HTTPError reports a transport or protocol level failure.
type HTTPError struct {
	// Method and URL identify the call.
	Method string
	URL    string

	// StatusCode is zero when no response was received.
	StatusCode int

	// Transport is true when the request never produced a response.
	Transport bool

	// Timeout is true when the per-call deadline expired.
	Timeout bool

	Err error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s %s: timed out: %v", e.Method, e.URL, e.Err)
	case e.Transport:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: HTTP %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
}

// Unwrap returns the underlying error.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err is the appliance refusing credentials.
func IsAuthFailure(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		if reqErr.StatusCode == http.StatusUnauthorized || reqErr.StatusCode == http.StatusForbidden {
			return true
		}
		return reqErr.ID == "exception.webservices.login.failed"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden
	}
	return false
}

// IsTransport reports whether err never reached the appliance or timed out.
func IsTransport(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Transport || httpErr.Timeout || httpErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// IsNotFound reports whether the appliance answered that an object does not exist.
func IsNotFound(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode == http.StatusNotFound || reqErr.ID == "exception.webservices.notfound"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound
	}
	return false
}
