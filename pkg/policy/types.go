package policy

import (
	"fmt"
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityWarning is logged but lets the command proceed.
	SeverityWarning Severity = "warning"

	// SeverityError refuses the command on the engine.
	SeverityError Severity = "error"

	// SeverityCritical refuses the command on the engine.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity refuses the command.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Validate returns an error for unknown severities.
func (s Severity) Validate() error {
	switch s {
	case SeverityWarning, SeverityError, SeverityCritical:
		return nil
	default:
		return &ValidationError{Field: "severity", Message: "must be warning, error or critical", Value: string(s)}
	}
}

// Policy is a guard rule written in Rego. The module must define a deny set
// whose members are messages or objects with message and severity keys.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Source is the file or builtin the policy came from.
	Source string `json:"source,omitempty"`
}

// Input is the document a policy sees as input: one command about to run
// on one engine.
type Input struct {
	// Command is the command path, e.g. "vdb delete".
	Command string `json:"command"`

	// Destructive is true for commands that delete or roll back data.
	Destructive bool `json:"destructive"`

	// Selector is how engines were chosen: all, default or hostname.
	Selector string `json:"selector"`

	// Engine is the engine the command is about to run on.
	Engine EngineInput `json:"engine"`

	// User is the local OS user running ddpctl.
	User string `json:"user,omitempty"`

	// Time is when the check ran.
	Time time.Time `json:"time"`
}

// EngineInput describes the target engine without its credentials.
type EngineInput struct {
	Hostname   string `json:"hostname"`
	Identifier string `json:"identifier,omitempty"`
	Class      string `json:"class,omitempty"`
	Default    bool   `json:"default"`
}

// Violation is one member of a policy's deny set.
type Violation struct {
	Policy   string   `json:"policy"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Decision is the outcome of evaluating every policy against one input.
type Decision struct {
	// Allowed is false when any violation blocks.
	Allowed bool `json:"allowed"`

	// Violations lists every deny member, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Blocking returns the violations that refuse the command.
func (d *Decision) Blocking() []Violation {
	var out []Violation
	for _, v := range d.Violations {
		if v.Severity.Blocks() {
			out = append(out, v)
		}
	}
	return out
}

// ValidationError represents a policy validation error.
type ValidationError struct {
	// Field is the field that failed validation.
	Field string `json:"field"`

	// Message describes the validation error.
	Message string `json:"message"`

	// Value is the invalid value.
	Value interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid policy %s %q: %s", e.Field, fmt.Sprint(e.Value), e.Message)
}
