package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/telemetry"
)

// Engine evaluates guard policies before a command touches an engine.
// It is safe for concurrent use once built.
type Engine struct {
	policies []*compiledPolicy
	logger   *telemetry.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine compiles policies. A policy that does not parse or whose deny
// rule cannot be prepared fails the whole engine.
func NewEngine(ctx context.Context, logger *telemetry.Logger, policies []Policy) (*Engine, error) {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	e := &Engine{logger: logger.NewComponentLogger("policy")}

	seen := make(map[string]bool, len(policies))
	for i := range policies {
		p := &policies[i]
		if seen[p.Name] {
			return nil, &ValidationError{Field: "name", Message: "is defined twice", Value: p.Name}
		}
		seen[p.Name] = true

		cp, err := compile(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
		e.policies = append(e.policies, cp)
		e.logger.WithField("policy", p.Name).Debug("policy compiled")
	}

	e.logger.Debugf("%d guard policies loaded", len(e.policies))
	return e, nil
}

func compile(ctx context.Context, p *Policy) (*compiledPolicy, error) {
	if p.Severity == "" {
		p.Severity = SeverityError
	}
	if err := p.Severity.Validate(); err != nil {
		return nil, err
	}

	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	query := module.Package.Path.String() + ".deny"

	prepared, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{policy: p, query: prepared}, nil
}

// Len returns the number of loaded policies.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.policies)
}

// Evaluate runs every policy against in.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*Decision, error) {
	start := time.Now()
	decision := &Decision{Allowed: true}
	if e == nil {
		return decision, nil
	}

	for _, cp := range e.policies {
		decision.EvaluatedPolicies = append(decision.EvaluatedPolicies, cp.policy.Name)

		results, err := cp.query.Eval(ctx, rego.EvalInput(in))
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation error: %w", cp.policy.Name, err)
		}
		for _, result := range results {
			if len(result.Expressions) == 0 {
				continue
			}
			denySet, ok := result.Expressions[0].Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				decision.Violations = append(decision.Violations, createViolation(cp.policy, d))
			}
		}
	}

	for _, v := range decision.Violations {
		if v.Severity.Blocks() {
			decision.Allowed = false
			break
		}
	}
	decision.Duration = time.Since(start)
	return decision, nil
}

// createViolation creates a Violation from one deny member.
func createViolation(p *Policy, result interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok && Severity(sev).Validate() == nil {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	if v.Message == "" {
		v.Message = "denied by policy " + p.Name
	}
	return v
}

// Check evaluates in and turns a refusal into a configuration error for the
// engine. Warnings are logged.
func (e *Engine) Check(ctx context.Context, in Input) error {
	if e.Len() == 0 {
		return nil
	}
	decision, err := e.Evaluate(ctx, in)
	if err != nil {
		return engine.NewConfigError("guard policy failed", err).
			WithEngine(in.Engine.Hostname).
			WithOperation(in.Command).
			WithCode(engine.ErrCodePolicy)
	}

	logger := e.logger.WithEngine(in.Engine.Hostname).WithField("command", in.Command)
	for _, v := range decision.Violations {
		if !v.Severity.Blocks() {
			logger.WithField("policy", v.Policy).Warn(v.Message)
		}
	}
	if decision.Allowed {
		return nil
	}

	blocking := decision.Blocking()
	msgs := make([]string, 0, len(blocking))
	for _, v := range blocking {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return engine.NewConfigError("refused by guard policy ("+strings.Join(msgs, "; ")+")", nil).
		WithEngine(in.Engine.Hostname).
		WithOperation(in.Command).
		WithCode(engine.ErrCodePolicy)
}

// Guard wraps wf so that it only runs on engines the policies allow.
func (e *Engine) Guard(command string, destructive bool, selector string, user string, wf engine.Workflow) engine.Workflow {
	if e.Len() == 0 {
		return wf
	}
	return func(ctx context.Context, s *engine.Session) error {
		rec := s.Engine()
		err := e.Check(ctx, Input{
			Command:     command,
			Destructive: destructive,
			Selector:    selector,
			Engine: EngineInput{
				Hostname:   rec.Hostname,
				Identifier: rec.Identifier,
				Class:      rec.Class,
				Default:    rec.IsDefault,
			},
			User: user,
			Time: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return wf(ctx, s)
	}
}
