// Package ops implements the business operations run against one appliance
// session: provisioning and maintaining virtual databases, linking dSources,
// self-service objects, users and authorizations, replication and
// environments.
//
// Every mutating operation follows the same shape. Names are resolved to
// references, points in time are resolved to timeflow points, the request
// body is chosen by the engine type of the reference, the call is issued and
// its job is handed to Session.Submit. Whether the operation then waits for
// the job depends on the session's job mode, not on the operation.
package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// check validates the struct tags of args.
func check(op string, args any) error {
	err := validate.Struct(args)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return engine.NewInternalError(fmt.Sprintf("%s: cannot validate arguments", op), err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return engine.NewConfigError(fmt.Sprintf("%s: invalid arguments: %s", op, strings.Join(fields, ", ")), nil).
		WithCode(engine.ErrCodeValidation).
		WithOperation(op)
}

// invalid reports an argument combination the struct tags cannot express.
func invalid(op, format string, args ...any) error {
	return engine.NewConfigError(fmt.Sprintf("%s: %s", op, fmt.Sprintf(format, args...)), nil).
		WithCode(engine.ErrCodeValidation).
		WithOperation(op)
}

// failed attaches operation context to err. Errors that are already
// classified keep their kind and message.
func failed(s *engine.Session, op, resource string, err error) error {
	var e *engine.Error
	if errors.As(err, &e) {
		if e.Operation == "" {
			e.Operation = op
		}
		if e.Engine == "" {
			e.Engine = s.Hostname()
		}
		return err
	}
	return &engine.Error{
		Kind:      engine.KindOf(err),
		Message:   fmt.Sprintf("%s of %s failed", op, resource),
		Engine:    s.Hostname(),
		Resource:  resource,
		Operation: op,
		Err:       err,
	}
}

// submit issues call and routes the job it started through the session.
func submit(ctx context.Context, s *engine.Session, op, resource string, call func(appliance.Client) (appliance.Result, error)) (appliance.Result, error) {
	res, err := call(s.Client())
	if err != nil {
		return appliance.Result{}, failed(s, op, resource, err)
	}
	s.Logger().WithField("operation", op).Infof("%s of %s issued", op, resource)
	if _, err := s.Submit(ctx, res); err != nil {
		return res, failed(s, op, resource, err)
	}
	return res, nil
}

// paramType picks the request body type for a reference: Oracle objects use
// the Oracle variant, everything else the generic one.
func paramType(ref appliance.ObjectRef, generic string) string {
	if ref.Kind == appliance.EngineOracle {
		return "Oracle" + generic
	}
	return generic
}
