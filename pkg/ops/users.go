package ops

import (
	"context"
	"fmt"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/resolve"
)

// UserArgs describes a native appliance user.
type UserArgs struct {
	Name      string `validate:"required"`
	Email     string `validate:"omitempty,email"`
	FirstName string
	LastName  string
	Password  appliance.Credential
}

// CreateUser creates a user authenticated by password.
func CreateUser(ctx context.Context, s *engine.Session, args UserArgs) (appliance.Result, error) {
	const op = "user create"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	if args.Password.Kind() != appliance.CredentialPassword {
		return appliance.Result{}, invalid(op, "user %s needs a password", args.Name)
	}
	params := appliance.UserSpec{
		Type:               "User",
		Name:               args.Name,
		EmailAddress:       args.Email,
		FirstName:          args.FirstName,
		LastName:           args.LastName,
		AuthenticationType: "NATIVE",
		Credential:         args.Password,
	}
	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Create(ctx, appliance.KindUser, params)
	})
}

// DeleteUser removes the user named name.
func DeleteUser(ctx context.Context, s *engine.Session, name string) (appliance.Result, error) {
	return deleteByName(ctx, s, "user delete", appliance.KindUser, name, nil)
}

// AuthorizationArgs grants Role on a target to User. The target is a
// database or a group, looked up in that order.
type AuthorizationArgs struct {
	User   string `validate:"required"`
	Role   string `validate:"required"`
	Target string `validate:"required"`
}

// CreateAuthorization grants a role to a user.
func CreateAuthorization(ctx context.Context, s *engine.Session, args AuthorizationArgs) (appliance.Result, error) {
	const op = "authorization create"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	user, role, target, err := authorizationRefs(ctx, s, args)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.User, err)
	}
	params := appliance.AuthorizationSpec{
		Type:   "Authorization",
		User:   user.ID,
		Role:   role.ID,
		Target: target.ID,
	}
	return submit(ctx, s, op, args.User, func(c appliance.Client) (appliance.Result, error) {
		return c.Create(ctx, appliance.KindAuthorization, params)
	})
}

// DeleteAuthorization revokes the authorization matching args.
func DeleteAuthorization(ctx context.Context, s *engine.Session, args AuthorizationArgs) (appliance.Result, error) {
	const op = "authorization delete"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	user, role, target, err := authorizationRefs(ctx, s, args)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.User, err)
	}
	auth, err := resolve.FindOne(ctx, s, appliance.KindAuthorization,
		appliance.Query{"user": user.ID, "target": target.ID},
		fmt.Sprintf("%s on %s for %s", args.Role, args.Target, args.User),
		func(a appliance.Authorization) bool {
			return a.User == user.ID && a.Role == role.ID && a.Target == target.ID
		})
	if err != nil {
		return appliance.Result{}, failed(s, op, args.User, err)
	}
	return submit(ctx, s, op, args.User, func(c appliance.Client) (appliance.Result, error) {
		return c.Delete(ctx, appliance.KindAuthorization, auth.Reference, nil)
	})
}

func authorizationRefs(ctx context.Context, s *engine.Session, args AuthorizationArgs) (user, role, target appliance.ObjectRef, err error) {
	if user, err = resolve.FindByName(ctx, s, appliance.KindUser, args.User); err != nil {
		return
	}
	if role, err = resolve.FindByName(ctx, s, appliance.KindRole, args.Role); err != nil {
		return
	}
	target, err = resolve.FindByName(ctx, s, appliance.KindDatabase, args.Target)
	if engine.IsNotFound(err) {
		target, err = resolve.FindByName(ctx, s, appliance.KindGroup, args.Target)
	}
	return
}
