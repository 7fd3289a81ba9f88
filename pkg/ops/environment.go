package ops

import (
	"context"
	"fmt"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/resolve"
)

// HostOS is the operating system family of an environment host.
type HostOS string

const (
	HostUnix    HostOS = "unix"
	HostWindows HostOS = "windows"
)

// HostTarget is what a HostChecker connects to.
type HostTarget struct {
	Address     string
	Port        int
	User        string
	Credential  appliance.Credential
	ToolkitPath string
}

// HostChecker verifies that a host is reachable with the given credentials
// before it is registered as an environment.
type HostChecker interface {
	CheckHost(ctx context.Context, target HostTarget) error
}

// EnvironmentArgs describes a host environment to add.
type EnvironmentArgs struct {
	Name    string `validate:"required"`
	OS      HostOS `validate:"required,oneof=unix windows"`
	Address string `validate:"required,hostname_rfc1123|ip"`

	// Port is the SSH port of Unix hosts (default: 22).
	Port int `validate:"omitempty,min=1,max=65535"`

	// User and Credential are the OS login the appliance uses. Unix hosts
	// may use the appliance system key instead of a password.
	User       string `validate:"required"`
	Credential appliance.Credential

	// ToolkitPath is the writable directory for the appliance toolkit on
	// Unix hosts.
	ToolkitPath string

	// Connector is the environment name of the Windows connector host.
	Connector string

	// Checker, when set, verifies the host before it is added. Only Unix
	// hosts are checked.
	Checker HostChecker `validate:"-"`
}

// AddEnvironment registers a host environment.
func AddEnvironment(ctx context.Context, s *engine.Session, args EnvironmentArgs) (appliance.Result, error) {
	const op = "environment add"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	if args.Credential.IsZero() {
		return appliance.Result{}, invalid(op, "a password or the system key is required for %s", args.Name)
	}

	params := appliance.HostEnvironmentCreateParameters{
		Type: "HostEnvironmentCreateParameters",
		PrimaryUser: appliance.EnvironmentUserSpec{
			Type:       "EnvironmentUser",
			Name:       args.User,
			Credential: args.Credential,
		},
	}

	switch args.OS {
	case HostUnix:
		if args.ToolkitPath == "" {
			return appliance.Result{}, invalid(op, "a toolkit path is required for Unix host %s", args.Name)
		}
		port := args.Port
		if port == 0 {
			port = 22
		}
		if args.Checker != nil {
			target := HostTarget{Address: args.Address, Port: port, User: args.User, Credential: args.Credential, ToolkitPath: args.ToolkitPath}
			if err := args.Checker.CheckHost(ctx, target); err != nil {
				return appliance.Result{}, engine.NewConfigError(fmt.Sprintf("host %s failed preflight", args.Address), err).
					WithEngine(s.Hostname()).
					WithResource(args.Name).
					WithOperation(op)
			}
			s.Logger().Infof("host %s passed preflight", args.Address)
		}
		params.HostEnvironment = appliance.HostEnvironmentSpec{Type: "UnixHostEnvironment", Name: args.Name}
		params.HostParameters = appliance.HostCreateSpec{
			Type: "UnixHostCreateParameters",
			Host: appliance.HostSpec{Type: "UnixHost", Address: args.Address, Port: port, ToolkitPath: args.ToolkitPath},
		}

	case HostWindows:
		if args.Credential.Kind() != appliance.CredentialPassword {
			return appliance.Result{}, invalid(op, "Windows host %s needs a password", args.Name)
		}
		params.HostEnvironment = appliance.HostEnvironmentSpec{Type: "WindowsHostEnvironment", Name: args.Name}
		if args.Connector != "" {
			proxy, err := connectorHost(ctx, s, args.Connector)
			if err != nil {
				return appliance.Result{}, failed(s, op, args.Connector, err)
			}
			params.HostEnvironment.Proxy = proxy
		}
		params.HostParameters = appliance.HostCreateSpec{
			Type: "WindowsHostCreateParameters",
			Host: appliance.HostSpec{Type: "WindowsHost", Address: args.Address},
		}
	}

	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Create(ctx, appliance.KindEnvironment, params)
	})
}

// DeleteEnvironment removes the environment named name.
func DeleteEnvironment(ctx context.Context, s *engine.Session, name string) (appliance.Result, error) {
	return deleteByName(ctx, s, "environment delete", appliance.KindEnvironment, name, nil)
}

// EnvironmentAction is a maintenance action on an environment.
type EnvironmentAction string

const (
	EnvironmentRefresh EnvironmentAction = "refresh"
	EnvironmentEnable  EnvironmentAction = "enable"
	EnvironmentDisable EnvironmentAction = "disable"
)

// UpdateEnvironment refreshes, enables or disables the environment named name.
func UpdateEnvironment(ctx context.Context, s *engine.Session, name string, action EnvironmentAction) (appliance.Result, error) {
	op := "environment " + string(action)
	switch action {
	case EnvironmentRefresh, EnvironmentEnable, EnvironmentDisable:
	default:
		return appliance.Result{}, invalid("environment", "unknown action %q", action)
	}
	if name == "" {
		return appliance.Result{}, invalid(op, "a name is required")
	}
	ref, err := resolve.FindEnvironment(ctx, s, name)
	if err != nil {
		return appliance.Result{}, failed(s, op, name, err)
	}
	return submit(ctx, s, op, name, func(c appliance.Client) (appliance.Result, error) {
		return c.Action(ctx, appliance.KindEnvironment, ref.ID, string(action), nil)
	})
}

// connectorHost returns the host reference of the environment named name.
func connectorHost(ctx context.Context, s *engine.Session, name string) (string, error) {
	env, err := resolve.FindOne(ctx, s, appliance.KindEnvironment, nil, fmt.Sprintf("name %q", name),
		func(e appliance.Environment) bool { return e.Name == name })
	if err != nil {
		return "", err
	}
	if env.Host == "" {
		return "", engine.NewNotFoundError(fmt.Sprintf("environment %s has no host", name), nil).WithResource(name)
	}
	return env.Host, nil
}
