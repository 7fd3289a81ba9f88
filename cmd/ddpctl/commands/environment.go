package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/ops"
	"github.com/ddpfleet/ddpfleet/pkg/transports/ssh"
)

func newEnvironmentCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "environment",
		Short: "Manage host environments",
	}

	cmd.AddCommand(newEnvironmentAddCommand(a))
	cmd.AddCommand(nameCommand(a, "delete", "Delete an environment", "environment delete",
		func(ctx context.Context, s *engine.Session, name string) error {
			_, err := ops.DeleteEnvironment(ctx, s, name)
			return err
		}))
	for _, action := range []ops.EnvironmentAction{ops.EnvironmentRefresh, ops.EnvironmentEnable, ops.EnvironmentDisable} {
		cmd.AddCommand(nameCommand(a, string(action), "Run "+string(action)+" on an environment", "environment "+string(action),
			func(ctx context.Context, s *engine.Session, name string) error {
				_, err := ops.UpdateEnvironment(ctx, s, name, action)
				return err
			}))
	}

	return cmd
}

func newEnvironmentAddCommand(a *app) *cobra.Command {
	var (
		args          ops.EnvironmentArgs
		osType        string
		password      string
		systemKey     bool
		skipPreflight bool
		preflight     = *ssh.DefaultConfig("", "")
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a Unix or Windows host environment",
		Long: `Register a host as an environment on the selected engines.

Unix hosts are checked over SSH first: the login must work and the toolkit
directory must exist and be writable. With --system-key the appliance logs in
with its own key; the check then uses --ssh-key, or is skipped when no key
is given.`,
		Example: `  # Add a Unix host with a password
  ddpctl environment add --name devhost --os unix --address 10.0.0.15 \
    --user delphix --toolkit-path /u01/toolkit

  # Add a Unix host trusted with the appliance system key
  ddpctl environment add --name devhost --os unix --address 10.0.0.15 \
    --user delphix --toolkit-path /u01/toolkit --system-key --ssh-key ~/.ssh/id_ed25519

  # Add a Windows target through a connector
  ddpctl environment add --name winprod --os windows --address 10.0.0.40 \
    --user 'CORP\delphix' --connector winconn`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "environment add",
				prepare: func(cmd *cobra.Command) error {
					args.OS = ops.HostOS(osType)
					if !skipPreflight {
						args.Checker = sshChecker{preflight: ssh.NewPreflight(preflight)}
					}
					if systemKey {
						args.Credential = appliance.SystemKeyCredential()
						return nil
					}
					cred, err := readSecret(cmd, password, "host password")
					args.Credential = cred
					return err
				},
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.AddEnvironment(ctx, s, args)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&args.Name, "name", "", "environment name")
	cmd.Flags().StringVar(&osType, "os", "unix", "host operating system (unix, windows)")
	cmd.Flags().StringVar(&args.Address, "address", "", "host name or IP address")
	cmd.Flags().IntVar(&args.Port, "port", 22, "SSH port of a Unix host")
	cmd.Flags().StringVar(&args.User, "user", "", "OS user the appliance logs in as")
	cmd.Flags().StringVar(&password, "password", "", "OS password (prompted when empty)")
	cmd.Flags().BoolVar(&systemKey, "system-key", false, "log in with the appliance system key (Unix)")
	cmd.Flags().StringVar(&args.ToolkitPath, "toolkit-path", "", "writable toolkit directory (Unix)")
	cmd.Flags().StringVar(&args.Connector, "connector", "", "environment of the Windows connector host")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "do not check the host over SSH first")
	cmd.Flags().StringVar(&preflight.KnownHostsPath, "known-hosts", preflight.KnownHostsPath, "known_hosts file for the SSH check")
	cmd.Flags().BoolVar(&preflight.StrictHostKeyChecking, "strict-host-key-checking", true, "reject hosts missing from known_hosts")
	cmd.Flags().StringVar(&preflight.PrivateKeyPath, "ssh-key", "", "private key for the SSH check of system key hosts")
	cmd.Flags().DurationVar(&preflight.ConnectionTimeout, "ssh-timeout", 30*time.Second, "SSH connection timeout")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("user")

	return cmd
}

// sshChecker checks environment hosts with the SSH preflight.
type sshChecker struct {
	preflight *ssh.Preflight
}

func (c sshChecker) CheckHost(ctx context.Context, t ops.HostTarget) error {
	target := ssh.Target{
		Host:        t.Address,
		Port:        t.Port,
		User:        t.User,
		ToolkitPath: t.ToolkitPath,
	}
	if t.Credential.Kind() != appliance.CredentialPassword {
		if c.preflight.Defaults.PrivateKeyPath == "" {
			return nil
		}
		return c.preflight.Check(ctx, target)
	}
	return t.Credential.Reveal(func(secret []byte) error {
		target.Password = string(secret)
		return c.preflight.Check(ctx, target)
	})
}
