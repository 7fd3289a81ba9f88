package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/ops"
)

func newUserCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage appliance users",
	}

	var (
		args     ops.UserArgs
		password string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user authenticated by password",
		Long: `Create a user on the selected engines. The password is taken from
--password or read from the terminal once and used for every engine.`,
		Example: `  ddpctl --all user create --name jdoe --email jdoe@example.com --first-name John --last-name Doe`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "user create",
				prepare: func(cmd *cobra.Command) error {
					cred, err := readSecret(cmd, password, "user password")
					args.Password = cred
					return err
				},
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.CreateUser(ctx, s, args)
					return err
				},
			})
		},
	}
	create.Flags().StringVar(&args.Name, "name", "", "user name")
	create.Flags().StringVar(&args.Email, "email", "", "email address")
	create.Flags().StringVar(&args.FirstName, "first-name", "", "first name")
	create.Flags().StringVar(&args.LastName, "last-name", "", "last name")
	create.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	create.MarkFlagRequired("name")

	cmd.AddCommand(create)
	cmd.AddCommand(nameCommand(a, "delete", "Delete a user", "user delete",
		func(ctx context.Context, s *engine.Session, name string) error {
			_, err := ops.DeleteUser(ctx, s, name)
			return err
		}))

	return cmd
}

func newAuthorizationCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authorization",
		Short: "Grant and revoke roles",
	}

	cmd.AddCommand(newAuthorizationActionCommand(a, "create", "Grant a role on an object to a user", ops.CreateAuthorization))
	cmd.AddCommand(newAuthorizationActionCommand(a, "delete", "Revoke a role on an object from a user", ops.DeleteAuthorization))

	return cmd
}

func newAuthorizationActionCommand(a *app, use, short string, op func(ctx context.Context, s *engine.Session, args ops.AuthorizationArgs) (appliance.Result, error)) *cobra.Command {
	var args ops.AuthorizationArgs

	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Example: `  ddpctl authorization ` + use + ` --user jdoe --role "Data Operator" --target devdb`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "authorization " + use,
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := op(ctx, s, args)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&args.User, "user", "", "user name")
	cmd.Flags().StringVar(&args.Role, "role", "", "role name")
	cmd.Flags().StringVar(&args.Target, "target", "", "database, group or container name")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("role")
	cmd.MarkFlagRequired("target")

	return cmd
}
