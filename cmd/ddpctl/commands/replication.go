package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/ops"
)

func newReplicationCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replication",
		Short: "Manage replication specs",
	}

	cmd.AddCommand(newReplicationCreateCommand(a))
	cmd.AddCommand(nameCommand(a, "delete", "Delete a replication spec", "replication delete",
		func(ctx context.Context, s *engine.Session, name string) error {
			_, err := ops.DeleteReplication(ctx, s, name)
			return err
		}))
	cmd.AddCommand(nameCommand(a, "execute", "Run a replication spec now", "replication execute",
		func(ctx context.Context, s *engine.Session, name string) error {
			_, err := ops.ExecuteReplication(ctx, s, name)
			return err
		}))

	return cmd
}

func newReplicationCreateCommand(a *app) *cobra.Command {
	var (
		args     ops.ReplicationArgs
		objects  string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a replication spec",
		Example: `  ddpctl replication create --name dr --target-host dr-engine.example.com \
    --target-user admin --objects Sources,Dev --schedule "0 0 */4 * * ?" --encrypted`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "replication create",
				prepare: func(cmd *cobra.Command) error {
					args.Objects = splitList(objects)
					cred, err := readSecret(cmd, password, "target password")
					args.TargetPassword = cred
					return err
				},
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.CreateReplication(ctx, s, args)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&args.Name, "name", "", "replication spec name")
	cmd.Flags().StringVar(&args.Description, "description", "", "description")
	cmd.Flags().StringVar(&args.TargetHost, "target-host", "", "receiving appliance")
	cmd.Flags().IntVar(&args.TargetPort, "target-port", ops.DefaultReplicationPort, "receiving appliance port")
	cmd.Flags().StringVar(&args.TargetUser, "target-user", "", "user on the receiving appliance")
	cmd.Flags().StringVar(&password, "target-password", "", "password on the receiving appliance (prompted when empty)")
	cmd.Flags().StringVar(&objects, "objects", "", "comma separated groups to replicate")
	cmd.Flags().StringVar(&args.Schedule, "schedule", "", "Quartz cron schedule")
	cmd.Flags().BoolVar(&args.Encrypted, "encrypted", false, "encrypt replication traffic")
	cmd.Flags().IntVar(&args.BandwidthLimit, "bandwidth-limit", 0, "bandwidth limit in MB/s (0: unlimited)")
	cmd.Flags().IntVar(&args.NumberOfConnections, "connections", 1, "number of connections")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("target-host")
	cmd.MarkFlagRequired("target-user")
	cmd.MarkFlagRequired("objects")

	return cmd
}
