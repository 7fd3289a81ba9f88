package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/ops"
)

func newVDBCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vdb",
		Short: "Provision and maintain virtual databases",
		Long: `Provision, refresh, rewind, snapshot, delete, start, stop, enable and
disable virtual databases on the selected engines.`,
	}

	cmd.AddCommand(newVDBProvisionCommand(a))
	cmd.AddCommand(newVDBRefreshCommand(a))
	cmd.AddCommand(newVDBRewindCommand(a))
	cmd.AddCommand(newVDBSnapshotCommand(a))
	cmd.AddCommand(newVDBDeleteCommand(a))
	for _, action := range []ops.SourceAction{ops.SourceStart, ops.SourceStop, ops.SourceEnable, ops.SourceDisable} {
		cmd.AddCommand(newVDBSourceStateCommand(a, action))
	}

	return cmd
}

func newVDBProvisionCommand(a *app) *cobra.Command {
	var (
		args  ops.ProvisionArgs
		point pointFlags
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision a virtual database",
		Long: `Provision a virtual database from a point in time of a source database.

The request shape follows the engine type of the source: Oracle, SQL Server,
ASE or vFiles (AppData). vFiles containers need --mount-path.`,
		Example: `  # Provision from the latest snapshot
  ddpctl vdb provision --source orcl --name devdb --group Dev \
    --environment devhost --repository /u01/app/oracle/product/19.0.0/dbhome_1

  # Provision from a point in time on every engine
  ddpctl --all vdb provision --source orcl --name devdb --group Dev \
    --environment devhost --repository /u01/app/oracle/product/19.0.0/dbhome_1 \
    --timestamp-type time --timestamp 2024-01-05T10:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "vdb provision",
				prepare: func(*cobra.Command) error {
					p, err := point.point()
					args.Point = p
					return err
				},
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.Provision(ctx, s, args)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&args.Source, "source", "", "name of the source database")
	cmd.Flags().StringVar(&args.Name, "name", "", "name of the new virtual database")
	cmd.Flags().StringVar(&args.DatabaseName, "dbname", "", "database name on the target host (default: --name)")
	cmd.Flags().StringVar(&args.Group, "group", "", "group for the new virtual database")
	cmd.Flags().StringVar(&args.Environment, "environment", "", "target environment")
	cmd.Flags().StringVar(&args.Repository, "repository", "", "target Oracle home, instance or repository")
	cmd.Flags().StringVar(&args.MountBase, "mount-base", "/mnt/provision", "mount base for Oracle and ASE datafiles")
	cmd.Flags().StringVar(&args.MountPath, "mount-path", "", "mount path of a vFiles container")
	cmd.Flags().BoolVar(&args.AutoRestart, "auto-restart", false, "restart the virtual database after a host reboot")
	point.register(cmd, "snapshot")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("group")
	cmd.MarkFlagRequired("environment")
	cmd.MarkFlagRequired("repository")

	return cmd
}

func newVDBRefreshCommand(a *app) *cobra.Command {
	var (
		args  ops.RefreshArgs
		point pointFlags
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh a virtual database from its parent",
		Long: `Refresh a virtual database to a point in time of its parent. A job already
running on the virtual database is waited for first.`,
		Example: `  # Refresh to the parent's latest snapshot
  ddpctl vdb refresh --name devdb

  # Refresh to a named snapshot
  ddpctl vdb refresh --name devdb --timestamp @2024-01-05T10:00:00.000Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "vdb refresh",
				prepare: func(*cobra.Command) error {
					p, err := point.point()
					args.Point = p
					return err
				},
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.Refresh(ctx, s, args)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&args.Name, "name", "", "virtual database name")
	point.register(cmd, "snapshot")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newVDBRewindCommand(a *app) *cobra.Command {
	var (
		args  ops.RewindArgs
		point pointFlags
	)

	cmd := &cobra.Command{
		Use:   "rewind",
		Short: "Rewind a virtual database on its own timeflow",
		Example: `  ddpctl vdb rewind --name devdb --timestamp-type time --timestamp "2024-01-05 10:00:00"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "vdb rewind",
				prepare: func(*cobra.Command) error {
					p, err := point.point()
					args.Point = p
					return err
				},
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.Rewind(ctx, s, args)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&args.Name, "name", "", "virtual database name")
	point.register(cmd, "snapshot")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("timestamp")

	return cmd
}

func newVDBSnapshotCommand(a *app) *cobra.Command {
	var args ops.SnapshotArgs

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Snapshot a database or every database of a group",
		Example: `  # Snapshot one database
  ddpctl vdb snapshot --name devdb

  # Snapshot a group, one engine at a time
  ddpctl --all --single_thread vdb snapshot --group Dev`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "vdb snapshot",
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.Snapshot(ctx, s, args)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&args.Name, "name", "", "database name")
	cmd.Flags().StringVar(&args.Group, "group", "", "group name")
	cmd.Flags().BoolVar(&args.ExcludeSelfService, "exclude-self-service", false, "skip databases backing self-service containers")
	cmd.MarkFlagsOneRequired("name", "group")
	cmd.MarkFlagsMutuallyExclusive("name", "group")

	return cmd
}

func newVDBDeleteCommand(a *app) *cobra.Command {
	var args ops.DeleteArgs

	cmd := &cobra.Command{
		Use:     "delete",
		Short:   "Delete a database",
		Example: `  ddpctl vdb delete --name devdb --force`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "vdb delete",
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.Delete(ctx, s, args)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&args.Name, "name", "", "database name")
	cmd.Flags().BoolVar(&args.Force, "force", false, "delete even if the host cannot be cleaned up")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newVDBSourceStateCommand(a *app, action ops.SourceAction) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   string(action),
		Short: "Run " + string(action) + " on the source of a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "vdb " + string(action),
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.SetSourceState(ctx, s, name, action)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "database name")
	cmd.MarkFlagRequired("name")

	return cmd
}
