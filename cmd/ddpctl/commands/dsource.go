package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/ops"
)

func newDSourceCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dsource",
		Short: "Manage dSources",
	}

	cmd.AddCommand(newDSourceLinkCommand(a))

	return cmd
}

func newDSourceLinkCommand(a *app) *cobra.Command {
	var (
		args       ops.LinkArgs
		dbType     string
		dbPassword string
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link a source database as a dSource",
		Long: `Link a discovered source database as a new dSource.

Oracle dSources need a database user; its password is taken from
--db-password or read from the terminal. SQL Server dSources are staged on
--staging-environment/--staging-instance and restored from --backup-path.`,
		Example: `  # Link an Oracle database
  ddpctl dsource link --type oracle --name orcl --group Sources \
    --environment prodhost --repository /u01/app/oracle/product/19.0.0/dbhome_1 \
    --source-config ORCL --db-user delphixdb --environment-user oracle

  # Link a SQL Server database
  ddpctl dsource link --type mssql --name sales --group Sources \
    --environment winprod --repository MSSQLSERVER --source-config sales \
    --staging-environment winstage --staging-instance MSSQLSERVER --backup-path '\\\\nas\\backup'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "dsource link",
				prepare: func(cmd *cobra.Command) error {
					args.Type = appliance.EngineType(dbType)
					if args.DBUser == "" {
						return nil
					}
					cred, err := readSecret(cmd, dbPassword, "database password")
					args.DBPassword = cred
					return err
				},
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.Link(ctx, s, args)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&dbType, "type", "", "source database type (oracle, mssql)")
	cmd.Flags().StringVar(&args.Name, "name", "", "name of the new dSource")
	cmd.Flags().StringVar(&args.Group, "group", "", "group for the new dSource")
	cmd.Flags().StringVar(&args.Description, "description", "", "dSource description")
	cmd.Flags().StringVar(&args.Environment, "environment", "", "environment of the source database")
	cmd.Flags().StringVar(&args.Repository, "repository", "", "Oracle home or SQL Server instance")
	cmd.Flags().StringVar(&args.SourceConfig, "source-config", "", "name of the discovered database")
	cmd.Flags().StringVar(&args.DBUser, "db-user", "", "database user")
	cmd.Flags().StringVar(&dbPassword, "db-password", "", "database password (prompted when empty)")
	cmd.Flags().StringVar(&args.EnvironmentUser, "environment-user", "", "OS user the appliance connects as")
	cmd.Flags().BoolVar(&args.LogSync, "log-sync", false, "enable log sync (Oracle)")
	cmd.Flags().StringVar(&args.StagingEnvironment, "staging-environment", "", "staging environment (SQL Server)")
	cmd.Flags().StringVar(&args.StagingInstance, "staging-instance", "", "staging instance (SQL Server)")
	cmd.Flags().StringVar(&args.BackupPath, "backup-path", "", "shared backup location (SQL Server)")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("group")
	cmd.MarkFlagRequired("environment")
	cmd.MarkFlagRequired("repository")
	cmd.MarkFlagRequired("source-config")

	return cmd
}
