package ops

import (
	"context"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/resolve"
)

// LinkArgs describes a dSource to link.
type LinkArgs struct {
	// Type is the engine type of the source database.
	Type appliance.EngineType `validate:"required,oneof=oracle mssql"`

	// Name is the name of the new dSource.
	Name string `validate:"required"`

	// Group is the group the dSource is placed in.
	Group string `validate:"required"`

	Description string

	// Environment and Repository locate the source database: the Oracle
	// home or the SQL Server instance name.
	Environment string `validate:"required"`
	Repository  string `validate:"required"`

	// SourceConfig is the name of the discovered database to link.
	SourceConfig string `validate:"required"`

	// DBUser and DBPassword are the database login. Required for Oracle.
	DBUser     string
	DBPassword appliance.Credential

	// EnvironmentUser is the OS user the appliance uses (Oracle).
	EnvironmentUser string

	// LogSync enables log sync for Oracle dSources.
	LogSync bool

	// StagingEnvironment and StagingInstance name the SQL Server staging
	// instance. BackupPath is the shared backup location.
	StagingEnvironment string
	StagingInstance    string
	BackupPath         string
}

// Link links a source database as a new dSource.
func Link(ctx context.Context, s *engine.Session, args LinkArgs) (appliance.Result, error) {
	const op = "link"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}

	groupRef, err := resolve.FindByName(ctx, s, appliance.KindGroup, args.Group)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Group, err)
	}
	envRef, err := resolve.FindEnvironment(ctx, s, args.Environment)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Environment, err)
	}

	params := appliance.LinkParameters{
		Type:        "LinkParameters",
		Name:        args.Name,
		Group:       groupRef.ID,
		Description: args.Description,
	}

	switch args.Type {
	case appliance.EngineOracle:
		if args.DBUser == "" || args.DBPassword.IsZero() {
			return appliance.Result{}, invalid(op, "an Oracle dSource requires a database user and password")
		}
		cfg, err := findSourceConfig(ctx, s, resolve.RepoOracleInstall, envRef.ID, args.Repository, args.SourceConfig)
		if err != nil {
			return appliance.Result{}, failed(s, op, args.SourceConfig, err)
		}
		data := appliance.OracleLinkData{
			Type:            "OracleLinkData",
			Config:          cfg.Reference,
			DBUser:          args.DBUser,
			DBCredentials:   args.DBPassword,
			EnvironmentUser: args.EnvironmentUser,
			SourcingPolicy:  &appliance.OracleSourcingPolicy{Type: "OracleSourcingPolicy", LogsyncEnabled: args.LogSync},
		}
		params.LinkData = data

	case appliance.EngineMSSql:
		if args.StagingEnvironment == "" || args.StagingInstance == "" {
			return appliance.Result{}, invalid(op, "a SQL Server dSource requires a staging environment and instance")
		}
		cfg, err := findSourceConfig(ctx, s, resolve.RepoMSSqlInstance, envRef.ID, args.Repository, args.SourceConfig)
		if err != nil {
			return appliance.Result{}, failed(s, op, args.SourceConfig, err)
		}
		stagingEnv, err := resolve.FindEnvironment(ctx, s, args.StagingEnvironment)
		if err != nil {
			return appliance.Result{}, failed(s, op, args.StagingEnvironment, err)
		}
		ppt, err := resolve.FindRepo(ctx, s, resolve.RepoMSSqlInstance, stagingEnv.ID, args.StagingInstance)
		if err != nil {
			return appliance.Result{}, failed(s, op, args.StagingInstance, err)
		}
		data := appliance.MSSqlLinkData{
			Type:          "MSSqlLinkData",
			Config:        cfg.Reference,
			PPTRepository: ppt.ID,
		}
		if args.BackupPath != "" {
			data.SharedBackupLocations = []appliance.MSSqlBackupLocation{{Type: "MSSqlBackupLocation", BackupLocation: args.BackupPath}}
		}
		if args.DBUser != "" {
			data.DBUser = args.DBUser
			cred := args.DBPassword
			data.DBCredentials = &cred
		}
		params.LinkData = data
	}

	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Action(ctx, appliance.KindDatabase, "", "link", params)
	})
}

func findSourceConfig(ctx context.Context, s *engine.Session, typ resolve.RepoType, envRef, repo, name string) (appliance.SourceConfig, error) {
	repoRef, err := resolve.FindRepo(ctx, s, typ, envRef, repo)
	if err != nil {
		return appliance.SourceConfig{}, err
	}
	return resolve.FindSourceConfig(ctx, s, repoRef.ID, name)
}
