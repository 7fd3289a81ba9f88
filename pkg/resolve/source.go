package resolve

import (
	"context"
	"fmt"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
)

// RepoType is the appliance type of a repository.
type RepoType string

const (
	// RepoOracleInstall is an Oracle home, matched by installation home.
	RepoOracleInstall RepoType = "OracleInstall"

	// RepoMSSqlInstance is a SQL Server instance, matched by instance name.
	RepoMSSqlInstance RepoType = "MSSqlInstance"

	// RepoASEInstance is an ASE instance, matched by instance name.
	RepoASEInstance RepoType = "ASEInstance"

	// RepoAppData is an AppData repository, matched by name.
	RepoAppData RepoType = "AppDataRepository"
)

// discriminator returns the field of r compared against the caller's value.
func (t RepoType) discriminator(r appliance.Repository) string {
	switch t {
	case RepoOracleInstall:
		return r.InstallationHome
	case RepoMSSqlInstance, RepoASEInstance:
		return r.InstanceName
	default:
		return r.Name
	}
}

// FindSourceByDBName finds the database named dbName and returns the single
// source whose container is that database.
func FindSourceByDBName(ctx context.Context, s *engine.Session, dbName string) (appliance.ObjectRef, error) {
	db, err := FindDatabase(ctx, s, dbName)
	if err != nil {
		return appliance.ObjectRef{}, err
	}
	src, err := FindOne(ctx, s, appliance.KindSource, appliance.Query{"database": db.Reference},
		fmt.Sprintf("database %q", dbName),
		func(src appliance.Source) bool { return src.Container == db.Reference })
	if err != nil {
		return appliance.ObjectRef{}, err
	}
	return appliance.ParseRef(src.Reference), nil
}

// FindSource returns the source of the database container ref.
func FindSource(ctx context.Context, s *engine.Session, container appliance.ObjectRef) (appliance.Source, error) {
	return FindOne(ctx, s, appliance.KindSource, appliance.Query{"database": container.ID},
		fmt.Sprintf("container %s", container),
		func(src appliance.Source) bool { return src.Container == container.ID })
}

// FindRepo returns the repository of type installType on environment envRef
// whose installation home, instance name or name equals discriminator.
func FindRepo(ctx context.Context, s *engine.Session, installType RepoType, envRef, discriminator string) (appliance.ObjectRef, error) {
	repo, err := FindOne(ctx, s, appliance.KindRepository, appliance.Query{"environment": envRef},
		fmt.Sprintf("%s %q on %s", installType, discriminator, envRef),
		func(r appliance.Repository) bool {
			return r.Environment == envRef && r.Type == string(installType) && installType.discriminator(r) == discriminator
		})
	if err != nil {
		return appliance.ObjectRef{}, err
	}
	return appliance.ParseRef(repo.Reference), nil
}

// FindSourceConfig returns the source config named name in repository repoRef.
func FindSourceConfig(ctx context.Context, s *engine.Session, repoRef, name string) (appliance.SourceConfig, error) {
	return FindOne(ctx, s, appliance.KindSourceConfig, appliance.Query{"repository": repoRef},
		fmt.Sprintf("name %q in %s", name, repoRef),
		func(c appliance.SourceConfig) bool { return c.Repository == repoRef && c.Name == name })
}

// FindEnvironment returns the reference of the environment named name.
func FindEnvironment(ctx context.Context, s *engine.Session, name string) (appliance.ObjectRef, error) {
	return FindByName(ctx, s, appliance.KindEnvironment, name)
}
