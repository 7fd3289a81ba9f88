package ops

import (
	"context"
	"fmt"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/resolve"
	"github.com/ddpfleet/ddpfleet/pkg/timeflow"
)

// ProvisionArgs describes a new virtual database.
type ProvisionArgs struct {
	// Source is the name of the database to provision from.
	Source string `validate:"required"`

	// Name is the name of the new container.
	Name string `validate:"required"`

	// DatabaseName is the database name on the target host (default: Name).
	DatabaseName string

	// Group is the group the container is placed in.
	Group string `validate:"required"`

	// Environment is the target environment name.
	Environment string `validate:"required"`

	// Repository identifies the target installation: the Oracle home, the
	// SQL Server or ASE instance name, or the AppData repository name.
	Repository string `validate:"required"`

	// MountBase is where Oracle and ASE datafiles are mounted.
	MountBase string

	// MountPath is where a vFiles container is mounted. It has no default.
	MountPath string

	// Point selects the data to provision (default: latest snapshot).
	Point timeflow.PointInTime

	// AutoRestart restarts the VDB after a host reboot.
	AutoRestart bool
}

// provisionShape is the per engine type part of a provision request.
type provisionShape struct {
	params    string
	container string
	source    string
	config    string
	repo      resolve.RepoType
}

var provisionShapes = map[appliance.EngineType]provisionShape{
	appliance.EngineOracle:  {"OracleProvisionParameters", "OracleDatabaseContainer", "OracleVirtualSource", "OracleSIConfig", resolve.RepoOracleInstall},
	appliance.EngineMSSql:   {"MSSqlProvisionParameters", "MSSqlDatabaseContainer", "MSSqlVirtualSource", "MSSqlSIConfig", resolve.RepoMSSqlInstance},
	appliance.EngineASE:     {"ASEProvisionParameters", "ASEDBContainer", "ASEVirtualSource", "ASESIConfig", resolve.RepoASEInstance},
	appliance.EngineAppData: {"AppDataProvisionParameters", "AppDataContainer", "AppDataVirtualSource", "AppDataDirectSourceConfig", resolve.RepoAppData},
}

// Provision creates a virtual database from a point in time of args.Source.
func Provision(ctx context.Context, s *engine.Session, args ProvisionArgs) (appliance.Result, error) {
	const op = "provision"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}

	src, err := resolve.FindDatabase(ctx, s, args.Source)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Source, err)
	}
	srcRef := src.Ref()
	shape, ok := provisionShapes[srcRef.Kind]
	if !ok {
		return appliance.Result{}, invalid(op, "cannot provision from %s: unsupported engine type %s", args.Source, srcRef.Kind)
	}
	switch srcRef.Kind {
	case appliance.EngineAppData:
		if args.MountPath == "" {
			return appliance.Result{}, invalid(op, "a mount path is required to provision vFiles %s", args.Name)
		}
	case appliance.EngineOracle, appliance.EngineASE:
		if args.MountBase == "" {
			return appliance.Result{}, invalid(op, "a mount base is required to provision %s", args.Name)
		}
	}

	groupRef, err := resolve.FindByName(ctx, s, appliance.KindGroup, args.Group)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Group, err)
	}
	envRef, err := resolve.FindEnvironment(ctx, s, args.Environment)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Environment, err)
	}
	repoRef, err := resolve.FindRepo(ctx, s, shape.repo, envRef.ID, args.Repository)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Repository, err)
	}

	pit := args.Point
	if pit == nil {
		pit = timeflow.LatestPoint{Of: timeflow.KindSnapshot}
	}
	point, err := timeflow.Resolve(ctx, s, srcRef, pit)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Source, err)
	}

	dbName := args.DatabaseName
	if dbName == "" {
		dbName = args.Name
	}
	params := appliance.ProvisionParameters{
		Type:      shape.params,
		Container: appliance.ContainerSpec{Type: shape.container, Name: args.Name, Group: groupRef.ID},
		Source:    appliance.VirtualSourceSpec{Type: shape.source, Name: args.Name},
		SourceConfig: appliance.SourceConfigSpec{
			Type:       shape.config,
			Repository: repoRef.ID,
		},
		TimeflowPointParameters: point,
	}
	if args.AutoRestart {
		restart := true
		params.Source.AllowAutoVDBRestartOnHostReboot = &restart
	}

	switch srcRef.Kind {
	case appliance.EngineOracle:
		params.Source.MountBase = args.MountBase
		params.SourceConfig.DatabaseName = dbName
		params.SourceConfig.UniqueName = dbName
		params.SourceConfig.Instance = &appliance.OracleInstance{Type: "OracleInstance", InstanceName: dbName, InstanceNumber: 1}
	case appliance.EngineMSSql:
		params.SourceConfig.DatabaseName = dbName
	case appliance.EngineASE:
		params.Source.MountBase = args.MountBase
		params.SourceConfig.DatabaseName = dbName
	case appliance.EngineAppData:
		params.Source.Parameters = map[string]any{}
		params.SourceConfig.Name = args.Name
		params.SourceConfig.Path = args.MountPath
	}

	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Action(ctx, appliance.KindDatabase, "", "provision", params)
	})
}

// RefreshArgs selects a VDB and the point of its parent to refresh to.
type RefreshArgs struct {
	// Name is the VDB name.
	Name string `validate:"required"`

	// Point is resolved against the VDB's parent (default: latest snapshot).
	Point timeflow.PointInTime
}

// Refresh refreshes a VDB from its parent. A job already running on the VDB
// is waited for before the refresh is issued.
func Refresh(ctx context.Context, s *engine.Session, args RefreshArgs) (appliance.Result, error) {
	const op = "refresh"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	db, err := resolve.FindDatabase(ctx, s, args.Name)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Name, err)
	}
	ref := db.Ref()
	s.Logger().Infof("refreshing %s to %s", args.Name, describe(args.Point))
	if err := waitForRunningJob(ctx, s, op, ref); err != nil {
		return appliance.Result{}, err
	}

	// Refresh reads from the parent's timeflow. A container without a parent
	// is refreshed from its own.
	parent := ref
	if db.IsVirtual() {
		parent = appliance.ParseRef(db.ProvisionContainer)
	}
	pit := args.Point
	if pit == nil {
		pit = timeflow.LatestPoint{Of: timeflow.KindSnapshot}
	}
	point, err := timeflow.Resolve(ctx, s, parent, pit)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Name, err)
	}

	params := appliance.RefreshParameters{Type: paramType(ref, "RefreshParameters"), TimeflowPointParameters: point}
	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Action(ctx, appliance.KindDatabase, ref.ID, "refresh", params)
	})
}

// RewindArgs selects a VDB and a point on its own timeflow.
type RewindArgs struct {
	Name  string               `validate:"required"`
	Point timeflow.PointInTime `validate:"required"`
}

// Rewind rolls a VDB back to a point on its own timeflow.
func Rewind(ctx context.Context, s *engine.Session, args RewindArgs) (appliance.Result, error) {
	const op = "rewind"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	db, err := resolve.FindDatabase(ctx, s, args.Name)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Name, err)
	}
	ref := db.Ref()
	if !db.IsVirtual() {
		return appliance.Result{}, invalid(op, "%s is not a virtual database", args.Name)
	}
	if err := waitForRunningJob(ctx, s, op, ref); err != nil {
		return appliance.Result{}, err
	}
	point, err := timeflow.Resolve(ctx, s, ref, args.Point)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Name, err)
	}

	params := appliance.RollbackParameters{Type: paramType(ref, "RollbackParameters"), TimeflowPointParameters: point}
	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Action(ctx, appliance.KindDatabase, ref.ID, "rollback", params)
	})
}

// SnapshotArgs selects one database by name or every database of a group.
type SnapshotArgs struct {
	Name  string `validate:"required_without=Group,excluded_with=Group"`
	Group string `validate:"required_without=Name"`

	// ExcludeSelfService skips databases backing self-service containers
	// when snapshotting a group.
	ExcludeSelfService bool
}

var syncTypes = map[appliance.EngineType]string{
	appliance.EngineOracle:  "OracleSyncParameters",
	appliance.EngineMSSql:   "MSSqlSyncParameters",
	appliance.EngineASE:     "ASELatestBackupSyncParameters",
	appliance.EngineAppData: "AppDataSyncParameters",
}

// Snapshot takes a snapshot of one database or of every database in a
// group, in appliance order. It returns one result per snapshot issued.
func Snapshot(ctx context.Context, s *engine.Session, args SnapshotArgs) ([]appliance.Result, error) {
	const op = "snapshot"
	if err := check(op, args); err != nil {
		return nil, err
	}

	var dbs []appliance.Database
	if args.Group != "" {
		found, err := resolve.GroupDatabases(ctx, s, args.Group, args.ExcludeSelfService)
		if err != nil {
			return nil, failed(s, op, args.Group, err)
		}
		dbs = found
	} else {
		db, err := resolve.FindDatabase(ctx, s, args.Name)
		if err != nil {
			return nil, failed(s, op, args.Name, err)
		}
		dbs = []appliance.Database{db}
	}

	results := make([]appliance.Result, 0, len(dbs))
	for _, db := range dbs {
		ref := db.Ref()
		typ, ok := syncTypes[ref.Kind]
		if !ok {
			typ = "SyncParameters"
		}
		res, err := submit(ctx, s, op, db.Name, func(c appliance.Client) (appliance.Result, error) {
			return c.Action(ctx, appliance.KindDatabase, ref.ID, "sync", appliance.SyncParameters{Type: typ})
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// DeleteArgs selects a database to delete.
type DeleteArgs struct {
	Name  string `validate:"required"`
	Force bool
}

// Delete removes a database container.
func Delete(ctx context.Context, s *engine.Session, args DeleteArgs) (appliance.Result, error) {
	const op = "delete"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	db, err := resolve.FindDatabase(ctx, s, args.Name)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Name, err)
	}
	ref := db.Ref()
	params := appliance.DeleteParameters{Type: paramType(ref, "DeleteParameters"), Force: args.Force}
	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Delete(ctx, appliance.KindDatabase, ref.ID, params)
	})
}

// SourceAction is a state change of a database's source.
type SourceAction string

const (
	SourceStart   SourceAction = "start"
	SourceStop    SourceAction = "stop"
	SourceEnable  SourceAction = "enable"
	SourceDisable SourceAction = "disable"
)

var sourceActionBodies = map[SourceAction]string{
	SourceStart:   "StartParameters",
	SourceStop:    "StopParameters",
	SourceEnable:  "SourceEnableParameters",
	SourceDisable: "SourceDisableParameters",
}

// SetSourceState starts, stops, enables or disables the source of the
// database named name.
func SetSourceState(ctx context.Context, s *engine.Session, name string, action SourceAction) (appliance.Result, error) {
	op := string(action)
	body, ok := sourceActionBodies[action]
	if !ok {
		return appliance.Result{}, invalid("source", "unknown action %q", action)
	}
	if name == "" {
		return appliance.Result{}, invalid(op, "a database name is required")
	}
	db, err := resolve.FindDatabase(ctx, s, name)
	if err != nil {
		return appliance.Result{}, failed(s, op, name, err)
	}
	src, err := resolve.FindSource(ctx, s, db.Ref())
	if err != nil {
		return appliance.Result{}, failed(s, op, name, err)
	}
	return submit(ctx, s, op, name, func(c appliance.Client) (appliance.Result, error) {
		return c.Action(ctx, appliance.KindSource, src.Reference, string(action), appliance.Typed(body))
	})
}

// waitForRunningJob blocks until no job is running on ref.
func waitForRunningJob(ctx context.Context, s *engine.Session, op string, ref appliance.ObjectRef) error {
	h, err := resolve.FindRunningJob(ctx, s, ref)
	if err != nil {
		return failed(s, op, ref.ID, err)
	}
	if h == nil {
		return nil
	}
	s.Logger().WithJob(h.Reference).Infof("waiting for running job %s on %s before %s", h.Reference, ref, op)
	if _, err := s.Await(ctx, h); err != nil && !engine.IsJob(err) {
		return failed(s, op, ref.ID, err)
	}
	// A running job that failed does not block the new operation.
	return nil
}

// describe is used in log lines for a point in time that may be unset.
func describe(pit timeflow.PointInTime) string {
	if pit == nil {
		return "latest snapshot"
	}
	return fmt.Sprint(pit)
}
