package ops

import (
	"context"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/resolve"
	"github.com/ddpfleet/ddpfleet/pkg/timeflow"
)

// DatabaseRow is one line of a database listing.
type DatabaseRow struct {
	Engine   string `json:"engine"`
	Name     string `json:"name"`
	Ref      string `json:"reference"`
	Type     string `json:"type"`
	Platform string `json:"platform"`
	Group    string `json:"group,omitempty"`
	Parent   string `json:"parent,omitempty"`
	Virtual  bool   `json:"virtual"`
}

// ListDatabases lists the databases of one group, or all of them when group
// is empty, in appliance order.
func ListDatabases(ctx context.Context, s *engine.Session, group string) ([]DatabaseRow, error) {
	const op = "list databases"
	var (
		dbs []appliance.Database
		err error
	)
	if group != "" {
		dbs, err = resolve.GroupDatabases(ctx, s, group, false)
	} else {
		dbs, err = resolve.List[appliance.Database](ctx, s, appliance.KindDatabase, nil)
	}
	if err != nil {
		return nil, failed(s, op, group, err)
	}

	groups := make(map[string]string)
	rows := make([]DatabaseRow, 0, len(dbs))
	for _, db := range dbs {
		row := DatabaseRow{
			Engine:   s.Hostname(),
			Name:     db.Name,
			Ref:      db.Reference,
			Type:     db.Type,
			Platform: db.Ref().Kind.String(),
			Virtual:  db.IsVirtual(),
			Parent:   db.ProvisionContainer,
		}
		if db.Group != "" {
			name, ok := groups[db.Group]
			if !ok {
				if name, err = resolve.FindName(ctx, s, appliance.KindGroup, db.Group); err != nil {
					return nil, failed(s, op, db.Group, err)
				}
				groups[db.Group] = name
			}
			row.Group = name
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SnapshotRow is one line of a snapshot listing. Times are shown in the
// appliance's display zone.
type SnapshotRow struct {
	Engine    string `json:"engine"`
	Database  string `json:"database"`
	Name      string `json:"name"`
	Ref       string `json:"reference"`
	Timeflow  string `json:"timeflow"`
	Location  string `json:"location"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Zone      string `json:"zone"`
	Retention int    `json:"retention"`
}

// ListSnapshots lists the snapshots of the database named database, or of
// every database when it is empty.
func ListSnapshots(ctx context.Context, s *engine.Session, database string) ([]SnapshotRow, error) {
	const op = "list snapshots"
	zone, err := s.Zone(ctx)
	if err != nil {
		return nil, failed(s, op, database, err)
	}

	var dbs []appliance.Database
	if database != "" {
		db, err := resolve.FindDatabase(ctx, s, database)
		if err != nil {
			return nil, failed(s, op, database, err)
		}
		dbs = []appliance.Database{db}
	} else {
		all, err := resolve.List[appliance.Database](ctx, s, appliance.KindDatabase, nil)
		if err != nil {
			return nil, failed(s, op, database, err)
		}
		dbs = all
	}

	var rows []SnapshotRow
	for _, db := range dbs {
		snaps, err := timeflow.Snapshots(ctx, s, db.Ref())
		if err != nil {
			return nil, failed(s, op, db.Name, err)
		}
		for _, sn := range snaps {
			rows = append(rows, SnapshotRow{
				Engine:    s.Hostname(),
				Database:  db.Name,
				Name:      sn.Name,
				Ref:       sn.Reference,
				Timeflow:  sn.LatestChangePoint.Timeflow,
				Location:  sn.LatestChangePoint.Location,
				Start:     timeflow.Display(sn.FirstChangePoint.Timestamp, zone),
				End:       timeflow.Display(sn.LatestChangePoint.Timestamp, zone),
				Zone:      zone,
				Retention: sn.Retention,
			})
		}
	}
	return rows, nil
}

// JobRow is one line of a job listing.
type JobRow struct {
	Engine    string             `json:"engine"`
	Ref       string             `json:"reference"`
	Action    string             `json:"action"`
	Target    string             `json:"target"`
	State     appliance.JobState `json:"state"`
	Percent   float64            `json:"percent"`
	Started   string             `json:"started"`
	Updated   string             `json:"updated"`
	LastError string             `json:"last_error,omitempty"`
}

// ListJobs lists appliance jobs, optionally only those in state.
func ListJobs(ctx context.Context, s *engine.Session, state appliance.JobState) ([]JobRow, error) {
	const op = "list jobs"
	var query appliance.Query
	if state != "" {
		if err := state.Validate(); err != nil {
			return nil, invalid(op, "%v", err)
		}
		query = appliance.Query{"jobState": string(state)}
	}
	jobs, err := resolve.List[appliance.Job](ctx, s, appliance.KindJob, query)
	if err != nil {
		return nil, failed(s, op, string(state), err)
	}
	zone, err := s.Zone(ctx)
	if err != nil {
		return nil, failed(s, op, string(state), err)
	}

	rows := make([]JobRow, 0, len(jobs))
	for _, j := range jobs {
		if state != "" && j.JobState != state {
			continue
		}
		rows = append(rows, JobRow{
			Engine:    s.Hostname(),
			Ref:       j.Reference,
			Action:    j.ActionType,
			Target:    targetName(j),
			State:     j.JobState,
			Percent:   j.PercentComplete,
			Started:   timeflow.Display(j.StartTime, zone),
			Updated:   timeflow.Display(j.UpdateTime, zone),
			LastError: j.LastError(),
		})
	}
	return rows, nil
}

func targetName(j appliance.Job) string {
	if j.TargetName != "" {
		return j.TargetName
	}
	return j.Target
}
