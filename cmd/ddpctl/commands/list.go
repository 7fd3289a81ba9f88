package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/ops"
)

func newListCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List databases, snapshots and jobs",
		Long: `List objects of the selected engines. Times are shown in each engine's
time zone. Use --json for machine readable output.`,
	}

	cmd.AddCommand(newListDatabasesCommand(a))
	cmd.AddCommand(newListSnapshotsCommand(a))
	cmd.AddCommand(newListJobsCommand(a))

	return cmd
}

var databaseTable = table[ops.DatabaseRow]{
	header: []string{"ENGINE", "NAME", "TYPE", "PLATFORM", "GROUP", "PARENT", "VIRTUAL"},
	engine: func(r ops.DatabaseRow) string { return r.Engine },
	cells: func(r ops.DatabaseRow) []string {
		return []string{r.Engine, r.Name, r.Type, orDash(r.Platform), orDash(r.Group), orDash(r.Parent), strconv.FormatBool(r.Virtual)}
	},
}

func newListDatabasesCommand(a *app) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:     "databases",
		Short:   "List databases",
		Example: `  ddpctl --all list databases --group Dev`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := &collector[ops.DatabaseRow]{}
			return a.runFleet(cmd, fleetCommand{
				name: "list databases",
				workflow: func(ctx context.Context, s *engine.Session) error {
					found, err := ops.ListDatabases(ctx, s, group)
					rows.add(found...)
					return err
				},
				report: databaseTable.report(rows),
			})
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "only databases of this group")

	return cmd
}

var snapshotTable = table[ops.SnapshotRow]{
	header: []string{"ENGINE", "DATABASE", "SNAPSHOT", "START", "END", "ZONE", "RETENTION"},
	engine: func(r ops.SnapshotRow) string { return r.Engine },
	cells: func(r ops.SnapshotRow) []string {
		var retention string
		switch {
		case r.Retention < 0:
			retention = "forever"
		case r.Retention == 0:
			retention = "policy"
		default:
			retention = fmt.Sprintf("%d days", r.Retention)
		}
		return []string{r.Engine, r.Database, r.Name, r.Start, r.End, r.Zone, retention}
	},
}

func newListSnapshotsCommand(a *app) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:     "snapshots",
		Short:   "List snapshots",
		Example: `  ddpctl list snapshots --database orcl`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := &collector[ops.SnapshotRow]{}
			return a.runFleet(cmd, fleetCommand{
				name: "list snapshots",
				workflow: func(ctx context.Context, s *engine.Session) error {
					found, err := ops.ListSnapshots(ctx, s, database)
					rows.add(found...)
					return err
				},
				report: snapshotTable.report(rows),
			})
		},
	}

	cmd.Flags().StringVar(&database, "database", "", "only snapshots of this database")

	return cmd
}

var jobTable = table[ops.JobRow]{
	header: []string{"ENGINE", "JOB", "ACTION", "TARGET", "STATE", "PERCENT", "STARTED", "UPDATED"},
	engine: func(r ops.JobRow) string { return r.Engine },
	cells: func(r ops.JobRow) []string {
		return []string{r.Engine, r.Ref, r.Action, orDash(r.Target), string(r.State),
			strconv.FormatFloat(r.Percent, 'f', 0, 64), r.Started, r.Updated}
	},
}

func newListJobsCommand(a *app) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:     "jobs",
		Short:   "List appliance jobs",
		Example: `  ddpctl --all list jobs --state running`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := &collector[ops.JobRow]{}
			return a.runFleet(cmd, fleetCommand{
				name: "list jobs",
				workflow: func(ctx context.Context, s *engine.Session) error {
					found, err := ops.ListJobs(ctx, s, appliance.JobState(strings.ToUpper(state)))
					rows.add(found...)
					return err
				},
				report: jobTable.report(rows),
			})
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "only jobs in this state (running, suspended, completed, canceled, failed)")

	return cmd
}
