package timeflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/resolve"
)

// Resolve returns the timeflow point of db selected by pit. Snapshot names
// and timestamps are prefix matches that must select exactly one snapshot
// of db. Resolution does not depend on the engine type of db.
func Resolve(ctx context.Context, s *engine.Session, db appliance.ObjectRef, pit PointInTime) (appliance.TimeflowPoint, error) {
	switch p := pit.(type) {
	case LatestPoint:
		if p.Of == KindTime {
			return appliance.SemanticPoint(db.ID, appliance.LocationLatestPoint), nil
		}
		return appliance.SemanticPoint(db.ID, appliance.LocationLatestSnapshot), nil

	case NamedSnapshot:
		snap, err := FindSnapshot(ctx, s, db, fmt.Sprintf("name %q", p.Name), func(sn appliance.Snapshot) bool {
			return strings.HasPrefix(sn.Name, p.Name)
		})
		if err != nil {
			return nil, err
		}
		return appliance.LocationPoint(snap.LatestChangePoint.Timeflow, snap.LatestChangePoint.Location), nil

	case SnapshotAtTimestamp:
		snap, err := FindSnapshot(ctx, s, db, fmt.Sprintf("timestamp %q", p.Timestamp), func(sn appliance.Snapshot) bool {
			return strings.HasPrefix(sn.LatestChangePoint.Timestamp, p.Timestamp)
		})
		if err != nil {
			return nil, err
		}
		return appliance.TimestampPoint(snap.LatestChangePoint.Timeflow, snap.LatestChangePoint.Timestamp), nil

	case ExactTimestamp:
		at := p.At
		if p.Local {
			zone, err := s.Zone(ctx)
			if err != nil {
				return nil, err
			}
			if at, err = ToUTC(p.At, zone); err != nil {
				return nil, engine.NewRequestError("cannot interpret timestamp in appliance zone", err)
			}
		}
		database, err := resolve.GetDatabase(ctx, s, db)
		if err != nil {
			return nil, err
		}
		if database.CurrentTimeflow == "" {
			return nil, engine.NewNotFoundError("database has no current timeflow", nil).WithResource(db.ID)
		}
		return appliance.TimestampPoint(database.CurrentTimeflow, FormatUTC(at)), nil

	case AtLocation:
		return appliance.LocationPoint(p.Timeflow, p.Location), nil

	case AtBookmark:
		return appliance.BookmarkPoint(p.Bookmark), nil

	default:
		return nil, engine.NewInternalError(fmt.Sprintf("unsupported point in time %T", pit), nil)
	}
}

// FindSnapshot returns the single snapshot of db accepted by match.
func FindSnapshot(ctx context.Context, s *engine.Session, db appliance.ObjectRef, desc string, match func(appliance.Snapshot) bool) (appliance.Snapshot, error) {
	return resolve.FindOne(ctx, s, appliance.KindSnapshot, appliance.Query{"database": db.ID}, desc, func(sn appliance.Snapshot) bool {
		return sn.Container == db.ID && match(sn)
	})
}

// Snapshots lists the snapshots of db in appliance order.
func Snapshots(ctx context.Context, s *engine.Session, db appliance.ObjectRef) ([]appliance.Snapshot, error) {
	snaps, err := resolve.List[appliance.Snapshot](ctx, s, appliance.KindSnapshot, appliance.Query{"database": db.ID})
	if err != nil {
		return nil, err
	}
	out := snaps[:0]
	for _, sn := range snaps {
		if sn.Container == db.ID {
			out = append(out, sn)
		}
	}
	return out, nil
}
