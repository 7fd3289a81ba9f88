// Package timeflow resolves user-supplied points in time into the timeflow
// point references sent to the appliance, and converts timestamps between
// UTC and an appliance's display zone.
package timeflow

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ddpfleet/ddpfleet/pkg/engine"
)

// Kind is the --timestamp-type of a point in time.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindTime     Kind = "time"
	KindBookmark Kind = "bookmark"
	KindLocation Kind = "location"
)

// Latest is the value selecting the most recent snapshot or point.
const Latest = "LATEST"

// PointInTime is a parsed point-in-time expression.
type PointInTime interface {
	Kind() Kind
	String() string
}

// LatestPoint is the most recent snapshot (Of == KindSnapshot) or the most
// recent point on the current timeflow (Of == KindTime).
type LatestPoint struct {
	Of Kind
}

// NamedSnapshot selects the snapshot whose name starts with Name.
type NamedSnapshot struct {
	Name string
}

// SnapshotAtTimestamp selects the snapshot whose latest change point
// timestamp starts with Timestamp.
type SnapshotAtTimestamp struct {
	Timestamp string
}

// ExactTimestamp selects an instant on the database's current timeflow.
// When Local is set, At carries a wall clock in the appliance's zone.
type ExactTimestamp struct {
	At    time.Time
	Local bool
}

// AtLocation selects a change location on a timeflow.
type AtLocation struct {
	Timeflow string
	Location string
}

// AtBookmark selects a timeflow bookmark.
type AtBookmark struct {
	Bookmark string
}

// Kind implements PointInTime.
func (p LatestPoint) Kind() Kind {
	return p.Of
}

// Kind implements PointInTime.
func (NamedSnapshot) Kind() Kind {
	return KindSnapshot
}

// Kind implements PointInTime.
func (SnapshotAtTimestamp) Kind() Kind {
	return KindSnapshot
}

// Kind implements PointInTime.
func (ExactTimestamp) Kind() Kind {
	return KindTime
}

// Kind implements PointInTime.
func (AtLocation) Kind() Kind {
	return KindLocation
}

// Kind implements PointInTime.
func (AtBookmark) Kind() Kind {
	return KindBookmark
}

func (p LatestPoint) String() string {
	return fmt.Sprintf("latest %s", p.Of)
}

func (p NamedSnapshot) String() string {
	return fmt.Sprintf("snapshot %s", p.Name)
}

func (p SnapshotAtTimestamp) String() string {
	return fmt.Sprintf("snapshot at %s", p.Timestamp)
}

func (p AtLocation) String() string {
	return fmt.Sprintf("location %s@%s", p.Timeflow, p.Location)
}

func (p AtBookmark) String() string {
	return fmt.Sprintf("bookmark %s", p.Bookmark)
}

func (p ExactTimestamp) String() string {
	if p.Local {
		return fmt.Sprintf("time %s (appliance zone)", p.At.Format(localLayout))
	}
	return fmt.Sprintf("time %s", FormatUTC(p.At))
}

// snapshotStamp matches a full or truncated appliance timestamp.
var snapshotStamp = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2}([T ]\d{2}(:\d{2}(:\d{2}(\.\d+)?)?)?)?)?)?Z?$`)

// Parse maps a --timestamp-type / --timestamp pair to a point in time.
func Parse(kind, value string) (PointInTime, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, parseError(kind, value, "a value is required")
	}

	switch Kind(strings.ToLower(kind)) {
	case KindSnapshot:
		switch {
		case strings.EqualFold(value, Latest):
			return LatestPoint{Of: KindSnapshot}, nil
		case strings.HasPrefix(value, "@"):
			return NamedSnapshot{Name: value}, nil
		case snapshotStamp.MatchString(value):
			return SnapshotAtTimestamp{Timestamp: strings.Replace(value, " ", "T", 1)}, nil
		default:
			return nil, parseError(kind, value, "expected LATEST, a snapshot name starting with @, or a timestamp")
		}

	case KindTime:
		if strings.EqualFold(value, Latest) {
			return LatestPoint{Of: KindTime}, nil
		}
		if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
			if t.Nanosecond()%int(time.Millisecond) != 0 {
				return nil, parseError(kind, value, "appliance timestamps carry at most millisecond precision")
			}
			return ExactTimestamp{At: t.UTC()}, nil
		}
		for _, layout := range []string{localLayout, "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
			if t, err := time.Parse(layout, value); err == nil {
				return ExactTimestamp{At: t, Local: true}, nil
			}
		}
		return nil, parseError(kind, value, "expected LATEST or a timestamp such as 2024-01-05T10:00:00Z")

	case KindBookmark:
		return AtBookmark{Bookmark: value}, nil

	case KindLocation:
		timeflow, location, ok := strings.Cut(value, "@")
		if !ok || timeflow == "" || location == "" {
			return nil, parseError(kind, value, "expected timeflow@location")
		}
		return AtLocation{Timeflow: timeflow, Location: location}, nil

	default:
		return nil, engine.NewConfigError(fmt.Sprintf("unknown timestamp type %q (snapshot, time, bookmark or location)", kind), nil).
			WithCode(engine.ErrCodeValidation)
	}
}

func parseError(kind, value, reason string) error {
	return engine.NewConfigError(fmt.Sprintf("invalid %s point in time %q: %s", kind, value, reason), nil).
		WithCode(engine.ErrCodeValidation)
}
