package timeflow

import (
	"fmt"
	"time"
)

// applianceLayout is the timestamp format used on the wire.
const applianceLayout = "2006-01-02T15:04:05.000Z"

// localLayout is the wall-clock format accepted for zone-less input.
const localLayout = "2006-01-02T15:04:05"

// displayLayout is used when printing converted timestamps.
const displayLayout = "2006-01-02 15:04:05 MST"

// FormatUTC renders t as an appliance timestamp.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(applianceLayout)
}

// ParseUTC parses an appliance timestamp.
func ParseUTC(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid appliance timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ConvertToZone returns the instant utc expressed in zone.
func ConvertToZone(utc time.Time, zone string) (time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown time zone %q: %w", zone, err)
	}
	return utc.In(loc), nil
}

// ToUTC interprets the wall clock of local as a time in zone and returns
// the corresponding UTC instant. The location of local is ignored.
func ToUTC(local time.Time, zone string) (time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown time zone %q: %w", zone, err)
	}
	y, mo, d := local.Date()
	h, mi, s := local.Clock()
	return time.Date(y, mo, d, h, mi, s, local.Nanosecond(), loc).UTC(), nil
}

// Display converts an appliance timestamp to zone for printing. Values that
// do not parse are returned unchanged.
func Display(timestamp, zone string) string {
	t, err := ParseUTC(timestamp)
	if err != nil {
		return timestamp
	}
	local, err := ConvertToZone(t, zone)
	if err != nil {
		return timestamp
	}
	return local.Format(displayLayout)
}
