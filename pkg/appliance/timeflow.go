package appliance

// Semantic timeflow locations understood by the appliance.
const (
	LocationLatestSnapshot = "LATEST_SNAPSHOT"
	LocationLatestPoint    = "LATEST_POINT"
)

// TimeflowPoint is a wire-level timeflow point reference. Exactly one of the
// concrete types below is sent as timeflowPointParameters.
type TimeflowPoint interface {
	timeflowPoint()
}

// TimeflowPointSemantic names a semantic location on a container.
type TimeflowPointSemantic struct {
	Type      string `json:"type"`
	Container string `json:"container"`
	Location  string `json:"location"`
}

// TimeflowPointLocation names a change location on a timeflow.
type TimeflowPointLocation struct {
	Type     string `json:"type"`
	Timeflow string `json:"timeflow"`
	Location string `json:"location"`
}

// TimeflowPointTimestamp names an instant on a timeflow.
type TimeflowPointTimestamp struct {
	Type      string `json:"type"`
	Timeflow  string `json:"timeflow"`
	Timestamp string `json:"timestamp"`
}

// TimeflowPointBookmark names a timeflow bookmark.
type TimeflowPointBookmark struct {
	Type     string `json:"type"`
	Bookmark string `json:"bookmark"`
}

func (TimeflowPointSemantic) timeflowPoint()  {}
func (TimeflowPointLocation) timeflowPoint()  {}
func (TimeflowPointTimestamp) timeflowPoint() {}
func (TimeflowPointBookmark) timeflowPoint()  {}

// SemanticPoint builds a TimeflowPointSemantic.
func SemanticPoint(container, location string) TimeflowPointSemantic {
	return TimeflowPointSemantic{Type: "TimeflowPointSemantic", Container: container, Location: location}
}

// LocationPoint builds a TimeflowPointLocation.
func LocationPoint(timeflow, location string) TimeflowPointLocation {
	return TimeflowPointLocation{Type: "TimeflowPointLocation", Timeflow: timeflow, Location: location}
}

// TimestampPoint builds a TimeflowPointTimestamp.
func TimestampPoint(timeflow, timestamp string) TimeflowPointTimestamp {
	return TimeflowPointTimestamp{Type: "TimeflowPointTimestamp", Timeflow: timeflow, Timestamp: timestamp}
}

// BookmarkPoint builds a TimeflowPointBookmark.
func BookmarkPoint(bookmark string) TimeflowPointBookmark {
	return TimeflowPointBookmark{Type: "TimeflowPointBookmark", Bookmark: bookmark}
}
