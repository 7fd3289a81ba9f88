package inventory

// Fleet is a loaded inventory. Records are immutable and kept in file order:
// appliance classes sorted by name, then array order within a class.
type Fleet struct {
	path     string
	format   Format
	records  []EngineRecord
	byHost   map[string]int
	migrated int
}

// NewFleet builds a fleet from already-encrypted records in the given order.
func NewFleet(records ...EngineRecord) *Fleet {
	f := &Fleet{byHost: make(map[string]int, len(records))}
	for _, r := range records {
		f.byHost[r.Hostname] = len(f.records)
		f.records = append(f.records, r)
	}
	return f
}

// Path returns the inventory file path.
func (f *Fleet) Path() string {
	return f.path
}

// Format returns the inventory encoding.
func (f *Fleet) Format() Format {
	return f.format
}

// Len returns the number of engines.
func (f *Fleet) Len() int {
	return len(f.records)
}

// Migrated returns how many records were encrypted and persisted by Load.
func (f *Fleet) Migrated() int {
	return f.migrated
}

// Engines returns all records in fleet order.
func (f *Fleet) Engines() []EngineRecord {
	out := make([]EngineRecord, len(f.records))
	copy(out, f.records)
	return out
}

// Lookup returns the record with the given hostname.
func (f *Fleet) Lookup(hostname string) (EngineRecord, bool) {
	idx, ok := f.byHost[hostname]
	if !ok {
		return EngineRecord{}, false
	}
	return f.records[idx], true
}

// Default returns the record marked default, if any.
func (f *Fleet) Default() (EngineRecord, bool) {
	for _, r := range f.records {
		if r.IsDefault {
			return r, true
		}
	}
	return EngineRecord{}, false
}
