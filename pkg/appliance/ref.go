package appliance

import (
	"encoding/json"
	"strings"
)

// EngineType is the database platform an object reference belongs to.
// It is derived once from the reference prefix and never re-parsed.
type EngineType string

const (
	// EngineOracle marks Oracle containers and sources.
	EngineOracle EngineType = "oracle"

	// EngineMSSql marks SQL Server containers and sources.
	EngineMSSql EngineType = "mssql"

	// EngineASE marks SAP ASE containers and sources.
	EngineASE EngineType = "ase"

	// EngineAppData marks vFiles (unstructured data) containers and sources.
	EngineAppData EngineType = "appdata"

	// EngineUnknown is used for every other reference.
	EngineUnknown EngineType = "unknown"
)

// String returns the engine type name.
func (t EngineType) String() string {
	return string(t)
}

var refPrefixes = []struct {
	prefix string
	kind   EngineType
}{
	{"ORACLE", EngineOracle},
	{"MSSQL", EngineMSSql},
	{"ASE", EngineASE},
	{"APPDATA", EngineAppData},
}

// ObjectRef is an opaque appliance reference tagged with its engine type.
type ObjectRef struct {
	// Kind is the engine type parsed from the reference prefix.
	Kind EngineType

	// ID is the reference as issued by the appliance, e.g. ORACLE_DB_CONTAINER-12.
	ID string
}

// ParseRef classifies a raw appliance reference.
func ParseRef(id string) ObjectRef {
	upper := strings.ToUpper(id)
	for _, p := range refPrefixes {
		if strings.HasPrefix(upper, p.prefix) {
			return ObjectRef{Kind: p.kind, ID: id}
		}
	}
	return ObjectRef{Kind: EngineUnknown, ID: id}
}

// IsZero reports whether the reference is empty.
func (r ObjectRef) IsZero() bool {
	return r.ID == ""
}

// String returns the raw reference.
func (r ObjectRef) String() string {
	return r.ID
}

// MarshalJSON encodes the reference as the plain appliance string.
func (r ObjectRef) MarshalJSON() ([]byte, error) {
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

// UnmarshalJSON decodes a plain appliance string and classifies it.
func (r *ObjectRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ObjectRef{}
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*r = ParseRef(id)
	return nil
}
