package appliance

// Kind names an appliance object collection.
type Kind string

const (
	KindDatabase             Kind = "database"
	KindSource               Kind = "source"
	KindSourceConfig         Kind = "sourceconfig"
	KindEnvironment          Kind = "environment"
	KindRepository           Kind = "repository"
	KindHost                 Kind = "host"
	KindUser                 Kind = "user"
	KindRole                 Kind = "role"
	KindAuthorization        Kind = "authorization"
	KindGroup                Kind = "group"
	KindSnapshot             Kind = "snapshot"
	KindTimeflow             Kind = "timeflow"
	KindTimeflowBookmark     Kind = "timeflow/bookmark"
	KindSelfServiceTemplate  Kind = "selfservice/template"
	KindSelfServiceContainer Kind = "selfservice/container"
	KindSelfServiceBranch    Kind = "selfservice/branch"
	KindSelfServiceBookmark  Kind = "selfservice/bookmark"
	KindSelfServiceSource    Kind = "selfservice/datasource"
	KindSelfServiceOperation Kind = "selfservice/operation"
	KindReplicationSpec      Kind = "replication/spec"
	KindJob                  Kind = "job"
	KindServiceTime          Kind = "service/time"
	KindSystem               Kind = "system"
)

// Path returns the collection path relative to the API root.
func (k Kind) Path() string {
	return string(k)
}

// String returns the collection name.
func (k Kind) String() string {
	return string(k)
}

// Query holds collection filter parameters, e.g. {"database": "ORACLE_DB_CONTAINER-3"}.
type Query map[string]string
