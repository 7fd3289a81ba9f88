package appliance

// RefreshParameters is the body of database/{ref}/refresh.
type RefreshParameters struct {
	Type                    string        `json:"type"`
	TimeflowPointParameters TimeflowPoint `json:"timeflowPointParameters"`
}

// RollbackParameters is the body of database/{ref}/rollback.
type RollbackParameters struct {
	Type                    string        `json:"type"`
	TimeflowPointParameters TimeflowPoint `json:"timeflowPointParameters"`
}

// SyncParameters is the body of database/{ref}/sync.
type SyncParameters struct {
	Type               string `json:"type"`
	CompressionEnabled *bool  `json:"compressionEnabled,omitempty"`
}

// DeleteParameters is the body of database/{ref}/delete.
type DeleteParameters struct {
	Type  string `json:"type"`
	Force bool   `json:"force"`
}

// ProvisionParameters is the body of database/provision.
type ProvisionParameters struct {
	Type                    string            `json:"type"`
	Container               ContainerSpec     `json:"container"`
	Source                  VirtualSourceSpec `json:"source"`
	SourceConfig            SourceConfigSpec  `json:"sourceConfig"`
	TimeflowPointParameters TimeflowPoint     `json:"timeflowPointParameters"`
}

// ContainerSpec names the container created by a provision.
type ContainerSpec struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// VirtualSourceSpec configures the virtual source created by a provision.
type VirtualSourceSpec struct {
	Type                            string         `json:"type"`
	Name                            string         `json:"name,omitempty"`
	MountBase                       string         `json:"mountBase,omitempty"`
	AllowAutoVDBRestartOnHostReboot *bool          `json:"allowAutoVDBRestartOnHostReboot,omitempty"`
	Parameters                      map[string]any `json:"parameters,omitempty"`
}

// SourceConfigSpec configures the database created on the target environment.
type SourceConfigSpec struct {
	Type         string          `json:"type"`
	Name         string          `json:"name,omitempty"`
	DatabaseName string          `json:"databaseName,omitempty"`
	UniqueName   string          `json:"uniqueName,omitempty"`
	Repository   string          `json:"repository"`
	Path         string          `json:"path,omitempty"`
	Instance     *OracleInstance `json:"instance,omitempty"`
}

// OracleInstance identifies a single Oracle instance.
type OracleInstance struct {
	Type           string `json:"type"`
	InstanceName   string `json:"instanceName"`
	InstanceNumber int    `json:"instanceNumber"`
}

// LinkParameters is the body of database/link.
type LinkParameters struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Group       string `json:"group"`
	Description string `json:"description,omitempty"`
	LinkData    any    `json:"linkData"`
}

// OracleLinkData links an Oracle source config.
type OracleLinkData struct {
	Type            string                `json:"type"`
	Config          string                `json:"config"`
	DBUser          string                `json:"dbUser"`
	DBCredentials   Credential            `json:"dbCredentials"`
	EnvironmentUser string                `json:"environmentUser,omitempty"`
	SourcingPolicy  *OracleSourcingPolicy `json:"sourcingPolicy,omitempty"`
}

// OracleSourcingPolicy controls log sync for an Oracle dSource.
type OracleSourcingPolicy struct {
	Type           string `json:"type"`
	LogsyncEnabled bool   `json:"logsyncEnabled"`
}

// MSSqlLinkData links a SQL Server source config.
type MSSqlLinkData struct {
	Type                  string                `json:"type"`
	Config                string                `json:"config"`
	PPTRepository         string                `json:"pptRepository"`
	SharedBackupLocations []MSSqlBackupLocation `json:"sharedBackupLocations,omitempty"`
	DBUser                string                `json:"dbUser,omitempty"`
	DBCredentials         *Credential           `json:"dbCredentials,omitempty"`
}

// MSSqlBackupLocation is a share the appliance reads backups from.
type MSSqlBackupLocation struct {
	Type           string `json:"type"`
	BackupLocation string `json:"backupLocation"`
}

// UserSpec is the body of user create.
type UserSpec struct {
	Type               string     `json:"type"`
	Name               string     `json:"name"`
	EmailAddress       string     `json:"emailAddress,omitempty"`
	FirstName          string     `json:"firstName,omitempty"`
	LastName           string     `json:"lastName,omitempty"`
	AuthenticationType string     `json:"authenticationType"`
	Credential         Credential `json:"credential"`
}

// AuthorizationSpec is the body of authorization create.
type AuthorizationSpec struct {
	Type   string `json:"type"`
	User   string `json:"user"`
	Role   string `json:"role"`
	Target string `json:"target"`
}

// ReplicationSpecParameters is the body of replication/spec create.
type ReplicationSpecParameters struct {
	Type                string              `json:"type"`
	Name                string              `json:"name"`
	Description         string              `json:"description,omitempty"`
	TargetHost          string              `json:"targetHost"`
	TargetPort          int                 `json:"targetPort"`
	TargetPrincipal     string              `json:"targetPrincipal"`
	TargetCredential    Credential          `json:"targetCredential"`
	ObjectSpecification ReplicationList     `json:"objectSpecification"`
	Schedule            string              `json:"schedule,omitempty"`
	Encrypted           bool                `json:"encrypted"`
	BandwidthLimit      int                 `json:"bandwidthLimit,omitempty"`
	NumberOfConnections int                 `json:"numberOfConnections,omitempty"`
	Tags                []ReplicationTagRef `json:"tags,omitempty"`
}

// ReplicationList lists the objects a replication spec sends.
type ReplicationList struct {
	Type    string   `json:"type"`
	Objects []string `json:"objects"`
}

// ReplicationTagRef tags a replication spec.
type ReplicationTagRef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// HostEnvironmentCreateParameters is the body of environment create.
type HostEnvironmentCreateParameters struct {
	Type            string              `json:"type"`
	PrimaryUser     EnvironmentUserSpec `json:"primaryUser"`
	HostEnvironment HostEnvironmentSpec `json:"hostEnvironment"`
	HostParameters  HostCreateSpec      `json:"hostParameters"`
}

// EnvironmentUserSpec is the OS user the appliance connects as.
type EnvironmentUserSpec struct {
	Type       string     `json:"type"`
	Name       string     `json:"name"`
	Credential Credential `json:"credential"`
}

// HostEnvironmentSpec names a host environment.
type HostEnvironmentSpec struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Proxy string `json:"proxy,omitempty"`
}

// HostCreateSpec describes the host backing an environment.
type HostCreateSpec struct {
	Type string   `json:"type"`
	Host HostSpec `json:"host"`
}

// HostSpec addresses a host.
type HostSpec struct {
	Type        string `json:"type"`
	Address     string `json:"address"`
	Port        int    `json:"sshPort,omitempty"`
	ToolkitPath string `json:"toolkitPath,omitempty"`
}

// SelfServiceDataSourceSpec binds a container to a self-service layout.
type SelfServiceDataSourceSpec struct {
	Type      string                `json:"type"`
	Source    SelfServiceDataSource `json:"source"`
	Container string                `json:"container"`
}

// SelfServiceDataSource names a data source within a layout.
type SelfServiceDataSource struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Priority int    `json:"priority,omitempty"`
}

// SelfServiceTemplateCreateParameters is the body of selfservice/template create.
type SelfServiceTemplateCreateParameters struct {
	Type        string                      `json:"type"`
	Name        string                      `json:"name"`
	Description string                      `json:"description,omitempty"`
	DataSources []SelfServiceDataSourceSpec `json:"dataSources"`
}

// SelfServiceTimelinePoint selects the latest point of a data layout.
type SelfServiceTimelinePoint struct {
	Type             string `json:"type"`
	SourceDataLayout string `json:"sourceDataLayout,omitempty"`
	Bookmark         string `json:"bookmark,omitempty"`
	Branch           string `json:"branch,omitempty"`
	Time             string `json:"time,omitempty"`
}

// LatestTimelinePoint builds a JSTimelinePointLatestTimeInput.
func LatestTimelinePoint(layout string) SelfServiceTimelinePoint {
	return SelfServiceTimelinePoint{Type: "JSTimelinePointLatestTimeInput", SourceDataLayout: layout}
}

// BookmarkTimelinePoint builds a JSTimelinePointBookmarkInput.
func BookmarkTimelinePoint(bookmark string) SelfServiceTimelinePoint {
	return SelfServiceTimelinePoint{Type: "JSTimelinePointBookmarkInput", Bookmark: bookmark}
}

// SelfServiceContainerCreateParameters is the body of selfservice/container create.
type SelfServiceContainerCreateParameters struct {
	Type                    string                      `json:"type"`
	Name                    string                      `json:"name"`
	Template                string                      `json:"template"`
	TimelinePointParameters SelfServiceTimelinePoint    `json:"timelinePointParameters"`
	DataSources             []SelfServiceDataSourceSpec `json:"dataSources"`
	Owners                  []string                    `json:"owners,omitempty"`
}

// SelfServiceContainerDeleteParameters is the body of selfservice/container/{ref}/delete.
type SelfServiceContainerDeleteParameters struct {
	Type              string `json:"type"`
	DeleteDataSources bool   `json:"deleteDataSources"`
}

// SelfServiceRestoreParameters is the body of selfservice/container/{ref}/restore.
type SelfServiceRestoreParameters struct {
	Type                    string                   `json:"type"`
	TimelinePointParameters SelfServiceTimelinePoint `json:"timelinePointParameters"`
	ForceOption             bool                     `json:"forceOption"`
}

// SelfServiceBranchCreateParameters is the body of selfservice/branch create.
type SelfServiceBranchCreateParameters struct {
	Type                    string                   `json:"type"`
	Name                    string                   `json:"name"`
	DataContainer           string                   `json:"dataContainer"`
	TimelinePointParameters SelfServiceTimelinePoint `json:"timelinePointParameters"`
}

// SelfServiceBookmarkCreateParameters is the body of selfservice/bookmark create.
type SelfServiceBookmarkCreateParameters struct {
	Type                    string                   `json:"type"`
	Bookmark                SelfServiceBookmarkSpec  `json:"bookmark"`
	TimelinePointParameters SelfServiceTimelinePoint `json:"timelinePointParameters"`
}

// SelfServiceBookmarkSpec names the bookmark being created.
type SelfServiceBookmarkSpec struct {
	Type   string   `json:"type"`
	Name   string   `json:"name"`
	Branch string   `json:"branch"`
	Shared bool     `json:"shared"`
	Tags   []string `json:"tags,omitempty"`
}

// TypedParameters is a body that carries only its type, e.g. SourceEnableParameters.
type TypedParameters struct {
	Type string `json:"type"`
}

// Typed builds a TypedParameters body.
func Typed(typ string) TypedParameters {
	return TypedParameters{Type: typ}
}
