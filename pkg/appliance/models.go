package appliance

// Object is the minimal shape shared by every named appliance object.
type Object struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
}

// Ref returns the classified reference.
func (o Object) Ref() ObjectRef {
	return ParseRef(o.Reference)
}

// Database is a dSource or VDB container.
type Database struct {
	Reference          string `json:"reference"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	Group              string `json:"group,omitempty"`
	CurrentTimeflow    string `json:"currentTimeflow,omitempty"`
	PreviousTimeflow   string `json:"previousTimeflow,omitempty"`
	ProvisionContainer string `json:"provisionContainer,omitempty"`
	Masked             bool   `json:"masked,omitempty"`
}

// Ref returns the classified reference.
func (d Database) Ref() ObjectRef {
	return ParseRef(d.Reference)
}

// IsVirtual reports whether the database was provisioned from another container.
func (d Database) IsVirtual() bool {
	return d.ProvisionContainer != ""
}

// Source links a container to its source config.
type Source struct {
	Reference string        `json:"reference"`
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Container string        `json:"container"`
	Config    string        `json:"config,omitempty"`
	Enabled   bool          `json:"enabled"`
	Virtual   bool          `json:"virtual,omitempty"`
	Staging   bool          `json:"staging,omitempty"`
	Runtime   SourceRuntime `json:"runtime"`
}

// SourceRuntime is the live state of a source.
type SourceRuntime struct {
	Status string `json:"status,omitempty"`
}

// SourceConfig describes a database discovered in an environment repository.
type SourceConfig struct {
	Reference    string `json:"reference"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Repository   string `json:"repository,omitempty"`
	DatabaseName string `json:"databaseName,omitempty"`
	Environment  string `json:"environment,omitempty"`
}

// Environment is a host or cluster registered with the appliance.
type Environment struct {
	Reference   string `json:"reference"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Host        string `json:"host,omitempty"`
	PrimaryUser string `json:"primaryUser,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Repository is an installation discovered on an environment.
type Repository struct {
	Reference        string `json:"reference"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	Environment      string `json:"environment"`
	InstallationHome string `json:"installationHome,omitempty"`
	InstanceName     string `json:"instanceName,omitempty"`
}

// Snapshot is a point captured on a container's timeflow.
type Snapshot struct {
	Reference         string      `json:"reference"`
	Name              string      `json:"name"`
	Type              string      `json:"type,omitempty"`
	Container         string      `json:"container"`
	Timeflow          string      `json:"timeflow,omitempty"`
	Timezone          string      `json:"timezone,omitempty"`
	Retention         int         `json:"retention,omitempty"`
	FirstChangePoint  ChangePoint `json:"firstChangePoint"`
	LatestChangePoint ChangePoint `json:"latestChangePoint"`
}

// ChangePoint is a position on a timeflow.
type ChangePoint struct {
	Timeflow  string `json:"timeflow"`
	Location  string `json:"location"`
	Timestamp string `json:"timestamp"`
}

// Timeflow is a lineage of changes for a container.
type Timeflow struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	Container string `json:"container"`
}

// User is an appliance account.
type User struct {
	Reference          string `json:"reference"`
	Name               string `json:"name"`
	Type               string `json:"type,omitempty"`
	EmailAddress       string `json:"emailAddress,omitempty"`
	AuthenticationType string `json:"authenticationType,omitempty"`
	Enabled            bool   `json:"enabled,omitempty"`
}

// Authorization grants a role on a target to a user.
type Authorization struct {
	Reference string `json:"reference"`
	Name      string `json:"name,omitempty"`
	User      string `json:"user"`
	Role      string `json:"role"`
	Target    string `json:"target"`
}

// SelfServiceContainer is a data container presented to self-service users.
type SelfServiceContainer struct {
	Reference    string `json:"reference"`
	Name         string `json:"name"`
	Template     string `json:"template,omitempty"`
	ActiveBranch string `json:"activeBranch,omitempty"`
}

// SelfServiceBranch is a timeline branch inside a data layout.
type SelfServiceBranch struct {
	Reference  string `json:"reference"`
	Name       string `json:"name"`
	DataLayout string `json:"dataLayout"`
}

// SelfServiceBookmark marks a point on a branch.
type SelfServiceBookmark struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Branch    string `json:"branch"`
	Container string `json:"container,omitempty"`
	Template  string `json:"template,omitempty"`
}

// ReplicationSpec describes a replication target and its object list.
type ReplicationSpec struct {
	Reference  string `json:"reference"`
	Name       string `json:"name"`
	TargetHost string `json:"targetHost"`
	Enabled    bool   `json:"enabled,omitempty"`
}

// ServiceTime is the appliance clock configuration.
type ServiceTime struct {
	CurrentTime    string `json:"currentTime,omitempty"`
	SystemTimeZone string `json:"systemTimeZone"`
}

// SystemInfo is the liveness payload.
type SystemInfo struct {
	Hostname       string `json:"hostname,omitempty"`
	EngineType     string `json:"engineType,omitempty"`
	ProductVersion string `json:"productVersion,omitempty"`
	BuildTitle     string `json:"buildTitle,omitempty"`
	UUID           string `json:"uuid,omitempty"`
}
