package appliance

import (
	"context"
	"time"
)

// Client is the narrow REST surface the toolkit uses against one appliance.
// Mutating calls return a Result carrying a new reference, a job, or both.
// Queries are idempotent. Implementations check ctx once when a call starts;
// a call that has been issued runs to completion or to its own deadline.
type Client interface {
	// StartSession negotiates the API version and opens a server session.
	StartSession(ctx context.Context) error

	// Login authenticates against the DOMAIN namespace.
	Login(ctx context.Context, username string, cred Credential) error

	// Ping queries the liveness endpoint.
	Ping(ctx context.Context) error

	// Get decodes the object ref of kind into out. An empty ref reads a singleton.
	Get(ctx context.Context, kind Kind, ref string, out any) error

	// List decodes every object of kind matching query into out, which must
	// point to a slice. Objects are returned in appliance order.
	List(ctx context.Context, kind Kind, query Query, out any) error

	// Create posts body to the collection.
	Create(ctx context.Context, kind Kind, body any) (Result, error)

	// Update posts body to the object.
	Update(ctx context.Context, kind Kind, ref string, body any) (Result, error)

	// Delete removes the object. A non-nil body is posted to {ref}/delete.
	Delete(ctx context.Context, kind Kind, ref string, body any) (Result, error)

	// Action posts body to {ref}/{action}, or {action} when ref is empty.
	Action(ctx context.Context, kind Kind, ref, action string, body any) (Result, error)

	// Job reads the current state of a job.
	Job(ctx context.Context, ref string) (*Job, error)

	// Close logs out and releases connections. It is safe to call twice.
	Close() error
}

// Result is the outcome of a mutating call.
type Result struct {
	// Reference is the object created or acted on, when the appliance returned one.
	Reference ObjectRef

	// Job is the appliance job started by the call, empty when none.
	Job string

	// Action is the audit action reference.
	Action string
}

// HasJob reports whether the call started an asynchronous job.
func (r Result) HasJob() bool {
	return r.Job != ""
}

// RequestObserver receives one notification per REST call.
type RequestObserver interface {
	ObserveRequest(engine, method, kind, outcome string, elapsed time.Duration)
}
