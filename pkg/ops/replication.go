package ops

import (
	"context"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/resolve"
)

// DefaultReplicationPort is the port replication targets listen on.
const DefaultReplicationPort = 8415

// ReplicationArgs describes a replication spec.
type ReplicationArgs struct {
	Name        string `validate:"required"`
	Description string

	// TargetHost, TargetUser and TargetPassword address the receiving appliance.
	TargetHost     string `validate:"required,hostname_rfc1123|ip"`
	TargetPort     int    `validate:"omitempty,min=1,max=65535"`
	TargetUser     string `validate:"required"`
	TargetPassword appliance.Credential

	// Objects are group names to replicate.
	Objects []string `validate:"required,min=1,dive,required"`

	Schedule            string
	Encrypted           bool
	BandwidthLimit      int `validate:"min=0"`
	NumberOfConnections int `validate:"min=0"`
}

// CreateReplication creates a replication spec.
func CreateReplication(ctx context.Context, s *engine.Session, args ReplicationArgs) (appliance.Result, error) {
	const op = "replication create"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	if args.TargetPassword.Kind() != appliance.CredentialPassword {
		return appliance.Result{}, invalid(op, "the replication target needs a password")
	}
	objects := make([]string, 0, len(args.Objects))
	for _, name := range args.Objects {
		ref, err := resolve.FindByName(ctx, s, appliance.KindGroup, name)
		if err != nil {
			return appliance.Result{}, failed(s, op, name, err)
		}
		objects = append(objects, ref.ID)
	}
	port := args.TargetPort
	if port == 0 {
		port = DefaultReplicationPort
	}
	params := appliance.ReplicationSpecParameters{
		Type:                "ReplicationSpec",
		Name:                args.Name,
		Description:         args.Description,
		TargetHost:          args.TargetHost,
		TargetPort:          port,
		TargetPrincipal:     args.TargetUser,
		TargetCredential:    args.TargetPassword,
		ObjectSpecification: appliance.ReplicationList{Type: "ReplicationList", Objects: objects},
		Schedule:            args.Schedule,
		Encrypted:           args.Encrypted,
		BandwidthLimit:      args.BandwidthLimit,
		NumberOfConnections: args.NumberOfConnections,
	}
	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Create(ctx, appliance.KindReplicationSpec, params)
	})
}

// DeleteReplication removes the replication spec named name.
func DeleteReplication(ctx context.Context, s *engine.Session, name string) (appliance.Result, error) {
	return deleteByName(ctx, s, "replication delete", appliance.KindReplicationSpec, name, nil)
}

// ExecuteReplication runs the replication spec named name now.
func ExecuteReplication(ctx context.Context, s *engine.Session, name string) (appliance.Result, error) {
	const op = "replication execute"
	if name == "" {
		return appliance.Result{}, invalid(op, "a name is required")
	}
	ref, err := resolve.FindByName(ctx, s, appliance.KindReplicationSpec, name)
	if err != nil {
		return appliance.Result{}, failed(s, op, name, err)
	}
	return submit(ctx, s, op, name, func(c appliance.Client) (appliance.Result, error) {
		return c.Action(ctx, appliance.KindReplicationSpec, ref.ID, "execute", nil)
	})
}
