package resolve

import (
	"context"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
)

// FindAllByGroupName returns the databases of the group named group in
// appliance order. With excludeSelfService, databases backing self-service
// containers are left out.
func FindAllByGroupName(ctx context.Context, s *engine.Session, group string, excludeSelfService bool) ([]appliance.ObjectRef, error) {
	dbs, err := GroupDatabases(ctx, s, group, excludeSelfService)
	if err != nil {
		return nil, err
	}
	refs := make([]appliance.ObjectRef, 0, len(dbs))
	for _, db := range dbs {
		refs = append(refs, db.Ref())
	}
	return refs, nil
}

// GroupDatabases is FindAllByGroupName returning the full database objects.
func GroupDatabases(ctx context.Context, s *engine.Session, group string, excludeSelfService bool) ([]appliance.Database, error) {
	groupRef, err := FindByName(ctx, s, appliance.KindGroup, group)
	if err != nil {
		return nil, err
	}
	query := appliance.Query{"group": groupRef.ID}
	if excludeSelfService {
		query["noJSContainerData"] = "true"
	}
	dbs, err := List[appliance.Database](ctx, s, appliance.KindDatabase, query)
	if err != nil {
		return nil, err
	}
	out := dbs[:0]
	for _, db := range dbs {
		if db.Group == groupRef.ID {
			out = append(out, db)
		}
	}
	return out, nil
}
