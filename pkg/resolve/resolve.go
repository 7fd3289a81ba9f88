// Package resolve turns human-supplied names into appliance references.
//
// Every lookup goes through the session passed by the caller. Name matches
// are exact and never pick among several candidates: zero matches fail with
// a not-found error and more than one with an ambiguous error. Listings are
// returned in the order the appliance reports them.
package resolve

import (
	"context"
	"fmt"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
)

// List returns every object of kind matching query, decoded as T, in
// appliance order.
func List[T any](ctx context.Context, s *engine.Session, kind appliance.Kind, query appliance.Query) ([]T, error) {
	var items []T
	if err := s.Client().List(ctx, kind, query, &items); err != nil {
		return nil, engine.Classify(err, fmt.Sprintf("cannot list %s", kind))
	}
	return items, nil
}

// Get reads the object ref of kind, decoded as T.
func Get[T any](ctx context.Context, s *engine.Session, kind appliance.Kind, ref string) (T, error) {
	var item T
	if err := s.Client().Get(ctx, kind, ref, &item); err != nil {
		var zero T
		return zero, engine.Classify(err, fmt.Sprintf("cannot read %s %s", kind, ref))
	}
	return item, nil
}

// FindOne lists kind with query and returns the single item accepted by
// match. desc names the lookup in errors.
func FindOne[T any](ctx context.Context, s *engine.Session, kind appliance.Kind, query appliance.Query, desc string, match func(T) bool) (T, error) {
	var zero T
	items, err := List[T](ctx, s, kind, query)
	if err != nil {
		return zero, err
	}
	var found []T
	for _, item := range items {
		if match(item) {
			found = append(found, item)
		}
	}
	return unique(kind, desc, found)
}

func unique[T any](kind appliance.Kind, desc string, found []T) (T, error) {
	var zero T
	switch len(found) {
	case 0:
		return zero, engine.NewNotFoundError(fmt.Sprintf("no %s matches %s", kind, desc), nil).
			WithResource(desc)
	case 1:
		return found[0], nil
	default:
		return zero, engine.NewAmbiguousError(fmt.Sprintf("%d %s objects match %s", len(found), kind, desc), nil).
			WithResource(desc)
	}
}

// FindAllByName returns every object of kind named name.
func FindAllByName(ctx context.Context, s *engine.Session, kind appliance.Kind, name string) ([]appliance.Object, error) {
	objs, err := List[appliance.Object](ctx, s, kind, nil)
	if err != nil {
		return nil, err
	}
	var out []appliance.Object
	for _, o := range objs {
		if o.Name == name {
			out = append(out, o)
		}
	}
	return out, nil
}

// FindByName returns the reference of the unique object of kind named name.
func FindByName(ctx context.Context, s *engine.Session, kind appliance.Kind, name string) (appliance.ObjectRef, error) {
	matches, err := FindAllByName(ctx, s, kind, name)
	if err != nil {
		return appliance.ObjectRef{}, err
	}
	obj, err := unique(kind, fmt.Sprintf("name %q", name), matches)
	if err != nil {
		return appliance.ObjectRef{}, err
	}
	return obj.Ref(), nil
}

// FindName returns the name of the object ref of kind.
func FindName(ctx context.Context, s *engine.Session, kind appliance.Kind, ref string) (string, error) {
	obj, err := Get[appliance.Object](ctx, s, kind, ref)
	if err != nil {
		return "", err
	}
	return obj.Name, nil
}

// FindDatabase returns the unique database named name.
func FindDatabase(ctx context.Context, s *engine.Session, name string) (appliance.Database, error) {
	return FindOne(ctx, s, appliance.KindDatabase, nil, fmt.Sprintf("name %q", name), func(db appliance.Database) bool {
		return db.Name == name
	})
}

// GetDatabase reads the database ref.
func GetDatabase(ctx context.Context, s *engine.Session, ref appliance.ObjectRef) (appliance.Database, error) {
	return Get[appliance.Database](ctx, s, appliance.KindDatabase, ref.ID)
}
