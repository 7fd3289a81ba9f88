package ops

import (
	"context"
	"fmt"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/resolve"
)

// TemplateArgs describes a self-service template.
type TemplateArgs struct {
	Name        string `validate:"required"`
	Description string

	// Databases are the names of the containers the template is built on.
	// Their order sets the data source priority.
	Databases []string `validate:"required,min=1,dive,required"`
}

// CreateTemplate creates a self-service template over existing databases.
func CreateTemplate(ctx context.Context, s *engine.Session, args TemplateArgs) (appliance.Result, error) {
	const op = "template create"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	sources, err := dataSources(ctx, s, args.Databases)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Name, err)
	}
	params := appliance.SelfServiceTemplateCreateParameters{
		Type:        "JSDataTemplateCreateParameters",
		Name:        args.Name,
		Description: args.Description,
		DataSources: sources,
	}
	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Create(ctx, appliance.KindSelfServiceTemplate, params)
	})
}

// DeleteTemplate removes the template named name.
func DeleteTemplate(ctx context.Context, s *engine.Session, name string) (appliance.Result, error) {
	return deleteByName(ctx, s, "template delete", appliance.KindSelfServiceTemplate, name, nil)
}

// ContainerArgs describes a self-service container.
type ContainerArgs struct {
	Name     string `validate:"required"`
	Template string `validate:"required"`

	// Databases are the VDBs backing the container, in template source order.
	Databases []string `validate:"required,min=1,dive,required"`

	// Owners are user names given ownership of the container.
	Owners []string
}

// CreateContainer creates a self-service container from the latest point of
// a template.
func CreateContainer(ctx context.Context, s *engine.Session, args ContainerArgs) (appliance.Result, error) {
	const op = "container create"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	tmplRef, err := resolve.FindByName(ctx, s, appliance.KindSelfServiceTemplate, args.Template)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Template, err)
	}
	sources, err := dataSources(ctx, s, args.Databases)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Name, err)
	}
	owners := make([]string, 0, len(args.Owners))
	for _, owner := range args.Owners {
		ref, err := resolve.FindByName(ctx, s, appliance.KindUser, owner)
		if err != nil {
			return appliance.Result{}, failed(s, op, owner, err)
		}
		owners = append(owners, ref.ID)
	}

	params := appliance.SelfServiceContainerCreateParameters{
		Type:                    "JSDataContainerCreateParameters",
		Name:                    args.Name,
		Template:                tmplRef.ID,
		TimelinePointParameters: appliance.LatestTimelinePoint(tmplRef.ID),
		DataSources:             sources,
		Owners:                  owners,
	}
	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Create(ctx, appliance.KindSelfServiceContainer, params)
	})
}

// DeleteContainer removes a container. With deleteSources the VDBs backing
// it are deleted too.
func DeleteContainer(ctx context.Context, s *engine.Session, name string, deleteSources bool) (appliance.Result, error) {
	body := appliance.SelfServiceContainerDeleteParameters{
		Type:              "JSDataContainerDeleteParameters",
		DeleteDataSources: deleteSources,
	}
	return deleteByName(ctx, s, "container delete", appliance.KindSelfServiceContainer, name, body)
}

// RefreshContainer refreshes a container from the latest point of its template.
func RefreshContainer(ctx context.Context, s *engine.Session, name string) (appliance.Result, error) {
	return containerAction(ctx, s, "container refresh", name, "refresh", nil)
}

// ResetContainer discards changes made since the last operation on the container.
func ResetContainer(ctx context.Context, s *engine.Session, name string) (appliance.Result, error) {
	return containerAction(ctx, s, "container reset", name, "reset", appliance.Typed("JSDataContainerResetParameters"))
}

// RestoreContainer restores a container to a bookmark.
func RestoreContainer(ctx context.Context, s *engine.Session, name, bookmark string) (appliance.Result, error) {
	const op = "container restore"
	if bookmark == "" {
		return appliance.Result{}, invalid(op, "a bookmark is required")
	}
	bmRef, err := resolve.FindByName(ctx, s, appliance.KindSelfServiceBookmark, bookmark)
	if err != nil {
		return appliance.Result{}, failed(s, op, bookmark, err)
	}
	body := appliance.SelfServiceRestoreParameters{
		Type:                    "JSDataContainerRestoreParameters",
		TimelinePointParameters: appliance.BookmarkTimelinePoint(bmRef.ID),
	}
	return containerAction(ctx, s, op, name, "restore", body)
}

// BranchArgs describes a branch of a container.
type BranchArgs struct {
	Name      string `validate:"required"`
	Container string `validate:"required"`

	// Bookmark is where the branch starts (default: latest point of the container).
	Bookmark string
}

// CreateBranch creates a branch in a container.
func CreateBranch(ctx context.Context, s *engine.Session, args BranchArgs) (appliance.Result, error) {
	const op = "branch create"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	ctr, err := findContainer(ctx, s, args.Container)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Container, err)
	}
	point := appliance.LatestTimelinePoint(ctr.Reference)
	if args.Bookmark != "" {
		bmRef, err := resolve.FindByName(ctx, s, appliance.KindSelfServiceBookmark, args.Bookmark)
		if err != nil {
			return appliance.Result{}, failed(s, op, args.Bookmark, err)
		}
		point = appliance.BookmarkTimelinePoint(bmRef.ID)
	}
	params := appliance.SelfServiceBranchCreateParameters{
		Type:                    "JSBranchCreateParameters",
		Name:                    args.Name,
		DataContainer:           ctr.Reference,
		TimelinePointParameters: point,
	}
	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Create(ctx, appliance.KindSelfServiceBranch, params)
	})
}

// DeleteBranch removes a branch of a container.
func DeleteBranch(ctx context.Context, s *engine.Session, container, name string) (appliance.Result, error) {
	const op = "branch delete"
	br, err := findBranch(ctx, s, container, name)
	if err != nil {
		return appliance.Result{}, failed(s, op, name, err)
	}
	return submit(ctx, s, op, name, func(c appliance.Client) (appliance.Result, error) {
		return c.Delete(ctx, appliance.KindSelfServiceBranch, br.Reference, nil)
	})
}

// ActivateBranch makes a branch the active branch of its container.
func ActivateBranch(ctx context.Context, s *engine.Session, container, name string) (appliance.Result, error) {
	const op = "branch activate"
	br, err := findBranch(ctx, s, container, name)
	if err != nil {
		return appliance.Result{}, failed(s, op, name, err)
	}
	return submit(ctx, s, op, name, func(c appliance.Client) (appliance.Result, error) {
		return c.Action(ctx, appliance.KindSelfServiceBranch, br.Reference, "activate", nil)
	})
}

// BookmarkArgs describes a bookmark at the latest point of a container branch.
type BookmarkArgs struct {
	Name      string `validate:"required"`
	Container string `validate:"required"`

	// Branch defaults to the container's active branch.
	Branch string
	Shared bool
	Tags   []string
}

// CreateBookmark bookmarks the latest point of a branch.
func CreateBookmark(ctx context.Context, s *engine.Session, args BookmarkArgs) (appliance.Result, error) {
	const op = "bookmark create"
	if err := check(op, args); err != nil {
		return appliance.Result{}, err
	}
	ctr, err := findContainer(ctx, s, args.Container)
	if err != nil {
		return appliance.Result{}, failed(s, op, args.Container, err)
	}
	branch := ctr.ActiveBranch
	if args.Branch != "" {
		br, err := findBranch(ctx, s, args.Container, args.Branch)
		if err != nil {
			return appliance.Result{}, failed(s, op, args.Branch, err)
		}
		branch = br.Reference
	}
	if branch == "" {
		return appliance.Result{}, invalid(op, "container %s has no active branch", args.Container)
	}
	params := appliance.SelfServiceBookmarkCreateParameters{
		Type: "JSBookmarkCreateParameters",
		Bookmark: appliance.SelfServiceBookmarkSpec{
			Type:   "JSBookmark",
			Name:   args.Name,
			Branch: branch,
			Shared: args.Shared,
			Tags:   args.Tags,
		},
		TimelinePointParameters: appliance.SelfServiceTimelinePoint{
			Type:             "JSTimelinePointLatestTimeInput",
			SourceDataLayout: ctr.Reference,
			Branch:           branch,
		},
	}
	return submit(ctx, s, op, args.Name, func(c appliance.Client) (appliance.Result, error) {
		return c.Create(ctx, appliance.KindSelfServiceBookmark, params)
	})
}

// DeleteBookmark removes the bookmark named name.
func DeleteBookmark(ctx context.Context, s *engine.Session, name string) (appliance.Result, error) {
	return deleteByName(ctx, s, "bookmark delete", appliance.KindSelfServiceBookmark, name, nil)
}

func dataSources(ctx context.Context, s *engine.Session, names []string) ([]appliance.SelfServiceDataSourceSpec, error) {
	out := make([]appliance.SelfServiceDataSourceSpec, 0, len(names))
	for i, name := range names {
		db, err := resolve.FindDatabase(ctx, s, name)
		if err != nil {
			return nil, err
		}
		out = append(out, appliance.SelfServiceDataSourceSpec{
			Type:      "JSDataSourceCreateParameters",
			Source:    appliance.SelfServiceDataSource{Type: "JSDataSource", Name: name, Priority: i + 1},
			Container: db.Reference,
		})
	}
	return out, nil
}

func findContainer(ctx context.Context, s *engine.Session, name string) (appliance.SelfServiceContainer, error) {
	return resolve.FindOne(ctx, s, appliance.KindSelfServiceContainer, nil, fmt.Sprintf("name %q", name),
		func(c appliance.SelfServiceContainer) bool { return c.Name == name })
}

func findBranch(ctx context.Context, s *engine.Session, container, name string) (appliance.SelfServiceBranch, error) {
	ctr, err := findContainer(ctx, s, container)
	if err != nil {
		return appliance.SelfServiceBranch{}, err
	}
	return resolve.FindOne(ctx, s, appliance.KindSelfServiceBranch, appliance.Query{"dataLayout": ctr.Reference},
		fmt.Sprintf("branch %q of %s", name, container),
		func(b appliance.SelfServiceBranch) bool { return b.Name == name && b.DataLayout == ctr.Reference })
}

func containerAction(ctx context.Context, s *engine.Session, op, name, action string, body any) (appliance.Result, error) {
	ctr, err := findContainer(ctx, s, name)
	if err != nil {
		return appliance.Result{}, failed(s, op, name, err)
	}
	return submit(ctx, s, op, name, func(c appliance.Client) (appliance.Result, error) {
		return c.Action(ctx, appliance.KindSelfServiceContainer, ctr.Reference, action, body)
	})
}

// deleteByName resolves name in kind and deletes it.
func deleteByName(ctx context.Context, s *engine.Session, op string, kind appliance.Kind, name string, body any) (appliance.Result, error) {
	if name == "" {
		return appliance.Result{}, invalid(op, "a name is required")
	}
	ref, err := resolve.FindByName(ctx, s, kind, name)
	if err != nil {
		return appliance.Result{}, failed(s, op, name, err)
	}
	return submit(ctx, s, op, name, func(c appliance.Client) (appliance.Result, error) {
		return c.Delete(ctx, kind, ref.ID, body)
	})
}
