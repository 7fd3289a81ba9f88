package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/ops"
)

// nameCommand builds a subcommand that runs op on the object given by --name.
func nameCommand(a *app, use, short, name string, op func(ctx context.Context, s *engine.Session, name string) error) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: name,
				workflow: func(ctx context.Context, s *engine.Session) error {
					return op(ctx, s, value)
				},
			})
		},
	}

	cmd.Flags().StringVar(&value, "name", "", "object name")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newTemplateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage self-service templates",
	}

	var args ops.TemplateArgs
	var databases string
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create a template over existing databases",
		Example: `  ddpctl template create --name payroll --databases "payroll db,payroll app"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "template create",
				prepare: func(*cobra.Command) error {
					args.Databases = splitList(databases)
					return nil
				},
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.CreateTemplate(ctx, s, args)
					return err
				},
			})
		},
	}
	create.Flags().StringVar(&args.Name, "name", "", "template name")
	create.Flags().StringVar(&args.Description, "description", "", "template description")
	create.Flags().StringVar(&databases, "databases", "", "comma separated databases, in priority order")
	create.MarkFlagRequired("name")
	create.MarkFlagRequired("databases")

	cmd.AddCommand(create)
	cmd.AddCommand(nameCommand(a, "delete", "Delete a template", "template delete",
		func(ctx context.Context, s *engine.Session, name string) error {
			_, err := ops.DeleteTemplate(ctx, s, name)
			return err
		}))

	return cmd
}

func newContainerCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Manage self-service containers",
	}

	cmd.AddCommand(newContainerCreateCommand(a))
	cmd.AddCommand(newContainerDeleteCommand(a))
	cmd.AddCommand(newContainerRestoreCommand(a))
	cmd.AddCommand(nameCommand(a, "refresh", "Refresh a container from its template", "container refresh",
		func(ctx context.Context, s *engine.Session, name string) error {
			_, err := ops.RefreshContainer(ctx, s, name)
			return err
		}))
	cmd.AddCommand(nameCommand(a, "reset", "Reset a container to its last operation", "container reset",
		func(ctx context.Context, s *engine.Session, name string) error {
			_, err := ops.ResetContainer(ctx, s, name)
			return err
		}))

	return cmd
}

func newContainerCreateCommand(a *app) *cobra.Command {
	var (
		args      ops.ContainerArgs
		databases string
		owners    string
	)

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a container from a template",
		Example: `  ddpctl container create --name payroll-dev --template payroll --databases "payroll vdb" --owners dev1,dev2`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "container create",
				prepare: func(*cobra.Command) error {
					args.Databases = splitList(databases)
					args.Owners = splitList(owners)
					return nil
				},
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.CreateContainer(ctx, s, args)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&args.Name, "name", "", "container name")
	cmd.Flags().StringVar(&args.Template, "template", "", "template name")
	cmd.Flags().StringVar(&databases, "databases", "", "comma separated virtual databases, in template source order")
	cmd.Flags().StringVar(&owners, "owners", "", "comma separated owner user names")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("template")
	cmd.MarkFlagRequired("databases")

	return cmd
}

func newContainerDeleteCommand(a *app) *cobra.Command {
	var (
		name          string
		deleteSources bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "container delete",
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.DeleteContainer(ctx, s, name, deleteSources)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "container name")
	cmd.Flags().BoolVar(&deleteSources, "delete-sources", false, "also delete the virtual databases behind the container")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newContainerRestoreCommand(a *app) *cobra.Command {
	var name, bookmark string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a container to a bookmark",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "container restore",
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.RestoreContainer(ctx, s, name, bookmark)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "container name")
	cmd.Flags().StringVar(&bookmark, "bookmark", "", "bookmark name")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("bookmark")

	return cmd
}

func newBranchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage self-service branches",
	}

	var args ops.BranchArgs
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a branch in a container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "branch create",
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.CreateBranch(ctx, s, args)
					return err
				},
			})
		},
	}
	create.Flags().StringVar(&args.Name, "name", "", "branch name")
	create.Flags().StringVar(&args.Container, "container", "", "container name")
	create.Flags().StringVar(&args.Bookmark, "bookmark", "", "bookmark to start from (default: latest point)")
	create.MarkFlagRequired("name")
	create.MarkFlagRequired("container")

	cmd.AddCommand(create)
	cmd.AddCommand(newBranchInContainerCommand(a, "delete", "Delete a branch", "branch delete", ops.DeleteBranch))
	cmd.AddCommand(newBranchInContainerCommand(a, "activate", "Make a branch the active one", "branch activate", ops.ActivateBranch))

	return cmd
}

func newBranchInContainerCommand(a *app, use, short, name string, op func(ctx context.Context, s *engine.Session, container, name string) (appliance.Result, error)) *cobra.Command {
	var container, branch string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: name,
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := op(ctx, s, container, branch)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&branch, "name", "", "branch name")
	cmd.Flags().StringVar(&container, "container", "", "container name")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("container")

	return cmd
}

func newBookmarkCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmark",
		Short: "Manage self-service bookmarks",
	}

	var (
		args ops.BookmarkArgs
		tags string
	)
	create := &cobra.Command{
		Use:     "create",
		Short:   "Bookmark the latest point of a branch",
		Example: `  ddpctl bookmark create --name before-upgrade --container payroll-dev --shared --tags release,q3`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFleet(cmd, fleetCommand{
				name: "bookmark create",
				prepare: func(*cobra.Command) error {
					args.Tags = splitList(tags)
					return nil
				},
				workflow: func(ctx context.Context, s *engine.Session) error {
					_, err := ops.CreateBookmark(ctx, s, args)
					return err
				},
			})
		},
	}
	create.Flags().StringVar(&args.Name, "name", "", "bookmark name")
	create.Flags().StringVar(&args.Container, "container", "", "container name")
	create.Flags().StringVar(&args.Branch, "branch", "", "branch name (default: the active branch)")
	create.Flags().BoolVar(&args.Shared, "shared", false, "share the bookmark with other users")
	create.Flags().StringVar(&tags, "tags", "", "comma separated tags")
	create.MarkFlagRequired("name")
	create.MarkFlagRequired("container")

	cmd.AddCommand(create)
	cmd.AddCommand(nameCommand(a, "delete", "Delete a bookmark", "bookmark delete",
		func(ctx context.Context, s *engine.Session, name string) error {
			_, err := ops.DeleteBookmark(ctx, s, name)
			return err
		}))

	return cmd
}
