package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/stores"
)

const historyTimeFormat = "2006-01-02 15:04:05"

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the run history ledger",
		Long: `Inspect the SQLite ledger written when commands run with --history.
Each run records its command, per engine outcome and the appliance jobs it
started.`,
	}

	cmd.AddCommand(newHistoryListCommand(a))
	cmd.AddCommand(newHistoryShowCommand(a))
	cmd.AddCommand(newHistoryPruneCommand(a))

	return cmd
}

// withLedger opens the ledger named by --history for a history subcommand.
func (a *app) withLedger(cmd *cobra.Command, fn func(ctx context.Context, store stores.Store, opts *options) error) error {
	opts, err := a.load()
	if err != nil {
		return err
	}
	if opts.History == "" {
		return engine.NewConfigError("--history is required", nil).WithCode(engine.ErrCodeValidation)
	}
	ctx := cmd.Context()
	store, err := openStore(ctx, opts.History)
	if err != nil {
		return engine.NewConfigError("cannot open run history", err)
	}
	defer store.Close()
	return engine.Classify(fn(ctx, store, opts), "history")
}

func newHistoryListCommand(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List recent runs",
		Example: `  ddpctl --history ~/.ddpctl/history.db history list --limit 20`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLedger(cmd, func(ctx context.Context, store stores.Store, opts *options) error {
				runs, err := store.ListRuns(ctx, limit, offset)
				if err != nil {
					return err
				}
				return printRuns(cmd.OutOrStdout(), runs, opts.JSON)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}

func printRuns(w io.Writer, runs []*stores.Run, asJSON bool) error {
	if asJSON {
		return writeJSON(w, runs)
	}
	return writeTable(w, []string{"RUN", "COMMAND", "SELECTOR", "STATUS", "EXIT", "STARTED", "DURATION"}, len(runs), func(i int) []string {
		r := runs[i]
		exit, took := "-", "-"
		if r.ExitCode != nil {
			exit = strconv.Itoa(*r.ExitCode)
		}
		if r.CompletedAt != nil {
			took = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		return []string{r.ID, r.Command, r.Selector, string(r.Status), exit, r.StartedAt.Local().Format(historyTimeFormat), took}
	})
}

// runDetail is the JSON shape of history show.
type runDetail struct {
	Run     *stores.Run            `json:"run"`
	Engines []*stores.EngineResult `json:"engines"`
	Jobs    []*stores.JobRecord    `json:"jobs"`
}

func newHistoryShowCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the engines and jobs of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedger(cmd, func(ctx context.Context, store stores.Store, opts *options) error {
				run, err := store.GetRun(ctx, args[0])
				if errors.Is(err, stores.ErrRunNotFound) {
					return engine.NewNotFoundError(fmt.Sprintf("no run %s in history", args[0]), err).
						WithCode(engine.ErrCodeNotFound)
				}
				if err != nil {
					return err
				}
				engines, err := store.ListEngineResults(ctx, run.ID)
				if err != nil {
					return err
				}
				jobs, err := store.ListJobs(ctx, run.ID)
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if opts.JSON {
					return writeJSON(w, runDetail{Run: run, Engines: engines, Jobs: jobs})
				}
				if err := printRuns(w, []*stores.Run{run}, false); err != nil {
					return err
				}
				fmt.Fprintln(w)
				err = writeTable(w, []string{"ENGINE", "STATUS", "KIND", "JOBS", "DURATION", "ERROR"}, len(engines), func(i int) []string {
					e := engines[i]
					return []string{e.Hostname, e.Status, orDash(e.Kind), strconv.Itoa(e.Jobs), e.Duration.Round(time.Second).String(), orDash(deref(e.Error))}
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(w)
				return writeTable(w, []string{"ENGINE", "JOB", "TARGET", "STATE", "SUBMITTED", "DURATION"}, len(jobs), func(i int) []string {
					j := jobs[i]
					took := "-"
					if j.Duration != nil {
						took = j.Duration.Round(time.Second).String()
					}
					return []string{j.Hostname, j.JobRef, orDash(j.TargetRef), orDash(j.State), j.SubmittedAt.Local().Format(historyTimeFormat), took}
				})
			})
		},
	}

	return cmd
}

func newHistoryPruneCommand(a *app) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Delete runs older than a given age",
		Example: `  ddpctl --history ~/.ddpctl/history.db history prune --older-than 720h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return engine.NewConfigError("--older-than must be positive", nil).WithCode(engine.ErrCodeValidation)
			}
			return a.withLedger(cmd, func(ctx context.Context, store stores.Store, _ *options) error {
				n, err := store.PruneRuns(ctx, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d run(s)\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "minimum age of pruned runs")

	return cmd
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
