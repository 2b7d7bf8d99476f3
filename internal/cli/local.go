package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"jscrambler-client/internal/config"
	"jscrambler-client/internal/pruner"
	"jscrambler-client/internal/watcher"

	"github.com/spf13/cobra"
)

// WatchCmd re-runs the workflow whenever a matched source changes.
func WatchCmd(a *app) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process once, then again every time a source file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if keep > 0 {
				if _, err := a.requireHistory(); err != nil {
					return err
				}
			}
			ctx := cmd.Context()

			a.runOnce(ctx, keep)

			changes := make(chan []string, 1)
			onChange := func(paths []string) {
				select {
				case changes <- paths:
				default:
					// a run is already queued
				}
			}

			roots := config.WatchRoots(a.cfg.FilesSrc)
			w, err := watcher.NewWatcher(roots, a.cfg.WatchDebounceDuration(), []string{a.cfg.FilesDest}, onChange, a.logger)
			if err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			defer w.Close()

			if !a.silent {
				fmt.Fprintf(a.out, "%s %v\n", a.c.gray("Watching"), roots)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case paths := <-changes:
					matched := 0
					for _, p := range paths {
						if a.cfg.MatchesSource(p) {
							matched++
						}
					}
					if matched == 0 {
						continue
					}
					a.logger.Info("Sources changed", "files", matched)
					a.runOnce(ctx, keep)
				}
			}
		},
	}
	cmd.Flags().IntVar(&keep, "prune-keep", 0, "after each run, delete remote projects beyond the newest N (needs historyDB)")
	return cmd
}

// runOnce processes the configuration, reporting failures without stopping.
func (a *app) runOnce(ctx context.Context, keep int) {
	client, err := a.newProject()
	if err == nil {
		err = client.Process(ctx, a.cfg)
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(a.errOut, "%s %v\n", a.c.red("Error:"), err)
		}
		return
	}

	if keep > 0 {
		if _, err := pruner.NewPruner(a.history, client, keep, a.logger).Prune(ctx); err != nil {
			fmt.Fprintf(a.errOut, "%s %v\n", a.c.red("Prune:"), err)
		}
	}
}

// HistoryCmd lists the projects recorded locally.
func HistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the projects created from this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := a.requireHistory()
			if err != nil {
				return err
			}
			records, err := history.List(limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tFILES\tDEST\tCREATED\tERROR")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					r.ID, r.Status, r.Files, r.Dest.String, r.CreatedAt.Local().Format(time.DateTime), r.Error.String)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of projects to show")
	return cmd
}

// PruneCmd deletes old projects from the service.
func PruneCmd(a *app) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete remote projects beyond the newest N recorded in the history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateKeys(); err != nil {
				return err
			}
			history, err := a.requireHistory()
			if err != nil {
				return err
			}
			client, err := a.newProject()
			if err != nil {
				return err
			}

			pruned, err := pruner.NewPruner(history, client, keep, a.logger).Prune(cmd.Context())
			if !a.silent {
				for _, id := range pruned {
					fmt.Fprintf(a.out, "%s %s\n", a.c.yellow("Pruned"), id)
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 5, "number of newest projects to keep")
	return cmd
}
