package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkimport/internal/application"
	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/lock"
	"github.com/JonMunkholm/bulkimport/internal/watch"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var jobFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an import job to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := loadJob(jobFile)
			if err != nil {
				return err
			}
			app, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Service.Run(cmd.Context(), job)
			if err != nil {
				if errors.Is(err, lock.ErrLocked) {
					return withCode(exitLocked, err)
				}
				return err
			}
			return printResult(cmd.OutOrStdout(), opts, res, func(w io.Writer) {
				fmt.Fprintln(w, res.Message)
				fmt.Fprintf(w, "run %s: rows=%d created=%d updated=%d skipped=%d\n",
					res.RunID, res.Rows, res.Created, res.Updated, res.Skipped)
				if res.Batched {
					fmt.Fprintf(w, "batches %d/%d (resumed from %d)\n",
						res.BatchesProcessed, res.BatchesTotal, res.ResumedFrom)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&jobFile, "file", "f", "", "Job file (.yaml, .yml or .json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var jobFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the batch checkpoint of a job's source",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := loadJob(jobFile)
			if err != nil {
				return err
			}
			app, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			st, err := app.Service.Status(cmd.Context(), job)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts, st, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s: %s", st.Entity, st.Source, st.State)
				if st.State == core.StateInProgress {
					fmt.Fprintf(w, ", next batch %d (size %d)", st.NextBatchOffset, st.BatchSize)
				}
				if st.UpdatedAt != nil {
					fmt.Fprintf(w, ", updated %s", st.UpdatedAt.Format(time.RFC3339))
				}
				fmt.Fprintln(w)
			})
		},
	}
	cmd.Flags().StringVarP(&jobFile, "file", "f", "", "Job file (.yaml, .yml or .json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newResetCmd(opts *globalOptions) *cobra.Command {
	var jobFile string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete a job's checkpoint so the next run starts from the first batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := loadJob(jobFile)
			if err != nil {
				return err
			}
			app, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			reset, err := app.Service.Reset(cmd.Context(), job)
			if err != nil {
				if errors.Is(err, lock.ErrLocked) {
					return withCode(exitLocked, err)
				}
				return err
			}
			return printResult(cmd.OutOrStdout(), opts, map[string]bool{"reset": reset}, func(w io.Writer) {
				if reset {
					fmt.Fprintln(w, "checkpoint deleted")
				} else {
					fmt.Fprintln(w, "no checkpoint to reset")
				}
			})
		},
	}
	cmd.Flags().StringVarP(&jobFile, "file", "f", "", "Job file (.yaml, .yml or .json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		entity string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded import runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()
			if app.History == nil {
				return withCode(exitUsage, application.ErrNoDatabase)
			}

			runs, err := app.History.List(cmd.Context(), core.HistoryOptions{Entity: entity, Limit: limit})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts, runs, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STARTED\tENTITY\tSTATUS\tCREATED\tUPDATED\tSKIPPED\tDURATION\tID")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
						r.StartedAt.Format(time.RFC3339), r.Entity, r.Status,
						r.Created, r.Updated, r.Skipped, r.Duration().Round(time.Millisecond), r.ID)
				}
				_ = tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "Only show runs of this entity")
	cmd.Flags().IntVar(&limit, "limit", core.DefaultHistoryLimit, "Maximum number of runs")
	return cmd
}

func newResetDBCmd(opts *globalOptions) *cobra.Command {
	var (
		yes             bool
		checkpointsOnly bool
	)

	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "Delete all stored checkpoints and run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return withCode(exitUsage, errors.New("reset-db is destructive: pass --yes to confirm"))
			}
			app, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Admin == nil {
				return withCode(exitUsage, application.ErrNoDatabase)
			}

			reset := app.Admin.ResetAll
			if checkpointsOnly {
				reset = app.Admin.ResetCheckpoints
			}
			deleted, err := reset(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts, deleted, func(w io.Writer) {
				for table, n := range deleted {
					fmt.Fprintf(w, "%s: %d row(s) deleted\n", table, n)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	cmd.Flags().BoolVar(&checkpointsOnly, "checkpoints-only", false, "Keep run history")
	return cmd
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		dirs     []string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run job files whenever they are written to a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			bg, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() { _ = app.StartBackground(bg) }()

			w := &watch.Watcher{
				Dirs:     dirs,
				Debounce: debounce,
				Handle: func(ctx context.Context, path string) {
					runJobFile(ctx, app, path, cmd.OutOrStdout())
				},
			}
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().StringSliceVar(&dirs, "dir", nil, "Directory to watch (repeatable)")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a changed file runs")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

// runJobFile runs one watched job; failures are reported and do not stop
// the watcher.
func runJobFile(ctx context.Context, app *application.App, path string, out io.Writer) {
	job, err := core.LoadJobFile(path)
	if err != nil {
		fmt.Fprintf(out, "%s: %s\n", path, core.FormatUserError(err))
		return
	}
	res, err := app.Service.Run(ctx, job)
	if err != nil {
		fmt.Fprintf(out, "%s: %s\n", path, core.FormatUserError(err))
		return
	}
	fmt.Fprintf(out, "%s: %s\n", path, res.Message)
}
