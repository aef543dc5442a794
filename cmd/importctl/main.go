// Command importctl runs and inspects bulk imports from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkimport/internal/application"
	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/logging"
)

// Exit codes.
const (
	exitFailed = 1
	exitUsage  = 2
	exitLocked = 3
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

type globalOptions struct {
	envFile string
	output  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", core.FormatUserError(err))
	fmt.Fprintln(os.Stderr, "Detail:", err)

	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(exitFailed)
}

func newRootCmd() *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:           "importctl",
		Short:         "Run and inspect bulk imports into the target store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load if present")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")

	root.AddCommand(
		newRunCmd(&opts),
		newStatusCmd(&opts),
		newResetCmd(&opts),
		newHistoryCmd(&opts),
		newResetDBCmd(&opts),
		newWatchCmd(&opts),
	)
	return root
}

// loadApp loads configuration and wires the service.
func loadApp(ctx context.Context, opts *globalOptions) (*application.App, error) {
	if opts.envFile != "" {
		// Missing files are fine; the environment may already be set.
		_ = godotenv.Load(opts.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	return application.New(ctx, cfg)
}

func loadJob(path string) (*core.Job, error) {
	job, err := core.LoadJobFile(path)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return job, nil
}

// printResult writes v as JSON, or calls text for the text format.
func printResult(w io.Writer, opts *globalOptions, v any, text func(io.Writer)) error {
	switch opts.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text", "":
		text(w)
		return nil
	default:
		return withCode(exitUsage, fmt.Errorf("invalid --output %q: want text or json", opts.output))
	}
}
