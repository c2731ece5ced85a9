package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/config"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

// exitError carries the process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(os.Stderr, err)

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitRuntimeError
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "compass",
		Short: "AI article generation backend for WordPress sites",
		Long: `compass serves the API that the n8n workflow engine and the dashboard use
to manage sites, keywords, posting schedules, article jobs and drafts.

Configuration is read from environment variables; run "compass config" to see
the effective values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API and the background trigger and reaper",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadValidConfig()
				if err != nil {
					return err
				}
				setupLogger(cfg, os.Stderr)
				return runServe(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate configuration (no connections made)",
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := loadValidConfig(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
				return nil
			},
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print effective configuration as JSON (secrets masked)",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.Load()
				data, err := cfg.MaskedJSON()
				if err != nil {
					return errors.Wrap(err, "failed to marshal config")
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadValidConfig()
				if err != nil {
					return err
				}
				setupLogger(cfg, os.Stderr)
				return runMigrate(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "compass version %s (commit: %s)\n", version, commit)
			},
		},
	)
	return root
}

func loadValidConfig() (config.Config, error) {
	cfg := config.Load()
	if err := config.Validate(cfg); err != nil {
		return cfg, withCode(exitInvalidConfig, errors.Wrap(err, "configuration error"))
	}
	return cfg, nil
}
