package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"alertengine/internal/app"
	"alertengine/internal/clock"
	"alertengine/internal/config"

	"github.com/spf13/cobra"
)

// exitCodeError carries the process exit code through cobra.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

type cliFlags struct {
	configFile            string
	configDir             string
	baseURL               string
	maxConcurrentRequests int
}

// main starts the alert engine using file or directory config source.
// Params: CLI flags (--config-file or --config-dir, optional remote overrides).
// Returns: process exit code by startup/run result.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		code := 1
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			code = exitErr.code
		}
		os.Exit(code)
	}
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}
	root := &cobra.Command{
		Use:   "alert-engine",
		Short: "Poll alert queries and keep remote notifications in sync with alert state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd, flags)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config-file", "", "path to one TOML config file")
	pf.StringVar(&flags.configDir, "config-dir", "", "path to directory with TOML config fragments")
	pf.StringVar(&flags.baseURL, "base-url", "", "remote alert service base URL (overrides remote.base_url)")
	pf.IntVar(&flags.maxConcurrentRequests, "max-concurrent-requests", 0, "cap on in-flight remote requests, 0 is unbounded (overrides remote.max_concurrent_requests)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the alert engine until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd, flags)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Load and validate configuration, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, overrides, err := resolveConfig(cmd, flags)
			if err != nil {
				return err
			}
			if _, err := config.LoadSnapshot(source, overrides); err != nil {
				return &exitCodeError{code: 2, err: err}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "config ok")
			return nil
		},
	})
	return root
}

func runService(cmd *cobra.Command, flags *cliFlags) error {
	source, overrides, err := resolveConfig(cmd, flags)
	if err != nil {
		return err
	}

	service, err := app.NewService(source, overrides, clock.RealClock{})
	if err != nil {
		return fmt.Errorf("service init failed: %w", err)
	}
	if err := service.Run(context.Background()); err != nil {
		return fmt.Errorf("service run failed: %w", err)
	}
	return nil
}

// resolveConfig turns flags into a config source and overrides; only explicitly set flags override.
func resolveConfig(cmd *cobra.Command, flags *cliFlags) (config.ConfigSource, config.Overrides, error) {
	source, err := config.FromCLI(flags.configFile, flags.configDir)
	if err != nil {
		return config.ConfigSource{}, config.Overrides{}, &exitCodeError{code: 2, err: err}
	}
	overrides := config.Overrides{BaseURL: flags.baseURL}
	if cmd.Flags().Changed("max-concurrent-requests") {
		value := flags.maxConcurrentRequests
		overrides.MaxConcurrentRequests = &value
	}
	return source, overrides, nil
}
