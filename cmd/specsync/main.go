// Package main provides the specsync CLI: it reconciles a declarative
// item specification against a remote issue tracker.
//
// Commands:
//   - sync       : apply creates/updates/closes for drifted items
//   - plan       : show what sync would do, without touching the remote
//   - reconcile  : read-only drift report, scriptable exit code
//   - watch      : re-sync whenever the spec file changes
//   - index      : inspect the persisted slug-to-issue index
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"specsync/internal/config"
	"specsync/internal/dispatch"
	"specsync/internal/remote"
	"specsync/internal/remote/ghcli"
	"specsync/internal/remote/rest"
	"specsync/internal/retry"
	"specsync/internal/syncer"
)

var (
	cfgPath  string
	flagRepo string
	flagSpec string
	flagBack string
)

var rootCmd = &cobra.Command{
	Use:   "specsync",
	Short: "Sync a declarative item specification to an issue tracker",
	Long: `specsync parses a human-edited specification of items (identified by
stable slugs), diffs it against the remote issue tracker, and applies
create/update/close actions idempotently. A signed local index maps
slugs to remote issue numbers across runs.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default: ./specsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", "", "target repository (owner/name)")
	rootCmd.PersistentFlags().StringVar(&flagSpec, "spec", "", "specification file path")
	rootCmd.PersistentFlags().StringVar(&flagBack, "backend", "", "remote backend: cli or rest")

	rootCmd.AddCommand(syncCmd, planCmd, reconcileCmd, watchCmd, indexCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// mustLoadConfig loads configuration and applies global flag
// overrides, exiting on any problem.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if flagRepo != "" {
		cfg.Repo = flagRepo
	}
	if flagSpec != "" {
		cfg.SpecPath = flagSpec
	}
	if flagBack != "" {
		cfg.Backend = flagBack
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// buildClient constructs the configured remote backend.
func buildClient(cfg *config.Config) remote.Client {
	if cfg.Backend == config.BackendREST {
		return rest.New(cfg.Repo, cfg.Token())
	}
	return ghcli.New(cfg.Repo)
}

// retryPolicy maps config to the backoff wrapper.
func retryPolicy(cfg *config.Config, logger *log.Logger) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Base:        time.Duration(cfg.Retry.BaseSeconds * float64(time.Second)),
		MaxSleep:    time.Duration(cfg.Retry.MaxSleepSeconds * float64(time.Second)),
		Logger:      logger,
	}
}

// dispatchOptions maps config to the batch dispatcher.
func dispatchOptions(cfg *config.Config, logger *log.Logger) dispatch.Options {
	return dispatch.Options{
		Enabled:    cfg.Concurrency.Enabled,
		MinItems:   cfg.Concurrency.MinItems,
		BatchSize:  cfg.Concurrency.BatchSize,
		MaxWorkers: cfg.Concurrency.MaxWorkers,
		Pause:      time.Duration(cfg.Concurrency.PauseMS) * time.Millisecond,
		Logger:     logger,
	}
}

// syncOptions assembles the orchestrator options for one run.
func syncOptions(cfg *config.Config, dryRun bool, logger *log.Logger) syncer.Options {
	return syncer.Options{
		DryRun:           dryRun,
		Update:           cfg.Sync.Update,
		RespectStatus:    cfg.Sync.RespectStatus,
		Prune:            cfg.Sync.Prune,
		RequireMilestone: cfg.Sync.RequireMilestone,
		Retry:            retryPolicy(cfg, logger),
		Dispatch:         dispatchOptions(cfg, logger),
	}
}
