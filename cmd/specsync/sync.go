package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"specsync/internal/index"
	"specsync/internal/spec"
	"specsync/internal/syncer"
)

var (
	flagDryRun    bool
	flagPrune     bool
	flagMilestone bool
	flagParallel  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Apply the specification to the remote tracker",
	Long: `Parse the specification, match every item against live remote records,
and create, update, or close records until remote state matches the
declared state. The slug-to-issue mapping is persisted to the signed
local index, and a run summary is written as JSON.

Per-item remote failures are retried with backoff; an item that
exhausts its retries is reported and skipped, and the run continues.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runSync(flagDryRun))
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show intended actions without touching the remote",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runSync(true))
	},
}

func init() {
	syncCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "record a plan instead of mutating the remote")
	syncCmd.Flags().BoolVar(&flagPrune, "prune", false, "close remote records for items removed from the spec")
	syncCmd.Flags().BoolVar(&flagMilestone, "require-milestone", false, "fail before any remote call if an item lacks a milestone")
	syncCmd.Flags().BoolVar(&flagParallel, "parallel", false, "dispatch items in paced parallel batches")
}

// runSync executes one sync pass and returns the process exit code.
func runSync(dryRun bool) int {
	cfg := mustLoadConfig()
	if flagPrune {
		cfg.Sync.Prune = true
	}
	if flagMilestone {
		cfg.Sync.RequireMilestone = true
	}
	if flagParallel {
		cfg.Concurrency.Enabled = true
	}

	logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)

	items, err := spec.ParseFile(cfg.SpecPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	store := index.NewStore(cfg.IndexPath, cfg.MirrorPath, logger)
	s := syncer.New(buildClient(cfg), store, logger, syncOptions(cfg, dryRun, logger))

	summary, err := s.Run(context.Background(), items)

	// Precondition failures write nothing; every other outcome leaves
	// a summary reflecting what succeeded.
	var pre *syncer.PreconditionError
	if errors.As(err, &pre) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", pre)
		return 1
	}
	if summary != nil && cfg.SummaryPath != "" {
		if werr := summary.WriteFile(cfg.SummaryPath); werr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", werr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if dryRun {
		fmt.Printf("Plan: %d actions for %d items\n", len(summary.Plan), summary.Totals.Specs)
		for _, p := range summary.Plan {
			if p.Number != 0 {
				fmt.Printf("  %-6s %s (#%d)\n", p.Action, p.ExternalID, p.Number)
			} else {
				fmt.Printf("  %-6s %s\n", p.Action, p.ExternalID)
			}
		}
		return 0
	}

	t := summary.Totals
	fmt.Printf("Synced %d items: %d created, %d updated, %d closed, %d skipped\n",
		t.Specs, t.Created, t.Updated, t.Closed, t.Skipped)

	if failed := summary.Failed(); len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "Error: %d items failed after retries: %v\n", len(failed), failed)
		return 1
	}
	return 0
}
