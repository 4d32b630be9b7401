package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"specsync/internal/reconcile"
	"specsync/internal/remote"
	"specsync/internal/spec"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Report drift between the spec and the remote tracker",
	Long: `Compare the parsed specification against live remote records and print
a drift report as JSON: items with no remote record (spec_only),
records with no item (live_only), and matched pairs whose content
differs (diff). Nothing is mutated.

Exits 0 when in sync, 1 when drift exists.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		logger := log.New(os.Stderr, "[reconcile] ", log.LstdFlags)

		items, err := spec.ParseFile(cfg.SpecPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		client := buildClient(cfg)
		var records []remote.Record
		err = retryPolicy(cfg, logger).Do("list", func() error {
			var lerr error
			records, lerr = client.List(context.Background())
			return lerr
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list remote records: %v\n", err)
			os.Exit(1)
		}

		report := reconcile.Reconcile(items, records, logger)
		if err := report.WriteJSON(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !report.InSync() {
			os.Exit(1)
		}
	},
}
