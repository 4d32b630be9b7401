package main

import (
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"specsync/internal/config"
	"specsync/internal/index"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect the persisted slug-to-issue index",
}

var indexVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the index signature",
	Long: `Recompute the integrity signature over the stored index entries and
compare it to the stored signature. A mismatch means the index was
edited or corrupted; the next sync will discard it and rebuild
mappings from live matching.`,
	Run: func(cmd *cobra.Command, args []string) {
		store := indexStore()

		ok, err := store.Verify()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Printf("FAIL: signature mismatch in %s\n", store.Path)
			os.Exit(1)
		}
		fmt.Printf("OK: %s\n", store.Path)
	},
}

var indexShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the index entries",
	Run: func(cmd *cobra.Command, args []string) {
		store := indexStore()

		doc, err := store.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		slugs := make([]string, 0, len(doc.Entries))
		for slug := range doc.Entries {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)
		for _, slug := range slugs {
			fmt.Printf("%s\t#%d\n", slug, doc.Entries[slug].Issue)
		}
	},
}

// indexStore builds the store from config alone; index commands work
// without a repo.
func indexStore() *index.Store {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return index.NewStore(cfg.IndexPath, "", log.New(os.Stderr, "[index] ", log.LstdFlags))
}

func init() {
	indexCmd.AddCommand(indexVerifyCmd, indexShowCmd)
}
