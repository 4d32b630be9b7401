// Package reconcile produces a read-only drift report between the
// parsed specification and live remote records. It reuses the match
// and diff engine but never mutates anything.
package reconcile

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"specsync/internal/engine"
	"specsync/internal/remote"
	"specsync/internal/spec"
)

// Drift is one matched pair whose content differs.
type Drift struct {
	Slug    string           `json:"slug"`
	Number  int              `json:"number"`
	Changes engine.ChangeSet `json:"changes"`
}

// LiveRecord identifies a remote record no item matched.
type LiveRecord struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Report is the drift report. The system is in sync iff all three
// categories are empty.
type Report struct {
	// SpecOnly lists slugs of items no remote record matched.
	SpecOnly []string `json:"spec_only"`

	// LiveOnly lists remote records no item matched.
	LiveOnly []LiveRecord `json:"live_only"`

	// Diffs lists matched pairs with a non-empty change-set.
	Diffs []Drift `json:"diffs"`
}

// InSync reports whether declared and live state agree.
func (r *Report) InSync() bool {
	return len(r.SpecOnly) == 0 && len(r.LiveOnly) == 0 && len(r.Diffs) == 0
}

// WriteJSON writes the report to w as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode drift report: %w", err)
	}
	return nil
}

// Reconcile compares items to records and classifies every entity on
// both sides. Matching follows the sync engine exactly (title first,
// then provenance marker, first in fetch order), so a reconcile that
// reports in-sync means a sync run would be a no-op. A nil logger
// defaults to stderr.
func Reconcile(items []spec.Item, records []remote.Record, logger *log.Logger) *Report {
	if logger == nil {
		logger = log.New(os.Stderr, "[reconcile] ", log.LstdFlags)
	}

	report := &Report{
		SpecOnly: []string{},
		LiveOnly: []LiveRecord{},
		Diffs:    []Drift{},
	}

	matched := make(map[int]struct{}, len(items))
	for _, item := range items {
		m := engine.Match(item, records)
		if m.Record == nil {
			report.SpecOnly = append(report.SpecOnly, item.Slug)
			continue
		}
		if len(m.Ambiguous) > 0 {
			logger.Printf("WARNING: %s: multiple records carry this marker (picked #%d, also %v)",
				item.Slug, m.Record.Number, m.Ambiguous)
		}
		matched[m.Record.Number] = struct{}{}

		if cs := engine.ComputeDiff(item, *m.Record); !cs.Empty() {
			report.Diffs = append(report.Diffs, Drift{
				Slug:    item.Slug,
				Number:  m.Record.Number,
				Changes: cs,
			})
		}
	}

	for _, rec := range records {
		if _, ok := matched[rec.Number]; !ok {
			report.LiveOnly = append(report.LiveOnly, LiveRecord{Number: rec.Number, Title: rec.Title})
		}
	}
	return report
}
