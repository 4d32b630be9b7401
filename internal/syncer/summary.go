package syncer

import (
	"encoding/json"
	"fmt"
	"os"

	"specsync/internal/engine"
	"specsync/internal/remote"
	"specsync/internal/spec"
)

// Totals counts per-action outcomes for one run.
type Totals struct {
	Specs   int `json:"specs"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Closed  int `json:"closed"`
	Skipped int `json:"skipped"`
}

// Change describes one applied change in the summary artifact.
type Change struct {
	ExternalID string            `json:"external_id,omitempty"`
	Number     int               `json:"number,omitempty"`
	Title      string            `json:"title,omitempty"`
	Changes    *engine.ChangeSet `json:"changes,omitempty"`
}

// Changes groups applied changes by action.
type Changes struct {
	Created []Change `json:"created"`
	Updated []Change `json:"updated"`
	Closed  []Change `json:"closed"`
}

// PlanEntry is one intended action from a dry run.
type PlanEntry struct {
	ExternalID string            `json:"external_id"`
	Action     string            `json:"action"`
	Number     int               `json:"number,omitempty"`
	Changes    *engine.ChangeSet `json:"changes,omitempty"`
}

// Summary is the per-run artifact. It is ephemeral: only the mapping
// subset survives, merged into the persisted index.
type Summary struct {
	Totals  Totals         `json:"totals"`
	Changes Changes        `json:"changes"`
	Mapping map[string]int `json:"mapping"`
	Plan    []PlanEntry    `json:"plan,omitempty"`

	// Results holds the per-item outcomes in specification order,
	// error annotations included. Not part of the JSON artifact.
	Results []Result `json:"-"`
}

func newSummary(specs int) *Summary {
	return &Summary{
		Totals:  Totals{Specs: specs},
		Changes: Changes{Created: []Change{}, Updated: []Change{}, Closed: []Change{}},
		Mapping: make(map[string]int),
	}
}

// Failed returns the slugs whose remote calls exhausted their retries.
func (s *Summary) Failed() []string {
	var out []string
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r.Slug)
		}
	}
	return out
}

// collect folds per-item results into totals, change lists, mapping,
// and (under dry-run) the plan. Results iterate in specification
// order, so the artifact's lists do too. Dry-run totals count planned
// actions, so the artifact reads the same way in both modes; only the
// change lists stay empty.
func (s *Summary) collect(items []spec.Item, results []Result, dryRun bool) {
	s.Results = results

	for i, r := range results {
		if r.Number != 0 && r.Err == nil {
			s.Mapping[r.Slug] = r.Number
		}

		if r.Err != nil {
			s.Totals.Skipped++
			continue
		}

		if dryRun && r.Action != ActionSkip {
			s.Plan = append(s.Plan, PlanEntry{
				ExternalID: r.Slug,
				Action:     string(r.Action),
				Number:     r.Number,
				Changes:    r.Changes,
			})
		}

		switch r.Action {
		case ActionCreate:
			s.Totals.Created++
			if !dryRun {
				s.Changes.Created = append(s.Changes.Created, Change{
					ExternalID: r.Slug,
					Number:     r.Number,
					Title:      items[i].Title,
				})
			}
		case ActionUpdate:
			s.Totals.Updated++
			if !dryRun {
				s.Changes.Updated = append(s.Changes.Updated, Change{
					ExternalID: r.Slug,
					Number:     r.Number,
					Changes:    r.Changes,
				})
			}
		case ActionClose:
			s.Totals.Closed++
			if !dryRun {
				s.Changes.Closed = append(s.Changes.Closed, Change{
					ExternalID: r.Slug,
					Number:     r.Number,
				})
			}
		default:
			s.Totals.Skipped++
		}
	}
}

// pruned records one record closed by the prune pass.
func (s *Summary) pruned(rec remote.Record) {
	s.Totals.Closed++
	s.Changes.Closed = append(s.Changes.Closed, Change{
		Number: rec.Number,
		Title:  rec.Title,
	})
}

// WriteFile writes the summary artifact as JSON.
func (s *Summary) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
