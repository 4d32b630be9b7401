// Package engine matches parsed items to remote records and computes
// structured change-sets between them. It is pure: no remote calls, no
// mutation, no persistence.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"specsync/internal/remote"
	"specsync/internal/spec"
)

// maxDiffLines bounds the unified body diff carried by a ChangeSet.
// Longer diffs are cut and end with truncationMarker, so a pathological
// body change cannot blow up plan output.
const maxDiffLines = 80

const truncationMarker = "... diff truncated ..."

// MatchResult ties an item to at most one remote record.
type MatchResult struct {
	// Record is the matched record, nil when the item is unmatched.
	Record *remote.Record

	// Ambiguous lists the numbers of additional records that also
	// carried the item's provenance marker. The first in fetch order
	// wins; callers should surface the rest as a warning since fetch
	// order is not stable across remote-side reordering.
	Ambiguous []int
}

// Match finds the remote record for an item: exact title equality
// first, then the provenance marker embedded in record bodies. The
// first hit in fetch order wins.
func Match(item spec.Item, existing []remote.Record) MatchResult {
	for i := range existing {
		if existing[i].Title == item.Title {
			return MatchResult{Record: &existing[i]}
		}
	}

	var res MatchResult
	for i := range existing {
		if !spec.HasMarker(existing[i].Body, item.Slug) {
			continue
		}
		if res.Record == nil {
			res.Record = &existing[i]
			continue
		}
		res.Ambiguous = append(res.Ambiguous, existing[i].Number)
	}
	return res
}

// NeedsUpdate reports whether a matched record has drifted from the
// item. When priorFingerprint equals the item's fingerprint the answer
// is false without any field comparison: the last successful sync is
// authoritative, even if the record itself was edited remotely.
func NeedsUpdate(item spec.Item, rec remote.Record, priorFingerprint string) bool {
	if priorFingerprint != "" && priorFingerprint == item.Fingerprint {
		return false
	}
	if !sameLabelSet(item.Labels, rec.Labels) {
		return true
	}
	if item.Milestone != rec.Milestone {
		return true
	}
	return strings.TrimSpace(item.Body) != strings.TrimSpace(rec.Body)
}

// ChangeSet is the structured diff between an item and its matched
// record. Derived on demand, never persisted.
type ChangeSet struct {
	LabelsAdded   []string `json:"labels_added,omitempty"`
	LabelsRemoved []string `json:"labels_removed,omitempty"`

	MilestoneChanged bool   `json:"milestone_changed,omitempty"`
	MilestoneFrom    string `json:"milestone_from,omitempty"`
	MilestoneTo      string `json:"milestone_to,omitempty"`

	BodyChanged bool   `json:"body_changed,omitempty"`
	BodyDiff    string `json:"body_diff,omitempty"`
}

// Empty reports whether the change-set contains no changes.
func (c ChangeSet) Empty() bool {
	return len(c.LabelsAdded) == 0 &&
		len(c.LabelsRemoved) == 0 &&
		!c.MilestoneChanged &&
		!c.BodyChanged
}

// ComputeDiff builds the change-set turning rec into item: label set
// symmetric difference, milestone from/to when it differs, and a
// line-based unified body diff capped at maxDiffLines.
func ComputeDiff(item spec.Item, rec remote.Record) ChangeSet {
	var cs ChangeSet

	cs.LabelsAdded, cs.LabelsRemoved = labelDiff(rec.Labels, item.Labels)

	if item.Milestone != rec.Milestone {
		cs.MilestoneChanged = true
		cs.MilestoneFrom = rec.Milestone
		cs.MilestoneTo = item.Milestone
	}

	specBody := strings.TrimSpace(item.Body)
	recBody := strings.TrimSpace(rec.Body)
	if specBody != recBody {
		cs.BodyChanged = true
		cs.BodyDiff = bodyDiff(recBody, specBody)
	}
	return cs
}

// labelDiff returns the sorted additions and removals turning the
// current set into the target set.
func labelDiff(current, target []string) (added, removed []string) {
	cur := toSet(current)
	tgt := toSet(target)
	for l := range tgt {
		if _, ok := cur[l]; !ok {
			added = append(added, l)
		}
	}
	for l := range cur {
		if _, ok := tgt[l]; !ok {
			removed = append(removed, l)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// bodyDiff renders a unified diff, truncated at maxDiffLines.
func bodyDiff(from, to string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: "remote",
		ToFile:   "spec",
		Context:  3,
	})
	if err != nil {
		return fmt.Sprintf("(diff unavailable: %v)", err)
	}

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > maxDiffLines {
		lines = append(lines[:maxDiffLines], truncationMarker)
	}
	return strings.Join(lines, "\n")
}

func sameLabelSet(a, b []string) bool {
	sa := toSet(a)
	sb := toSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for l := range sa {
		if _, ok := sb[l]; !ok {
			return false
		}
	}
	return true
}

func toSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return set
}
