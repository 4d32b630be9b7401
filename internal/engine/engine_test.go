package engine

import (
	"fmt"
	"strings"
	"testing"

	"specsync/internal/remote"
	"specsync/internal/spec"
)

func testItem(slug, title string, labels []string, milestone, body string) spec.Item {
	return spec.Item{
		Slug:        slug,
		Title:       title,
		Labels:      labels,
		Milestone:   milestone,
		Body:        spec.EnsureMarker(body, slug),
		Fingerprint: "fp-" + slug,
	}
}

func TestMatchByTitle(t *testing.T) {
	item := testItem("alpha", "Alpha", nil, "", "B")
	existing := []remote.Record{
		{Number: 1, Title: "Other"},
		{Number: 2, Title: "Alpha"},
		{Number: 3, Title: "Alpha"}, // later duplicate never reached
	}

	res := Match(item, existing)
	if res.Record == nil || res.Record.Number != 2 {
		t.Fatalf("expected record 2, got %+v", res.Record)
	}
	if len(res.Ambiguous) != 0 {
		t.Errorf("title match should not report ambiguity, got %v", res.Ambiguous)
	}
}

func TestMatchByMarker(t *testing.T) {
	item := testItem("alpha", "Alpha (renamed)", nil, "", "B")
	existing := []remote.Record{
		{Number: 1, Title: "Old title", Body: "text\n" + spec.Marker("alpha")},
	}

	res := Match(item, existing)
	if res.Record == nil || res.Record.Number != 1 {
		t.Fatalf("expected marker match on record 1, got %+v", res.Record)
	}
}

func TestMatchTitleBeforeMarker(t *testing.T) {
	item := testItem("alpha", "Alpha", nil, "", "B")
	existing := []remote.Record{
		{Number: 1, Title: "Unrelated", Body: spec.Marker("alpha")},
		{Number: 2, Title: "Alpha"},
	}

	res := Match(item, existing)
	if res.Record == nil || res.Record.Number != 2 {
		t.Fatalf("expected title match to win, got %+v", res.Record)
	}
}

func TestMatchAmbiguousMarkers(t *testing.T) {
	item := testItem("alpha", "Alpha", nil, "", "B")
	existing := []remote.Record{
		{Number: 5, Title: "x", Body: spec.Marker("alpha")},
		{Number: 9, Title: "y", Body: spec.Marker("alpha")},
	}

	res := Match(item, existing)
	if res.Record == nil || res.Record.Number != 5 {
		t.Fatalf("expected first-in-fetch-order winner 5, got %+v", res.Record)
	}
	if len(res.Ambiguous) != 1 || res.Ambiguous[0] != 9 {
		t.Errorf("expected ambiguity [9], got %v", res.Ambiguous)
	}
}

func TestMatchNone(t *testing.T) {
	item := testItem("alpha", "Alpha", nil, "", "B")
	if res := Match(item, []remote.Record{{Number: 1, Title: "Other"}}); res.Record != nil {
		t.Errorf("expected no match, got %+v", res.Record)
	}
}

func TestNeedsUpdateFingerprintShortCircuit(t *testing.T) {
	item := testItem("alpha", "Alpha", []string{"bug"}, "v1", "B")
	// Record differs in every comparable field.
	rec := remote.Record{Number: 1, Title: "Alpha", Labels: []string{"other"}, Milestone: "v2", Body: "different"}

	if NeedsUpdate(item, rec, item.Fingerprint) {
		t.Errorf("matching prior fingerprint must short-circuit to false")
	}
	if !NeedsUpdate(item, rec, "stale-fingerprint") {
		t.Errorf("stale prior fingerprint must fall through to field comparison")
	}
	if !NeedsUpdate(item, rec, "") {
		t.Errorf("missing prior fingerprint must fall through to field comparison")
	}
}

func TestNeedsUpdateFieldComparison(t *testing.T) {
	item := testItem("alpha", "Alpha", []string{"bug", "docs"}, "v1", "Body text")

	inSync := remote.Record{
		Labels:    []string{"docs", "bug"}, // order-independent
		Milestone: "v1",
		Body:      item.Body + "\n\n", // trailing whitespace ignored
	}
	if NeedsUpdate(item, inSync, "") {
		t.Errorf("record matching item should not need update")
	}

	cases := map[string]remote.Record{
		"labels":    {Labels: []string{"bug"}, Milestone: "v1", Body: item.Body},
		"milestone": {Labels: []string{"bug", "docs"}, Milestone: "v2", Body: item.Body},
		"body":      {Labels: []string{"bug", "docs"}, Milestone: "v1", Body: "other"},
	}
	for name, rec := range cases {
		if !NeedsUpdate(item, rec, "") {
			t.Errorf("%s drift not detected", name)
		}
	}
}

func TestComputeDiff(t *testing.T) {
	item := testItem("alpha", "Alpha", []string{"bug", "new"}, "v2", "line1\nline2")
	rec := remote.Record{
		Labels:    []string{"bug", "old"},
		Milestone: "v1",
		Body:      "line1\nchanged",
	}

	cs := ComputeDiff(item, rec)
	if len(cs.LabelsAdded) != 1 || cs.LabelsAdded[0] != "new" {
		t.Errorf("expected added [new], got %v", cs.LabelsAdded)
	}
	if len(cs.LabelsRemoved) != 1 || cs.LabelsRemoved[0] != "old" {
		t.Errorf("expected removed [old], got %v", cs.LabelsRemoved)
	}
	if !cs.MilestoneChanged || cs.MilestoneFrom != "v1" || cs.MilestoneTo != "v2" {
		t.Errorf("milestone change not captured: %+v", cs)
	}
	if !cs.BodyChanged || !strings.Contains(cs.BodyDiff, "-changed") {
		t.Errorf("body diff missing: %q", cs.BodyDiff)
	}
	if cs.Empty() {
		t.Errorf("non-empty change-set reported Empty")
	}
}

func TestComputeDiffNoChanges(t *testing.T) {
	item := testItem("alpha", "Alpha", []string{"bug"}, "v1", "same")
	rec := remote.Record{Labels: []string{"bug"}, Milestone: "v1", Body: item.Body}

	if cs := ComputeDiff(item, rec); !cs.Empty() {
		t.Errorf("expected empty change-set, got %+v", cs)
	}
}

func TestComputeDiffTruncatesLargeBody(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	item := testItem("alpha", "Alpha", nil, "", sb.String())
	rec := remote.Record{Body: "entirely different"}

	cs := ComputeDiff(item, rec)
	lines := strings.Split(cs.BodyDiff, "\n")
	if len(lines) != maxDiffLines+1 {
		t.Errorf("expected %d lines after truncation, got %d", maxDiffLines+1, len(lines))
	}
	if lines[len(lines)-1] != truncationMarker {
		t.Errorf("expected truncation marker terminator, got %q", lines[len(lines)-1])
	}
}
