package reconcile

import (
	"io"
	"log"
	"testing"

	"specsync/internal/remote"
	"specsync/internal/spec"
)

func item(slug, title, body string) spec.Item {
	return spec.Item{
		Slug:  slug,
		Title: title,
		Body:  spec.EnsureMarker(body, slug),
	}
}

func TestNoOverlapRoundTrip(t *testing.T) {
	items := []spec.Item{
		item("a", "A", "x"),
		item("b", "B", "y"),
	}
	records := []remote.Record{
		{Number: 10, Title: "Ten"},
		{Number: 11, Title: "Eleven"},
		{Number: 12, Title: "Twelve"},
	}

	report := Reconcile(items, records, log.New(io.Discard, "", 0))

	if len(report.SpecOnly) != len(items) {
		t.Errorf("expected %d spec_only, got %v", len(items), report.SpecOnly)
	}
	if len(report.LiveOnly) != len(records) {
		t.Errorf("expected %d live_only, got %v", len(records), report.LiveOnly)
	}
	if len(report.Diffs) != 0 {
		t.Errorf("expected zero diffs, got %v", report.Diffs)
	}
	if report.InSync() {
		t.Errorf("disjoint sets reported in sync")
	}
}

func TestInSync(t *testing.T) {
	it := item("a", "A", "same body")
	records := []remote.Record{
		{Number: 1, Title: "A", Body: it.Body, State: remote.StateOpen},
	}

	report := Reconcile([]spec.Item{it}, records, log.New(io.Discard, "", 0))
	if !report.InSync() {
		t.Errorf("expected in sync, got %+v", report)
	}
}

func TestDriftDetected(t *testing.T) {
	it := item("a", "A", "new body")
	it.Labels = []string{"bug"}
	records := []remote.Record{
		{Number: 1, Title: "A", Body: "old body", State: remote.StateOpen},
	}

	report := Reconcile([]spec.Item{it}, records, log.New(io.Discard, "", 0))

	if len(report.Diffs) != 1 {
		t.Fatalf("expected 1 diff, got %v", report.Diffs)
	}
	d := report.Diffs[0]
	if d.Slug != "a" || d.Number != 1 {
		t.Errorf("drift misattributed: %+v", d)
	}
	if !d.Changes.BodyChanged || len(d.Changes.LabelsAdded) != 1 {
		t.Errorf("change-set incomplete: %+v", d.Changes)
	}
	if len(report.SpecOnly) != 0 || len(report.LiveOnly) != 0 {
		t.Errorf("matched pair leaked into spec_only/live_only: %+v", report)
	}
}

func TestMarkerMatchPreventsLiveOnly(t *testing.T) {
	it := item("a", "Renamed Title", "body")
	records := []remote.Record{
		{Number: 1, Title: "Old Title", Body: spec.Marker("a") + "\nbody"},
	}

	report := Reconcile([]spec.Item{it}, records, log.New(io.Discard, "", 0))
	if len(report.SpecOnly) != 0 || len(report.LiveOnly) != 0 {
		t.Errorf("marker match ignored: %+v", report)
	}
}
