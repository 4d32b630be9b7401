// Package spec parses the declarative item specification into typed
// Item records with content fingerprints.
//
// A specification is a sequence of headed blocks. Each heading carries
// the item's slug, and is followed by a fenced YAML block with the
// item's fields:
//
//	## fix-login-redirect
//
//	```yaml
//	title: Fix login redirect loop
//	labels: [bug, priority-high]
//	milestone: v1.2
//	status: open
//	body: |
//	  Users bounce between /login and /home.
//	```
//
// Items are regenerated on every parse; a changed source text produces
// a new Item value with a new fingerprint.
package spec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Status values an item may declare.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// MarkerPrefix opens the hidden provenance marker embedded in item
// bodies. The marker ties a remote record back to its slug even if the
// title is later edited remotely.
const MarkerPrefix = "<!-- specsync:"

// Item is a single parsed specification entry. Items are immutable:
// the parser builds them and nothing mutates them afterwards.
type Item struct {
	// Slug is the stable identifier from the block heading.
	Slug string

	// Title is the record title pushed to the remote service.
	Title string

	// Labels are canonicalized label names, in declaration order.
	Labels []string

	// Milestone is the milestone title, empty if none.
	Milestone string

	// Status is "open", "closed", or empty (treated as open).
	Status string

	// Body is the record body, always containing the provenance
	// marker for Slug.
	Body string

	// Fingerprint is a digest over the item's content, used for
	// idempotent change detection across runs.
	Fingerprint string
}

// Marker returns the provenance marker for the given slug.
func Marker(slug string) string {
	return MarkerPrefix + slug + " -->"
}

// HasMarker reports whether body embeds the provenance marker for slug.
func HasMarker(body, slug string) bool {
	return strings.Contains(body, Marker(slug))
}

// EnsureMarker returns body with the provenance marker for slug
// appended. Insertion is idempotent: a body that already carries the
// marker is returned unchanged, so parsing marker-injected output a
// second time never duplicates it.
func EnsureMarker(body, slug string) string {
	if HasMarker(body, slug) {
		return body
	}
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return Marker(slug) + "\n"
	}
	return body + "\n\n" + Marker(slug) + "\n"
}

// fingerprint computes the content digest for an item. The digest
// covers slug, title, sorted-unique labels, milestone, status, and the
// whitespace-trimmed body, joined with an unprintable delimiter so
// field boundaries cannot collide with field content. Trailing
// whitespace changes to the body do not change the fingerprint.
func fingerprint(slug, title string, labels []string, milestone, status, body string) string {
	uniq := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		uniq[l] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for l := range uniq {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)

	parts := []string{
		slug,
		title,
		strings.Join(sorted, ","),
		milestone,
		status,
		strings.TrimSpace(body),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// validate checks required fields after parsing.
func (it *Item) validate() error {
	if it.Title == "" {
		return fmt.Errorf("title is required")
	}
	switch it.Status {
	case "", StatusOpen, StatusClosed:
	default:
		return fmt.Errorf("status must be %q or %q (got %q)", StatusOpen, StatusClosed, it.Status)
	}
	return nil
}
