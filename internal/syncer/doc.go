// Package syncer decides and applies per-item sync actions against the
// remote tracker.
//
// For every parsed item the orchestrator evaluates a fixed-order state
// machine: unmatched items are created; matched items whose declared
// status is closed are closed (when respect-status is on); matched
// items that drifted are updated (when updates are on); everything
// else is skipped. Dry-run records the same decisions as a plan
// without touching the remote service.
//
// All remote calls go through the retry layer. A per-item failure that
// exhausts its retries is isolated: it becomes an error-annotated
// skipped result and the run continues, in both sequential and
// concurrent dispatch.
package syncer
