package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"specsync/internal/dispatch"
	"specsync/internal/engine"
	"specsync/internal/index"
	"specsync/internal/remote"
	"specsync/internal/retry"
	"specsync/internal/spec"
)

// Action is the decision the state machine reached for one item.
type Action string

// Actions in decision-precedence order.
const (
	ActionCreate Action = "create"
	ActionClose  Action = "close"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Options controls a sync run.
type Options struct {
	// DryRun records decisions as a plan without remote mutation.
	DryRun bool

	// Update enables the update action for drifted items.
	Update bool

	// RespectStatus enables closing items whose declared status is
	// closed.
	RespectStatus bool

	// Prune closes remote records no item referenced this run.
	// Ignored under DryRun.
	Prune bool

	// RequireMilestone fails the whole run before any remote call if
	// any item lacks a milestone.
	RequireMilestone bool

	// Retry tunes the backoff wrapper around remote calls.
	Retry retry.Policy

	// Dispatch tunes batching and parallelism.
	Dispatch dispatch.Options
}

// Result is the per-item outcome, in specification order.
type Result struct {
	Slug    string
	Action  Action
	Number  int
	Changes *engine.ChangeSet

	// Err is set when the item's remote call exhausted its retries.
	// The item counts as skipped in the summary totals.
	Err error

	// syncedFingerprint is recorded into the index when the remote
	// record is known to match the item after this run.
	syncedFingerprint string
}

// PreconditionError aborts a run before any remote call.
type PreconditionError struct {
	Slugs  []string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s: %s", e.Reason, strings.Join(e.Slugs, ", "))
}

// Syncer orchestrates sync runs.
type Syncer struct {
	client remote.Client
	store  *index.Store
	logger *log.Logger
	opts   Options
}

// New creates a Syncer. If logger is nil, a default logger writing to
// stderr is used.
func New(client remote.Client, store *index.Store, logger *log.Logger, opts Options) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger
	}
	if opts.Dispatch.Logger == nil {
		opts.Dispatch.Logger = logger
	}
	return &Syncer{client: client, store: store, logger: logger, opts: opts}
}

// Run synchronizes items against the remote service and returns the
// run summary.
//
// A PreconditionError means nothing was attempted. Any other error
// aborted the run partway (for example, the initial record listing
// failed); the returned summary still reflects what succeeded first.
// Per-item remote failures do not produce an error here: they are
// isolated into error-annotated results, and callers inspect
// Summary.Failed.
func (s *Syncer) Run(ctx context.Context, items []spec.Item) (*Summary, error) {
	summary := newSummary(len(items))

	if s.opts.RequireMilestone {
		var missing []string
		for _, it := range items {
			if it.Milestone == "" {
				missing = append(missing, it.Slug)
			}
		}
		if len(missing) > 0 {
			return nil, &PreconditionError{Slugs: missing, Reason: "milestone required but missing"}
		}
	}

	prior, err := s.store.Load()
	if err != nil {
		return summary, err
	}

	var existing []remote.Record
	err = s.opts.Retry.Do("list", func() error {
		var lerr error
		existing, lerr = s.client.List(ctx)
		return lerr
	})
	if err != nil {
		return summary, fmt.Errorf("failed to list remote records: %w", err)
	}

	results := make([]Result, len(items))
	dispatch.Run(ctx, len(items), s.opts.Dispatch, func(ctx context.Context, i int) error {
		results[i] = s.syncItem(ctx, items[i], existing, prior)
		return results[i].Err
	})

	if s.opts.Prune && !s.opts.DryRun {
		s.prune(ctx, existing, results, summary)
	}

	summary.collect(items, results, s.opts.DryRun)

	if !s.opts.DryRun {
		s.updateIndex(prior, items, results)
		if err := s.store.Persist(prior); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// syncItem runs the state machine for one item. Evaluated in fixed
// order, first applicable wins: create, close, update, skip.
func (s *Syncer) syncItem(ctx context.Context, item spec.Item, existing []remote.Record, prior *index.Document) Result {
	res := Result{Slug: item.Slug, Action: ActionSkip}

	m := engine.Match(item, existing)
	if len(m.Ambiguous) > 0 {
		s.logger.Printf("WARNING: %s: multiple records carry this marker (picked #%d, also %v); match depends on fetch order",
			item.Slug, m.Record.Number, m.Ambiguous)
	}

	switch {
	case m.Record == nil:
		res.Action = ActionCreate

	case s.opts.RespectStatus && item.Status == spec.StatusClosed && m.Record.State != remote.StateClosed:
		res.Action = ActionClose
		res.Number = m.Record.Number

	default:
		priorFP := ""
		if e, ok := prior.Get(item.Slug); ok {
			priorFP = e.Fingerprint
		}
		needs := engine.NeedsUpdate(item, *m.Record, priorFP)
		res.Number = m.Record.Number
		switch {
		case s.opts.Update && needs:
			cs := engine.ComputeDiff(item, *m.Record)
			res.Action = ActionUpdate
			res.Changes = &cs
		case !needs:
			res.syncedFingerprint = item.Fingerprint
		}
	}

	if res.Action != ActionSkip {
		suffix := ""
		if s.opts.DryRun {
			suffix = " (dry-run)"
		}
		s.logger.Printf("%s %s%s", res.Action, item.Slug, suffix)
	}
	if s.opts.DryRun || res.Action == ActionSkip {
		return res
	}

	if err := s.apply(ctx, item, &res); err != nil {
		s.logger.Printf("ERROR: %s %s failed: %v", res.Action, item.Slug, err)
		res.Err = err
	}
	return res
}

// apply performs the remote mutation for a decided action, through the
// retry wrapper.
func (s *Syncer) apply(ctx context.Context, item spec.Item, res *Result) error {
	op := fmt.Sprintf("%s %s", res.Action, item.Slug)

	switch res.Action {
	case ActionCreate:
		return s.opts.Retry.Do(op, func() error {
			n, err := s.client.Create(ctx, item.Title, item.Body, item.Labels, item.Milestone)
			if err != nil {
				return err
			}
			res.Number = n
			res.syncedFingerprint = item.Fingerprint
			return nil
		})

	case ActionUpdate:
		body := item.Body
		milestone := item.Milestone
		labels := item.Labels
		if labels == nil {
			// Nil tells the client "leave as is"; an item that declares
			// no labels must clear the record's.
			labels = []string{}
		}
		upd := remote.Update{
			Body:      &body,
			Labels:    labels,
			Milestone: &milestone,
		}
		return s.opts.Retry.Do(op, func() error {
			if err := s.client.Update(ctx, res.Number, upd); err != nil {
				return err
			}
			res.syncedFingerprint = item.Fingerprint
			return nil
		})

	case ActionClose:
		return s.opts.Retry.Do(op, func() error {
			if err := s.client.Close(ctx, res.Number); err != nil {
				return err
			}
			res.syncedFingerprint = item.Fingerprint
			return nil
		})
	}
	return nil
}

// prune closes open remote records that no per-item result referenced,
// retiring records for items removed from the specification. Failures
// are logged and skipped; prune never aborts the run.
func (s *Syncer) prune(ctx context.Context, existing []remote.Record, results []Result, summary *Summary) {
	referenced := make(map[int]struct{}, len(results))
	for _, r := range results {
		if r.Number != 0 {
			referenced[r.Number] = struct{}{}
		}
	}

	for _, rec := range existing {
		if rec.State == remote.StateClosed {
			continue
		}
		if _, ok := referenced[rec.Number]; ok {
			continue
		}
		s.logger.Printf("prune close #%d %q", rec.Number, rec.Title)
		err := s.opts.Retry.Do(fmt.Sprintf("prune close #%d", rec.Number), func() error {
			return s.client.Close(ctx, rec.Number)
		})
		if err != nil {
			s.logger.Printf("ERROR: prune close #%d failed: %v", rec.Number, err)
			continue
		}
		summary.pruned(rec)
	}
}

// updateIndex merges this run's outcomes into the index document and
// prunes slugs that left the specification.
func (s *Syncer) updateIndex(doc *index.Document, items []spec.Item, results []Result) {
	for _, r := range results {
		if r.Err != nil || r.Number == 0 {
			continue
		}
		entry := index.Entry{Issue: r.Number}
		if r.syncedFingerprint != "" {
			entry.Fingerprint = r.syncedFingerprint
		} else if e, ok := doc.Get(r.Slug); ok && e.Issue == r.Number {
			entry.Fingerprint = e.Fingerprint
		}
		doc.Set(r.Slug, entry)
	}

	keep := make(map[string]struct{}, len(items))
	for _, it := range items {
		keep[it.Slug] = struct{}{}
	}
	doc.Prune(keep)
}
