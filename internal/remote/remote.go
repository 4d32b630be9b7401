// Package remote defines the capability interface for the issue
// tracker the synchronizer writes to, plus the uniform error type the
// retry layer inspects.
//
// Two implementations exist: ghcli (shell-backed, drives the gh CLI)
// and rest (talks to the REST API directly). Callers hold a Client and
// never care which one they have.
package remote

import (
	"context"
	"fmt"
)

// Record lifecycle states as reported by the remote service.
const (
	StateOpen   = "OPEN"
	StateClosed = "CLOSED"
)

// Record is the remote service's representation of a tracked entity.
// It is re-fetched on every sync pass and never cached across runs.
type Record struct {
	Number    int
	Title     string
	Labels    []string
	Milestone string
	Body      string
	State     string
}

// Update carries the fields to change on an existing record. Nil
// pointers mean "leave as is"; a nil Labels slice means the same.
type Update struct {
	Body      *string
	Labels    []string
	Milestone *string
	State     *string
}

// Client is the remote tracker capability. Implementations are
// stateless per call and must return a *CallError on transport or
// command failure so the retry layer can classify it.
type Client interface {
	// Create opens a new record and returns its identifier.
	Create(ctx context.Context, title, body string, labels []string, milestone string) (int, error)

	// Update applies the non-nil fields of upd to a record.
	Update(ctx context.Context, number int, upd Update) error

	// Close closes a record.
	Close(ctx context.Context, number int) error

	// List fetches all records, open and closed, in the service's
	// listing order.
	List(ctx context.Context) ([]Record, error)
}

// CallError is the uniform failure type for remote operations. Detail
// preserves the raw diagnostic text (HTTP response body, command
// stderr) because transient-failure classification inspects it.
type CallError struct {
	Op     string
	Detail string
	Err    error
}

func (e *CallError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("remote %s failed: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }
