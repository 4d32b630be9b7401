package remote

import (
	"context"
	"sync"
)

// Sequence hands out record identifiers for the mock client. It is
// injected at construction time so tests control numbering; there is
// no package-level counter.
type Sequence struct {
	mu   sync.Mutex
	next int
}

// NewSequence returns a Sequence starting at start.
func NewSequence(start int) *Sequence {
	return &Sequence{next: start}
}

// Next returns the next identifier.
func (s *Sequence) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	s.next++
	return n
}

// Call records one invocation against the mock client.
type Call struct {
	Op     string // "create", "update", "close", "list"
	Number int
	Title  string
	Update Update
}

// Mock is an in-memory Client for tests. Records created through it
// are visible to subsequent List calls. Errs maps an operation name to
// an error returned for every invocation of that operation.
type Mock struct {
	mu      sync.Mutex
	seq     *Sequence
	records map[int]*Record
	order   []int
	Calls   []Call
	Errs    map[string]error
}

// NewMock returns a Mock whose identifiers come from seq. A nil seq
// starts numbering at 1.
func NewMock(seq *Sequence) *Mock {
	if seq == nil {
		seq = NewSequence(1)
	}
	return &Mock{
		seq:     seq,
		records: make(map[int]*Record),
		Errs:    make(map[string]error),
	}
}

// Seed adds an existing record without registering a call.
func (m *Mock) Seed(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := rec
	m.records[r.Number] = &r
	m.order = append(m.order, r.Number)
}

// Create implements Client.
func (m *Mock) Create(_ context.Context, title, body string, labels []string, milestone string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Op: "create", Title: title})
	if err := m.Errs["create"]; err != nil {
		return 0, err
	}
	n := m.seq.Next()
	m.records[n] = &Record{
		Number:    n,
		Title:     title,
		Labels:    append([]string(nil), labels...),
		Milestone: milestone,
		Body:      body,
		State:     StateOpen,
	}
	m.order = append(m.order, n)
	return n, nil
}

// Update implements Client.
func (m *Mock) Update(_ context.Context, number int, upd Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Op: "update", Number: number, Update: upd})
	if err := m.Errs["update"]; err != nil {
		return err
	}
	rec, ok := m.records[number]
	if !ok {
		return &CallError{Op: "update", Detail: "no such record"}
	}
	if upd.Body != nil {
		rec.Body = *upd.Body
	}
	if upd.Labels != nil {
		rec.Labels = append([]string(nil), upd.Labels...)
	}
	if upd.Milestone != nil {
		rec.Milestone = *upd.Milestone
	}
	if upd.State != nil {
		rec.State = *upd.State
	}
	return nil
}

// Close implements Client.
func (m *Mock) Close(_ context.Context, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Op: "close", Number: number})
	if err := m.Errs["close"]; err != nil {
		return err
	}
	rec, ok := m.records[number]
	if !ok {
		return &CallError{Op: "close", Detail: "no such record"}
	}
	rec.State = StateClosed
	return nil
}

// List implements Client. Records come back in creation/seed order.
func (m *Mock) List(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Op: "list"})
	if err := m.Errs["list"]; err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, *m.records[n])
	}
	return out, nil
}

// Get returns a copy of a record for assertions.
func (m *Mock) Get(number int) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[number]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// MutatingCalls returns the calls that would have changed remote
// state, in order.
func (m *Mock) MutatingCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.Calls {
		if c.Op != "list" {
			out = append(out, c)
		}
	}
	return out
}
