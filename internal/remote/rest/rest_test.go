package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"specsync/internal/remote"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("owner/repo", "tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestListPaginates(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing auth header, got %q", got)
		}
		page := r.URL.Query().Get("page")

		var issues []map[string]any
		switch page {
		case "1":
			// A full page forces a second fetch.
			for i := 1; i <= perPage; i++ {
				issues = append(issues, map[string]any{
					"number": i,
					"title":  fmt.Sprintf("Issue %d", i),
					"state":  "open",
				})
			}
		case "2":
			issues = []map[string]any{
				{
					"number":    perPage + 1,
					"title":     "Labeled",
					"state":     "closed",
					"labels":    []map[string]any{{"name": "bug"}},
					"milestone": map[string]any{"title": "v1", "number": 3},
				},
				// Pull requests share the endpoint and must be skipped.
				{
					"number":       perPage + 2,
					"title":        "A PR",
					"state":        "open",
					"pull_request": map[string]any{},
				},
			}
		}
		json.NewEncoder(w).Encode(issues)
	}))

	records, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != perPage+1 {
		t.Fatalf("expected %d records, got %d", perPage+1, len(records))
	}

	last := records[perPage]
	if last.State != remote.StateClosed || last.Milestone != "v1" {
		t.Errorf("record fields not mapped: %+v", last)
	}
	if len(last.Labels) != 1 || last.Labels[0] != "bug" {
		t.Errorf("labels not mapped: %v", last.Labels)
	}
}

func TestCreateResolvesMilestone(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/milestones"):
			json.NewEncoder(w).Encode([]map[string]any{
				{"title": "v1", "number": 7},
			})
		case r.Method == http.MethodPost:
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["milestone"] != float64(7) {
				t.Errorf("milestone title not resolved to number: %v", payload["milestone"])
			}
			json.NewEncoder(w).Encode(map[string]any{"number": 42})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		}
	}))

	n, err := c.Create(context.Background(), "T", "B", []string{"bug"}, "v1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if n != 42 {
		t.Errorf("expected number 42, got %d", n)
	}
}

func TestConcurrentMilestoneResolution(t *testing.T) {
	var milestoneFetches int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/milestones"):
			atomic.AddInt32(&milestoneFetches, 1)
			json.NewEncoder(w).Encode([]map[string]any{
				{"title": "v1", "number": 7},
			})
		case r.Method == http.MethodPatch:
			w.Write([]byte("{}"))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		}
	}))

	// One client is shared by parallel dispatcher workers; milestone
	// updates from several goroutines must not corrupt the cache.
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ms := "v1"
			errs[i] = c.Update(context.Background(), i+1, remote.Update{Milestone: &ms})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("update %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&milestoneFetches); got != 1 {
		t.Errorf("expected a single milestone fetch, got %d", got)
	}
}

func TestErrorPreservesDiagnostics(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
	}))

	_, err := c.List(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	ce, ok := err.(*remote.CallError)
	if !ok {
		t.Fatalf("expected *remote.CallError, got %T", err)
	}
	for _, want := range []string{"HTTP 403", "rate limit", "Retry-After: 30"} {
		if !strings.Contains(ce.Detail, want) {
			t.Errorf("detail missing %q: %s", want, ce.Detail)
		}
	}
}

func TestUpdateClearsMilestone(t *testing.T) {
	var patched map[string]any
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&patched)
		w.Write([]byte("{}"))
	}))

	empty := ""
	err := c.Update(context.Background(), 5, remote.Update{Milestone: &empty})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	v, present := patched["milestone"]
	if !present || v != nil {
		t.Errorf("expected explicit null milestone, got %v (present=%v)", v, present)
	}
}
