// Package ghcli provides a shell-backed remote.Client that drives the
// gh CLI. It assumes gh is installed and already authenticated; no
// token handling happens here.
package ghcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"specsync/internal/remote"
)

// listLimit bounds how many records a single List fetches.
const listLimit = 1000

// Client shells out to gh for every operation.
type Client struct {
	// Repo is the owner/name target repository.
	Repo string

	// bin overrides the gh executable name in tests.
	bin string
}

// New returns a Client for the given owner/name repository.
func New(repo string) *Client {
	return &Client{Repo: repo, bin: "gh"}
}

// run executes gh with the given stdin and arguments. The raw stderr
// text is preserved in the returned CallError because the retry layer
// classifies failures by inspecting it.
func (c *Client) run(ctx context.Context, op, stdin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return "", &remote.CallError{Op: op, Detail: detail, Err: err}
	}
	return stdout.String(), nil
}

// Create implements remote.Client.
func (c *Client) Create(ctx context.Context, title, body string, labels []string, milestone string) (int, error) {
	args := []string{"issue", "create", "--repo", c.Repo, "--title", title, "--body-file", "-"}
	for _, l := range labels {
		args = append(args, "--label", l)
	}
	if milestone != "" {
		args = append(args, "--milestone", milestone)
	}

	out, err := c.run(ctx, "create", body, args...)
	if err != nil {
		return 0, err
	}

	// gh prints the new issue URL; the identifier is the last path
	// segment.
	url := strings.TrimSpace(out)
	idx := strings.LastIndex(url, "/")
	if idx == -1 {
		return 0, &remote.CallError{Op: "create", Detail: fmt.Sprintf("unexpected gh output %q", url)}
	}
	n, err := strconv.Atoi(url[idx+1:])
	if err != nil {
		return 0, &remote.CallError{Op: "create", Detail: fmt.Sprintf("unexpected gh output %q", url)}
	}
	return n, nil
}

// Update implements remote.Client. Label changes are applied as
// add/remove deltas against the record's current labels, since gh
// issue edit has no replace-all form.
func (c *Client) Update(ctx context.Context, number int, upd remote.Update) error {
	num := strconv.Itoa(number)

	args := []string{"issue", "edit", num, "--repo", c.Repo}
	stdin := ""
	edit := false

	if upd.Body != nil {
		args = append(args, "--body-file", "-")
		stdin = *upd.Body
		edit = true
	}
	if upd.Milestone != nil {
		if *upd.Milestone == "" {
			args = append(args, "--remove-milestone")
		} else {
			args = append(args, "--milestone", *upd.Milestone)
		}
		edit = true
	}
	if upd.Labels != nil {
		current, err := c.currentLabels(ctx, num)
		if err != nil {
			return err
		}
		add, del := labelDelta(current, upd.Labels)
		if len(add) > 0 {
			args = append(args, "--add-label", strings.Join(add, ","))
			edit = true
		}
		if len(del) > 0 {
			args = append(args, "--remove-label", strings.Join(del, ","))
			edit = true
		}
	}

	if edit {
		if _, err := c.run(ctx, "update", stdin, args...); err != nil {
			return err
		}
	}

	if upd.State != nil {
		verb := "close"
		if *upd.State == remote.StateOpen {
			verb = "reopen"
		}
		if _, err := c.run(ctx, "update", "", "issue", verb, num, "--repo", c.Repo); err != nil {
			return err
		}
	}
	return nil
}

// Close implements remote.Client.
func (c *Client) Close(ctx context.Context, number int) error {
	_, err := c.run(ctx, "close", "", "issue", "close", strconv.Itoa(number), "--repo", c.Repo)
	return err
}

// ghIssue is the gh --json shape for a listed issue.
type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Milestone *struct {
		Title string `json:"title"`
	} `json:"milestone"`
}

// List implements remote.Client. Both open and closed records are
// fetched so close decisions see current state.
func (c *Client) List(ctx context.Context) ([]remote.Record, error) {
	out, err := c.run(ctx, "list", "",
		"issue", "list", "--repo", c.Repo,
		"--state", "all",
		"--limit", strconv.Itoa(listLimit),
		"--json", "number,title,body,state,labels,milestone")
	if err != nil {
		return nil, err
	}

	var issues []ghIssue
	if err := json.Unmarshal([]byte(out), &issues); err != nil {
		return nil, &remote.CallError{Op: "list", Detail: fmt.Sprintf("invalid gh output: %v", err), Err: err}
	}

	records := make([]remote.Record, 0, len(issues))
	for _, is := range issues {
		rec := remote.Record{
			Number: is.Number,
			Title:  is.Title,
			Body:   is.Body,
			State:  strings.ToUpper(is.State),
		}
		for _, l := range is.Labels {
			rec.Labels = append(rec.Labels, l.Name)
		}
		if is.Milestone != nil {
			rec.Milestone = is.Milestone.Title
		}
		records = append(records, rec)
	}
	return records, nil
}

// currentLabels fetches a record's labels for delta computation.
func (c *Client) currentLabels(ctx context.Context, num string) ([]string, error) {
	out, err := c.run(ctx, "update", "", "issue", "view", num, "--repo", c.Repo, "--json", "labels")
	if err != nil {
		return nil, err
	}
	var view struct {
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		return nil, &remote.CallError{Op: "update", Detail: fmt.Sprintf("invalid gh output: %v", err), Err: err}
	}
	labels := make([]string, 0, len(view.Labels))
	for _, l := range view.Labels {
		labels = append(labels, l.Name)
	}
	return labels, nil
}

// labelDelta computes the additions and removals that turn current
// into target.
func labelDelta(current, target []string) (add, del []string) {
	cur := make(map[string]struct{}, len(current))
	for _, l := range current {
		cur[l] = struct{}{}
	}
	tgt := make(map[string]struct{}, len(target))
	for _, l := range target {
		tgt[l] = struct{}{}
		if _, ok := cur[l]; !ok {
			add = append(add, l)
		}
	}
	for _, l := range current {
		if _, ok := tgt[l]; !ok {
			del = append(del, l)
		}
	}
	return add, del
}
