package spec

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError describes a malformed specification. Parsing is
// all-or-nothing: a ParseError means no partial item list was produced.
type ParseError struct {
	// Slug names the offending item when known, empty for
	// document-level problems.
	Slug   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Slug == "" {
		return fmt.Sprintf("spec parse error: %s", e.Reason)
	}
	return fmt.Sprintf("spec parse error: item %q: %s", e.Slug, e.Reason)
}

var (
	// headingRe matches an item heading: "## <slug>".
	headingRe = regexp.MustCompile(`^##\s+([a-z0-9][a-z0-9_-]*)\s*$`)

	// legacyHeadingRe matches the retired numbered-heading format
	// ("## 12. Title"), which is rejected rather than guessed at.
	legacyHeadingRe = regexp.MustCompile(`^##\s+\d+[.)]\s`)
)

// payload is the fenced YAML block under an item heading.
type payload struct {
	Title     string `yaml:"title"`
	Labels    any    `yaml:"labels"`
	Milestone string `yaml:"milestone"`
	Status    string `yaml:"status"`
	Body      string `yaml:"body"`
}

// ParseFile reads and parses a specification file.
func ParseFile(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	return Parse(string(data))
}

// Parse turns raw specification text into an ordered list of Items.
//
// Parsing fails fast: zero items, a duplicate slug, a legacy heading,
// a missing fenced block, or a missing title all abort with a
// ParseError and no partial result. Each item's body is guaranteed to
// carry its provenance marker on return (injected when absent, left
// untouched when present).
func Parse(text string) ([]Item, error) {
	sections, err := splitSections(text)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, &ParseError{Reason: "no items found"}
	}

	items := make([]Item, 0, len(sections))
	seen := make(map[string]struct{}, len(sections))
	for _, sec := range sections {
		if _, dup := seen[sec.slug]; dup {
			return nil, &ParseError{Slug: sec.slug, Reason: "duplicate slug"}
		}
		seen[sec.slug] = struct{}{}

		item, err := buildItem(sec)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// section is one heading plus the raw lines beneath it.
type section struct {
	slug  string
	lines []string
}

// splitSections walks the document line by line, collecting item
// sections. Headings are only recognized outside fenced blocks, so
// body text containing "##" lines cannot split an item.
func splitSections(text string) ([]section, error) {
	var (
		sections []section
		current  *section
		inFence  bool
	)
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence && strings.HasPrefix(line, "## ") {
			if legacyHeadingRe.MatchString(line) {
				return nil, &ParseError{Reason: fmt.Sprintf("legacy numbered heading %q is no longer supported", strings.TrimSpace(line))}
			}
			m := headingRe.FindStringSubmatch(line)
			if m == nil {
				return nil, &ParseError{Reason: fmt.Sprintf("heading %q does not carry a valid slug", strings.TrimSpace(line))}
			}
			sections = append(sections, section{slug: m[1]})
			current = &sections[len(sections)-1]
			continue
		}
		if current != nil {
			current.lines = append(current.lines, line)
		}
	}
	if inFence {
		return nil, &ParseError{Reason: "unterminated fenced block"}
	}
	return sections, nil
}

// buildItem parses one section's fenced payload into an Item.
func buildItem(sec section) (Item, error) {
	raw, ok := fencedContent(sec.lines)
	if !ok {
		return Item{}, &ParseError{Slug: sec.slug, Reason: "missing fenced block"}
	}

	var p payload
	if err := yaml.Unmarshal([]byte(raw), &p); err != nil {
		return Item{}, &ParseError{Slug: sec.slug, Reason: fmt.Sprintf("invalid block structure: %v", err)}
	}

	labels, err := parseLabels(p.Labels)
	if err != nil {
		return Item{}, &ParseError{Slug: sec.slug, Reason: err.Error()}
	}

	item := Item{
		Slug:      sec.slug,
		Title:     strings.TrimSpace(p.Title),
		Labels:    canonicalizeLabels(labels),
		Milestone: strings.TrimSpace(p.Milestone),
		Status:    strings.ToLower(strings.TrimSpace(p.Status)),
	}
	if err := item.validate(); err != nil {
		return Item{}, &ParseError{Slug: sec.slug, Reason: err.Error()}
	}

	item.Body = EnsureMarker(p.Body, sec.slug)
	item.Fingerprint = fingerprint(item.Slug, item.Title, item.Labels, item.Milestone, item.Status, item.Body)
	return item, nil
}

// fencedContent extracts the content of the first fenced block in
// lines. The opening fence may carry an info string ("```yaml").
func fencedContent(lines []string) (string, bool) {
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			start = i
			break
		}
	}
	if start == -1 {
		return "", false
	}
	for j := start + 1; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == "```" {
			return strings.Join(lines[start+1:j], "\n"), true
		}
	}
	return "", false
}

// parseLabels accepts either a YAML list or a comma-separated string.
func parseLabels(v any) ([]string, error) {
	switch vv := v.(type) {
	case nil:
		return nil, nil
	case string:
		var out []string
		for _, part := range strings.Split(vv, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("labels must be strings (got %T)", e)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("labels must be a list or comma-separated string (got %T)", v)
	}
}
