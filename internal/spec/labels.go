package spec

// canonicalLabels maps the lower-kebab forms people type in spec files
// to the canonical label names used on the remote service. Unknown
// labels pass through unchanged.
var canonicalLabels = map[string]string{
	"priority-critical": "Priority: Critical",
	"priority-high":     "Priority: High",
	"priority-medium":   "Priority: Medium",
	"priority-low":      "Priority: Low",
	"good-first-issue":  "good first issue",
	"help-wanted":       "help wanted",
}

// CanonicalLabel returns the canonical form of a label name.
func CanonicalLabel(name string) string {
	if c, ok := canonicalLabels[name]; ok {
		return c
	}
	return name
}

// canonicalizeLabels maps every label through CanonicalLabel,
// preserving declaration order.
func canonicalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = CanonicalLabel(l)
	}
	return out
}
