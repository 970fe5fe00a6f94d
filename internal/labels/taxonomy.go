// Package labels implements the PR label taxonomy and mutation engine of
// §4.4: static/dynamic label coloring, size computation, the
// review-state-to-label projection, and a poll-based consistency wait
// grounded on the wait-for-rate-limit poll the teacher already performs
// with sethvargo/go-retry.
package labels

import (
	"sort"
	"strings"
)

// MaxLabelNameLen is GitHub's practical label-name cap; names longer than
// this are rejected before any API call is made (§4.4).
const MaxLabelNameLen = 49

// Dynamic label prefixes recognized by the review-state projection and the
// color taxonomy.
const (
	PrefixApprovedBy         = "approved-by-"
	PrefixLGTMBy             = "lgtm-by-"
	PrefixChangesRequestedBy = "changes-requested-by-"
	PrefixCommentedBy        = "commented-by-"
	PrefixBranch             = "branch-"
	PrefixSize               = "size/"
)

// staticColors holds the fixed color for every label name that isn't
// dynamically generated.
var staticColors = map[string]string{
	"wip":            "fbca04",
	"hold":           "d93f0b",
	"verified":       "0e8a16",
	"automerge":      "1d76db",
	"lgtm":           "0e8a16",
	"approve":        "0e8a16",
	"cherry-pick":    "5319e7",
	"cherry-picked":  "5319e7",
	"has-conflicts":  "e11d21",
	"needs-rebase":   "e11d21",
	"do-not-merge":   "b60205",
}

// dynamicColors maps a dynamic prefix to its fixed color; the suffix (a
// username, branch name, or size class) doesn't affect the color.
var dynamicColors = map[string]string{
	PrefixApprovedBy:         "0e8a16",
	PrefixLGTMBy:             "0e8a16",
	PrefixChangesRequestedBy: "e11d21",
	PrefixCommentedBy:        "c5def5",
	PrefixBranch:             "bfdadc",
}

// SizeRule maps an additions+deletions threshold to a size label's name
// and color.
type SizeRule struct {
	Name      string
	Threshold int
	Color     string
}

// DefaultSizeRules is the built-in threshold table of §4.4: the change
// count is mapped to the first rule it falls strictly below.
func DefaultSizeRules() []SizeRule {
	return []SizeRule{
		{Name: "XS", Threshold: 20, Color: "3cbf00"},
		{Name: "S", Threshold: 50, Color: "a1d76a"},
		{Name: "M", Threshold: 100, Color: "f7e463"},
		{Name: "L", Threshold: 300, Color: "f4a442"},
		{Name: "XL", Threshold: 500, Color: "e8491d"},
	}
}

// defaultOverflowRule is applied when the change count doesn't fall below
// any threshold in the table ("else XXL").
var defaultOverflowRule = SizeRule{Name: "XXL", Threshold: -1, Color: "b60205"}

// SizeFor computes the size label for a change count, given a possibly
// per-repo-overridden, ascending-sorted rule table. A nil or empty table
// falls back to DefaultSizeRules.
func SizeFor(additions, deletions int, rules []SizeRule) SizeRule {
	if len(rules) == 0 {
		rules = DefaultSizeRules()
	}
	sorted := append([]SizeRule(nil), rules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	total := additions + deletions
	for _, r := range sorted {
		if total < r.Threshold {
			return r
		}
	}
	return defaultOverflowRule
}

// SizeLabelName returns the "size/<name>" label text for a rule.
func SizeLabelName(r SizeRule) string {
	return PrefixSize + r.Name
}

// ValidateSizeRules filters a per-repo override table, dropping entries
// whose threshold isn't a positive integer or whose color is blank (the
// color's format is not checked), matching §4.4's "invalid entries are dropped
// with warning" behavior. It returns the surviving rules and the names
// that were dropped (for the caller to log).
func ValidateSizeRules(raw map[string]struct {
	Threshold int
	Color     string
}) (rules []SizeRule, dropped []string) {
	for name, rule := range raw {
		if rule.Threshold <= 0 || strings.TrimSpace(rule.Color) == "" {
			dropped = append(dropped, name)
			continue
		}
		rules = append(rules, SizeRule{Name: name, Threshold: rule.Threshold, Color: rule.Color})
	}
	sort.Strings(dropped)
	return rules, dropped
}

// ColorFor resolves the color a label name should have: static table, then
// dynamic prefix table, then a size/ label (looked up by the sized rule's
// own color if it's a recognized size class), falling back to a neutral
// gray for anything else (e.g. arbitrary branch or cherry-pick target
// labels a repo owner created by hand).
func ColorFor(name string, sizeRules []SizeRule) string {
	if c, ok := staticColors[name]; ok {
		return c
	}
	for prefix, color := range dynamicColors {
		if strings.HasPrefix(name, prefix) {
			return color
		}
	}
	if strings.HasPrefix(name, PrefixSize) {
		want := strings.TrimPrefix(name, PrefixSize)
		for _, r := range append(DefaultSizeRules(), sizeRules...) {
			if r.Name == want {
				return r.Color
			}
		}
		return defaultOverflowRule.Color
	}
	return "ededed"
}

// DynamicSuffix strips a known dynamic prefix from a label name, returning
// ("", false) if name doesn't start with any recognized prefix.
func DynamicSuffix(name string) (prefix, suffix string, ok bool) {
	for p := range dynamicColors {
		if strings.HasPrefix(name, p) {
			return p, strings.TrimPrefix(name, p), true
		}
	}
	return "", "", false
}

// ParseSizeLabel reports whether name is a size/<class> label and its
// class, e.g. ParseSizeLabel("size/XL") == ("XL", true).
func ParseSizeLabel(name string) (class string, ok bool) {
	if !strings.HasPrefix(name, PrefixSize) {
		return "", false
	}
	return strings.TrimPrefix(name, PrefixSize), true
}
