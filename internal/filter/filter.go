// Package filter implements the topic relevance engine.
package filter

import (
	"sort"
	"strings"

	"cryptopost_bot/internal/config"
)

// Engine matches raw message text against configured keyword groups.
// A message is relevant when any group contributes at least one hit and no
// stop keyword matches. Stop keywords always win.
type Engine struct {
	groups map[string][]string
	stops  []string
	policy config.EmptyGroupsPolicy
}

// New creates an Engine. All keywords are folded to lower case once here so
// matching stays allocation-free per call.
func New(groups map[string][]string, stops []string, policy config.EmptyGroupsPolicy) *Engine {
	lowered := make(map[string][]string, len(groups))
	for name, terms := range groups {
		var keep []string
		for _, t := range terms {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				keep = append(keep, t)
			}
		}
		if len(keep) > 0 {
			lowered[name] = keep
		}
	}

	var stopList []string
	for _, s := range stops {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			stopList = append(stopList, s)
		}
	}

	return &Engine{groups: lowered, stops: stopList, policy: policy}
}

// IsRelevant reports whether text matches the taxonomy.
// Empty or whitespace-only text is never relevant.
func (e *Engine) IsRelevant(text string) bool {
	relevant, _ := e.Match(text)
	return relevant
}

// Match is IsRelevant plus the sorted set of keywords that hit, for
// diagnostics and NewsItem.MatchedKeywords.
func (e *Engine) Match(text string) (bool, []string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}
	lower := strings.ToLower(text)

	for _, stop := range e.stops {
		if strings.Contains(lower, stop) {
			return false, nil
		}
	}

	if len(e.groups) == 0 {
		return e.policy == config.PolicyAcceptAll, nil
	}

	seen := map[string]struct{}{}
	for _, terms := range e.groups {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				seen[term] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return false, nil
	}

	matched := make([]string, 0, len(seen))
	for term := range seen {
		matched = append(matched, term)
	}
	sort.Strings(matched)
	return true, matched
}
