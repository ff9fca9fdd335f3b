package rules

import (
	"sort"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"github.com/orbitwire/newsclean/internal/domain"
)

// compiledRule pairs a rule with its cached matcher.
type compiledRule struct {
	rule    domain.Rule
	matcher Matcher
}

// Snapshot is an immutable view of the rule set at one version. Literal
// patterns are folded into a single Aho-Corasick automaton so one pass
// over the text covers all of them; regex rules are evaluated
// individually. Snapshots are built once per mutation and shared by all
// readers, so evaluation never blocks on rule writes.
type Snapshot struct {
	version int64
	all     []domain.Rule // every rule, enabled or not, ordered by id

	enabled      []compiledRule
	literals     []string // automaton input, deduplicated lowercased literals
	literalRules [][]int  // literal index -> indexes into enabled
	regexRules   []int    // indexes into enabled
	automaton    *ahocorasick.Matcher
}

func buildSnapshot(version int64, all []domain.Rule) *Snapshot {
	snap := &Snapshot{version: version, all: all}

	literalIndex := make(map[string]int)
	for _, r := range all {
		if !r.Enabled {
			continue
		}
		// Stored rules were validated on the way in, so Compile cannot
		// fail here; a rule that somehow does not compile is skipped.
		m, err := Compile(r.Pattern)
		if err != nil {
			continue
		}
		idx := len(snap.enabled)
		snap.enabled = append(snap.enabled, compiledRule{rule: r, matcher: m})

		if m.IsLiteral() {
			li, ok := literalIndex[m.Literal()]
			if !ok {
				li = len(snap.literals)
				literalIndex[m.Literal()] = li
				snap.literals = append(snap.literals, m.Literal())
				snap.literalRules = append(snap.literalRules, nil)
			}
			snap.literalRules[li] = append(snap.literalRules[li], idx)
		} else {
			snap.regexRules = append(snap.regexRules, idx)
		}
	}

	if len(snap.literals) > 0 {
		snap.automaton = ahocorasick.NewStringMatcher(snap.literals)
	}

	return snap
}

// Version returns the rule-set version this snapshot was built from.
func (s *Snapshot) Version() int64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Rules returns every rule in the snapshot, enabled or not, ordered by id.
func (s *Snapshot) Rules() []domain.Rule {
	if s == nil {
		return nil
	}
	out := make([]domain.Rule, len(s.all))
	copy(out, s.all)
	return out
}

// EnabledCount returns the number of rules that participate in matching.
func (s *Snapshot) EnabledCount() int {
	if s == nil {
		return 0
	}
	return len(s.enabled)
}

// Evaluate tests the article text against every enabled rule in the
// snapshot and returns the sorted set of matched tags. All rules are
// evaluated independently; an article may collect multiple tags, and the
// same tag from several rules counts once. Pure: no side effects, safe
// for parallel invocation across articles.
func (s *Snapshot) Evaluate(text string) []string {
	if s == nil || len(s.enabled) == 0 {
		return nil
	}

	lower := strings.ToLower(text)
	tags := make(map[string]struct{})

	if s.automaton != nil {
		for _, hit := range s.automaton.Match([]byte(lower)) {
			if hit >= len(s.literalRules) {
				continue
			}
			for _, ri := range s.literalRules[hit] {
				tags[s.enabled[ri].rule.Tag] = struct{}{}
			}
		}
	}

	for _, ri := range s.regexRules {
		if s.enabled[ri].matcher.Match(lower) {
			tags[s.enabled[ri].rule.Tag] = struct{}{}
		}
	}

	if len(tags) == 0 {
		return nil
	}

	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
