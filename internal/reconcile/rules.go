package reconcile

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/voyagen/epgsync/internal/models"
)

// RuleError reports a mapping that could not be used in a pass.
type RuleError struct {
	MappingID int64
	Pattern   string
	Err       error
}

func (e RuleError) Error() string {
	return fmt.Sprintf("mapping %q: %v", e.Pattern, e.Err)
}

func (e RuleError) Unwrap() error { return e.Err }

type rule struct {
	mapping models.PatternMapping
	needle  string // case-folded pattern for substring rules
	re      *regexp.Regexp
}

func compileRule(m models.PatternMapping) (rule, error) {
	r := rule{mapping: m}
	if m.Regex {
		re, err := regexp.Compile("(?i)" + m.Pattern)
		if err != nil {
			return rule{}, RuleError{MappingID: m.ID, Pattern: m.Record().SearchPattern, Err: err}
		}
		r.re = re
		return r, nil
	}
	r.needle = foldCase(strings.TrimSpace(m.Pattern))
	if r.needle == "" {
		return rule{}, RuleError{MappingID: m.ID, Pattern: m.Record().SearchPattern, Err: errors.New("empty pattern")}
	}
	return r, nil
}

// compileRules splits mappings into exclusion and inclusion rules in a
// stable order. Rules that fail to compile are returned as errors and left out.
func compileRules(mappings []models.PatternMapping) (excl, incl []rule, errs []RuleError) {
	sorted := append([]models.PatternMapping(nil), mappings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if ki, kj := sorted[i].Key(), sorted[j].Key(); ki != kj {
			return ki < kj
		}
		return sorted[i].ID < sorted[j].ID
	})
	for _, m := range sorted {
		r, err := compileRule(m)
		if err != nil {
			var re RuleError
			if !errors.As(err, &re) {
				re = RuleError{MappingID: m.ID, Pattern: m.Record().SearchPattern, Err: err}
			}
			errs = append(errs, re)
			continue
		}
		if m.IsExclusion() {
			excl = append(excl, r)
		} else {
			incl = append(incl, r)
		}
	}
	return excl, incl, errs
}

// matches reports whether the rule applies to a channel name. name is the
// raw name and folded its case-folded form.
func (r rule) matches(name, folded string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	if r.re != nil {
		return r.re.MatchString(name)
	}
	return strings.Contains(folded, r.needle)
}

// specificity ranks inclusion rules that match the same channel. Exact and
// leading matches, whole-word matches and numbered patterns ("dazn 2")
// outrank generic substrings. Regex rules are scored on the text they match
// in the raw name, the same input matches uses.
func (r rule) specificity(name, folded string) int {
	pattern := r.needle
	if r.re != nil {
		pattern = foldCase(r.re.FindString(name))
	}
	score := len(pattern) * 10
	if pattern == "" {
		return score
	}
	if pattern == folded {
		score += 10000
	}
	if strings.HasPrefix(folded, pattern) {
		score += 3000
	}
	patternWords := strings.Fields(pattern)
	nameWords := strings.Fields(folded)
	present := make(map[string]struct{}, len(nameWords))
	for _, w := range nameWords {
		present[w] = struct{}{}
	}
	whole := 0
	for _, w := range patternWords {
		if _, ok := present[w]; ok {
			whole++
		}
	}
	if len(patternWords) > 0 && whole == len(patternWords) {
		score += 1000 * whole
		if strings.Contains(strings.Join(nameWords, " "), strings.Join(patternWords, " ")) {
			score += 500
		}
	}
	if strings.IndexFunc(pattern, unicode.IsDigit) >= 0 {
		score += 1500
	}
	if len(patternWords) > 0 && len(nameWords) > 0 && patternWords[0] == nameWords[0] {
		score += 1800
	}
	return score
}

// bestInclusion returns the most specific inclusion rule matching the name.
func bestInclusion(incl []rule, name, folded string) (rule, bool) {
	var (
		best      rule
		bestScore = -1
		found     bool
	)
	for _, r := range incl {
		if !r.matches(name, folded) {
			continue
		}
		s := r.specificity(name, folded)
		if !found || s > bestScore || (s == bestScore && preferRule(r, best)) {
			best, bestScore, found = r, s, true
		}
	}
	return best, found
}

// preferRule breaks specificity ties: longer pattern, then lexical order.
func preferRule(a, b rule) bool {
	pa, pb := a.mapping.Pattern, b.mapping.Pattern
	if len(pa) != len(pb) {
		return len(pa) > len(pb)
	}
	if ka, kb := a.mapping.Key(), b.mapping.Key(); ka != kb {
		return ka < kb
	}
	return a.mapping.ID < b.mapping.ID
}

func anyMatch(rules []rule, name, folded string) (rule, bool) {
	for _, r := range rules {
		if r.matches(name, folded) {
			return r, true
		}
	}
	return rule{}, false
}

// CheckMapping reports whether m can be compiled into a rule.
func CheckMapping(m models.PatternMapping) error {
	_, err := compileRule(m)
	return err
}
