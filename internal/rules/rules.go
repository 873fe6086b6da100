// Package rules classifies SMS content against the configured predicates.
package rules

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/Fullex26/smsrelay/internal/config"
	"github.com/Fullex26/smsrelay/internal/notifiers"
	"github.com/Fullex26/smsrelay/pkg/models"
)

// Rule is a compiled named predicate
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Sinks   []string
}

// Matcher evaluates an ordered list of rules
type Matcher struct {
	rules  []Rule
	notify *notifiers.Manager
}

// New compiles the configured rules. An invalid pattern is a config error
// and never surfaces at match time.
func New(cfg []config.RuleConfig, notify *notifiers.Manager) (*Matcher, error) {
	m := &Matcher{notify: notify}
	for _, rc := range cfg {
		re, err := config.CompilePattern(rc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling rule %q: %w", rc.Name, err)
		}
		m.rules = append(m.rules, Rule{Name: rc.Name, Pattern: re, Sinks: rc.Sinks})
	}
	return m, nil
}

// Rules returns the compiled rules in evaluation order
func (m *Matcher) Rules() []Rule {
	return m.rules
}

// Match reports whether re matches anywhere in content and returns the
// first matched substring.
func Match(re *regexp.Regexp, content string) (string, bool) {
	loc := re.FindStringIndex(content)
	if loc == nil {
		return "", false
	}
	return content[loc[0]:loc[1]], true
}

// Classify runs every rule against content. Each match is reported as a
// success notification naming its keyword; no match at all is reported
// once at info.
func (m *Matcher) Classify(content string) models.Classification {
	var c models.Classification
	for _, r := range m.rules {
		keyword, ok := Match(r.Pattern, content)
		slog.Debug("rule evaluated", "rule", r.Name, "pattern", r.Pattern.String(), "matched", ok)

		res := models.MatchResult{Rule: r.Name, Matched: ok, Sinks: r.Sinks}
		if ok {
			res.Keyword = keyword
			m.notify.Notify(models.SeveritySuccess, "Rule matched",
				fmt.Sprintf("Keyword %q matched rule %s, forwarding to %v", keyword, r.Name, r.Sinks))
		}
		c.Results = append(c.Results, res)
	}

	if !c.Matched() {
		m.notify.Notify(models.SeverityInfo, "No rule matched",
			"SMS content matched no rule, forwarding to primary only")
	}
	return c
}
