package logics

import (
	"fmt"
	"regexp"
	"strings"

	"formshield-server/configs"
)

// Rule is a stateless matcher over a single submitted value. Implementations
// accumulate human-readable violation messages as they flag.
type Rule interface {
	IsSpam(value interface{}) bool
	Messages() []string
}

var (
	// urlPattern counts link-looking tokens, multiline and case-insensitive
	urlPattern = regexp.MustCompile(`(?im)(https?://|www\.)[^\s<>"']+`)

	// markupPattern counts markup tags
	markupPattern = regexp.MustCompile(`(?is)<\s*/?[a-z][^>]*>`)
)

// RegexRule flags a value when the adjusted match count of its pattern
// exceeds the limit. Matches hitting the exclude pattern (links to the
// site's own domain) are subtracted first.
type RegexRule struct {
	pattern *regexp.Regexp
	exclude *regexp.Regexp
	limit   int
	message string
	msgs    []string
}

// NewRegexRule creates a counting rule over the given pattern
func NewRegexRule(pattern *regexp.Regexp, limit int, message string) *RegexRule {
	return &RegexRule{pattern: pattern, limit: limit, message: message}
}

// NewURLRule counts links, not counting those referencing the site itself
func NewURLRule(cfg configs.URLRuleConfig, siteHost string) *RegexRule {
	rule := NewRegexRule(urlPattern, cfg.Limit(), cfg.Text())
	if siteHost != "" {
		rule.exclude = regexp.MustCompile(
			`(?i)(https?://|www\.)(www\.)?` + regexp.QuoteMeta(siteHost))
	}
	return rule
}

// NewMarkupRule counts markup tags
func NewMarkupRule(cfg configs.MarkupRuleConfig) *RegexRule {
	return NewRegexRule(markupPattern, cfg.Limit(), cfg.Text())
}

func (r *RegexRule) IsSpam(value interface{}) bool {
	switch v := value.(type) {
	case string:
		count := len(r.pattern.FindAllStringIndex(v, -1))
		if r.exclude != nil {
			count -= len(r.exclude.FindAllStringIndex(v, -1))
		}
		if count > r.limit {
			r.msgs = append(r.msgs, r.message)
			return true
		}
		return false
	case []string:
		for _, item := range v {
			if r.IsSpam(item) {
				return true
			}
		}
		return false
	case []interface{}:
		for _, item := range v {
			if r.IsSpam(item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (r *RegexRule) Messages() []string {
	return r.msgs
}

// WordListRule flags a value containing any listed word. Patterns are
// compiled once at construction, one per word. In greedy mode a word also
// matches inside a larger token; in non-greedy mode it must stand alone.
type WordListRule struct {
	words    []string
	patterns []*regexp.Regexp
	message  string
	msgs     []string
}

// NewWordListRule precompiles the matcher for each word
func NewWordListRule(words []string, greedy bool, message string) *WordListRule {
	rule := &WordListRule{message: message}
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}

		var pattern string
		if greedy {
			pattern = `(?i)` + regexp.QuoteMeta(word)
		} else {
			pattern = `(?i)(^|\s)` + regexp.QuoteMeta(word) + `($|\s)`
		}

		rule.words = append(rule.words, word)
		rule.patterns = append(rule.patterns, regexp.MustCompile(pattern))
	}
	return rule
}

func (r *WordListRule) IsSpam(value interface{}) bool {
	switch v := value.(type) {
	case string:
		for i, pattern := range r.patterns {
			if pattern.MatchString(v) {
				r.msgs = append(r.msgs, fmt.Sprintf("%s (%s)", r.message, r.words[i]))
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if r.IsSpam(item) {
				return true
			}
		}
		return false
	case []interface{}:
		for _, item := range v {
			if r.IsSpam(item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (r *WordListRule) Messages() []string {
	return r.msgs
}

// RuleService evaluates the configured content rules against all submitted
// field values. The rule set is assembled fresh per evaluation from current
// configuration; only the word patterns inside one rule instance are reused.
type RuleService struct{}

// NewRuleService creates a new RuleService instance
func NewRuleService() *RuleService {
	return &RuleService{}
}

// Evaluate runs every active rule over every field value. The first rule
// that flags stops further evaluation and its messages are returned.
func (s *RuleService) Evaluate(fields map[string]interface{}) (bool, []string) {
	for _, rule := range s.activeRules() {
		for _, value := range fields {
			if rule.IsSpam(value) {
				return true, rule.Messages()
			}
		}
	}
	return false, nil
}

func (s *RuleService) activeRules() []Rule {
	cfg := configs.Configs.Antispam
	var rules []Rule

	if cfg.Rules.URLRule.Enabled {
		rules = append(rules, NewURLRule(cfg.Rules.URLRule, cfg.SiteHost))
	}
	if cfg.Rules.MarkupRule.Enabled {
		rules = append(rules, NewMarkupRule(cfg.Rules.MarkupRule))
	}
	if cfg.Rules.BlacklistRule.Enabled {
		rules = append(rules, NewWordListRule(
			cfg.Rules.BlacklistRule.Words,
			cfg.Rules.BlacklistRule.Greedy,
			cfg.Rules.BlacklistRule.Text()))
	}

	return rules
}

// Global instance of RuleService
var RuleSvc = NewRuleService()
