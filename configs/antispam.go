package configs

import "time"

// AntispamConfig is the settings surface for the abuse detection engine.
// Threshold accessors substitute safe defaults when a value is missing or
// invalid, so a broken config never disables the documented behavior.
type AntispamConfig struct {
	// SiteHost is the host of the site the protected forms live on. Links
	// pointing at it are not counted by the URL rule.
	SiteHost string `yaml:"site_host"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Rules     RulesConfig     `yaml:"rules"`
}

type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	MinIntervalSec int  `yaml:"min_interval_sec"`
	RetryPeriodSec int  `yaml:"retry_period_sec"`
	MaxRetries     int  `yaml:"max_retries"`
	BlockTimeSec   int  `yaml:"block_time_sec"`
}

func (c RateLimitConfig) MinInterval() time.Duration {
	if c.MinIntervalSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.MinIntervalSec) * time.Second
}

func (c RateLimitConfig) RetryPeriod() time.Duration {
	if c.RetryPeriodSec <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.RetryPeriodSec) * time.Second
}

func (c RateLimitConfig) RetryLimit() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

func (c RateLimitConfig) BlockTime() time.Duration {
	if c.BlockTimeSec <= 0 {
		return 3600 * time.Second
	}
	return time.Duration(c.BlockTimeSec) * time.Second
}

type ChallengeConfig struct {
	Enabled bool `yaml:"enabled"`
	// Kind selects the challenge variant: "silent", "arithmetic" or "image"
	Kind      string `yaml:"kind"`
	FieldName string `yaml:"field_name"`
	// CodeLength is the number of characters in an image challenge code
	CodeLength int `yaml:"code_length"`
	// Charset overrides the characters image codes are drawn from
	Charset string `yaml:"charset"`
	// GenerateLimitPerHour caps challenge issuance per client IP
	GenerateLimitPerHour int `yaml:"generate_limit_per_hour"`
}

const (
	ChallengeKindSilent     = "silent"
	ChallengeKindArithmetic = "arithmetic"
	ChallengeKindImage      = "image"
)

// Visually ambiguous characters (i, l, o, 0, 1) are excluded
const defaultCharset = "abcdefghjkmnpqrstuvwxyz23456789"

func (c ChallengeConfig) ActiveKind() string {
	switch c.Kind {
	case ChallengeKindSilent, ChallengeKindArithmetic, ChallengeKindImage:
		return c.Kind
	default:
		return ChallengeKindSilent
	}
}

func (c ChallengeConfig) Field() string {
	if c.FieldName == "" {
		return "formshield_answer"
	}
	return c.FieldName
}

func (c ChallengeConfig) Length() int {
	if c.CodeLength <= 0 {
		return 6
	}
	return c.CodeLength
}

func (c ChallengeConfig) Chars() string {
	if c.Charset == "" {
		return defaultCharset
	}
	return c.Charset
}

func (c ChallengeConfig) GenerateLimit() int {
	if c.GenerateLimitPerHour <= 0 {
		return 10
	}
	return c.GenerateLimitPerHour
}

type RulesConfig struct {
	URLRule       URLRuleConfig       `yaml:"url_rule"`
	MarkupRule    MarkupRuleConfig    `yaml:"markup_rule"`
	BlacklistRule BlacklistRuleConfig `yaml:"blacklist_rule"`
}

func (c RulesConfig) AnyEnabled() bool {
	return c.URLRule.Enabled || c.MarkupRule.Enabled || c.BlacklistRule.Enabled
}

type URLRuleConfig struct {
	Enabled bool   `yaml:"enabled"`
	MaxURLs int    `yaml:"max_urls"`
	Message string `yaml:"message"`
}

func (c URLRuleConfig) Limit() int {
	if c.MaxURLs <= 0 {
		return 3
	}
	return c.MaxURLs
}

func (c URLRuleConfig) Text() string {
	if c.Message == "" {
		return "Too many links in the submitted text."
	}
	return c.Message
}

type MarkupRuleConfig struct {
	Enabled bool   `yaml:"enabled"`
	MaxTags int    `yaml:"max_tags"`
	Message string `yaml:"message"`
}

func (c MarkupRuleConfig) Limit() int {
	if c.MaxTags <= 0 {
		return 2
	}
	return c.MaxTags
}

func (c MarkupRuleConfig) Text() string {
	if c.Message == "" {
		return "Markup is not allowed in the submitted text."
	}
	return c.Message
}

type BlacklistRuleConfig struct {
	Enabled bool     `yaml:"enabled"`
	Words   []string `yaml:"words"`
	Greedy  bool     `yaml:"greedy"`
	Message string   `yaml:"message"`
}

func (c BlacklistRuleConfig) Text() string {
	if c.Message == "" {
		return "The submitted text contains a blocked word."
	}
	return c.Message
}
