package intelligence

import "regexp"

// Classification is the semantic type inferred for a field label
type Classification struct {
	Type         string        `json:"type"` // empty when no rule is confident enough
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	Reasons      []Reason      `json:"reasons,omitempty"`
}

// Alternative is a runner-up type
type Alternative struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Reason explains why a rule fired
type Reason struct {
	Rule       string  `json:"rule"`
	Category   string  `json:"category"` // keyword or pattern
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
}

// Rule scores labels for one semantic type. Keywords match whole words of
// the normalized label; Patterns are case-insensitive regular expressions.
// Any Exclude keyword vetoes the rule.
type Rule struct {
	Name          string
	Type          string
	Keywords      []string
	Patterns      []string
	Exclude       []string
	Weight        float64
	MinConfidence float64
	Enabled       bool

	compiled []*regexp.Regexp
}

// Config tunes a classifier
type Config struct {
	MinConfidence   float64 // below this the label stays untyped
	MaxAlternatives int
	CacheSize       int // labels remembered; zero disables caching
}

// DefaultConfig returns the standard classifier configuration
func DefaultConfig() Config {
	return Config{
		MinConfidence:   0.5,
		MaxAlternatives: 2,
		CacheSize:       512,
	}
}
