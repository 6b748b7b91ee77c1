// Package intelligence infers what kind of answer a form field expects from
// its label, so that detectors without semantic hints still produce typed
// fields and answers can be tidied.
package intelligence

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/a3tai/mcp-pdf-formfill/internal/cache"
)

// Keyword and pattern evidence scores
const (
	keywordBase  = 0.7
	keywordExtra = 0.2
	patternScore = 0.8
	bothBonus    = 0.1
)

// LabelClassifier performs rule-based classification of field labels. It is
// safe for concurrent use.
type LabelClassifier struct {
	config Config
	rules  []Rule
	cache  *cache.LRU[Classification]
}

// NewLabelClassifier creates a classifier with the default rules
func NewLabelClassifier(config Config) (*LabelClassifier, error) {
	return NewLabelClassifierWithRules(config, defaultRules())
}

// NewLabelClassifierWithRules creates a classifier with custom rules
func NewLabelClassifierWithRules(config Config, rules []Rule) (*LabelClassifier, error) {
	compiled := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		rule.compiled = make([]*regexp.Regexp, 0, len(rule.Patterns))
		for _, pattern := range rule.Patterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s: invalid pattern %q: %w", rule.Name, pattern, err)
			}
			rule.compiled = append(rule.compiled, re)
		}
		compiled = append(compiled, rule)
	}

	c := &LabelClassifier{config: config, rules: compiled}
	if config.CacheSize > 0 {
		c.cache = cache.New[Classification](config.CacheSize)
	}
	return c, nil
}

var defaultClassifier, _ = NewLabelClassifier(DefaultConfig())

// InferType returns the semantic type of label using the default rules, or
// "" when no rule is confident
func InferType(label string) string {
	return defaultClassifier.Classify(label).Type
}

// Classify scores label against every rule
func (lc *LabelClassifier) Classify(label string) Classification {
	normalized := normalize(label)
	if normalized == "" {
		return Classification{}
	}
	lower := strings.ToLower(strings.TrimSpace(label))
	if lc.cache != nil {
		if cached, ok := lc.cache.Get(lower); ok {
			return cached
		}
	}

	result := lc.classify(lower, normalized)
	if lc.cache != nil {
		lc.cache.Put(lower, result)
	}
	return result
}

func (lc *LabelClassifier) classify(lower, normalized string) Classification {
	scores := make(map[string]float64)
	reasons := make(map[string][]Reason)
	var order []string

	for _, rule := range lc.rules {
		confidence, ruleReasons := evaluateRule(rule, lower, normalized)
		if confidence < rule.MinConfidence {
			continue
		}
		score := confidence * rule.Weight
		if _, seen := scores[rule.Type]; !seen {
			order = append(order, rule.Type)
		}
		if score > scores[rule.Type] {
			scores[rule.Type] = score
		}
		reasons[rule.Type] = append(reasons[rule.Type], ruleReasons...)
	}

	// Ties go to the rule listed first.
	best, bestScore := "", 0.0
	for _, t := range order {
		if scores[t] > bestScore {
			best, bestScore = t, scores[t]
		}
	}

	result := Classification{Confidence: bestScore}
	if bestScore >= lc.config.MinConfidence {
		result.Type = best
		result.Reasons = reasons[best]
	}
	result.Alternatives = lc.alternatives(scores, result.Type)
	return result
}

// evaluateRule returns the rule's confidence for a label
func evaluateRule(rule Rule, lower, normalized string) (float64, []Reason) {
	padded := " " + normalized + " "
	for _, word := range rule.Exclude {
		if strings.Contains(padded, " "+normalize(word)+" ") {
			return 0, nil
		}
	}

	var reasons []Reason
	hits := 0
	for _, keyword := range rule.Keywords {
		if strings.Contains(padded, " "+normalize(keyword)+" ") {
			hits++
			reasons = append(reasons, Reason{
				Rule:     rule.Name,
				Category: "keyword",
				Evidence: fmt.Sprintf("label contains %q", keyword),
			})
		}
	}
	keywordConfidence := 0.0
	if hits > 0 {
		keywordConfidence = keywordBase + keywordExtra*float64(hits-1)
	}

	patternConfidence := 0.0
	for _, re := range rule.compiled {
		if m := re.FindString(lower); m != "" {
			patternConfidence = patternScore
			reasons = append(reasons, Reason{
				Rule:     rule.Name,
				Category: "pattern",
				Evidence: fmt.Sprintf("label matches %q", m),
			})
		}
	}

	confidence := max(keywordConfidence, patternConfidence)
	if keywordConfidence > 0 && patternConfidence > 0 {
		confidence += bothBonus
	}
	confidence = min(confidence, 1.0)
	for i := range reasons {
		reasons[i].Confidence = confidence
	}
	return confidence, reasons
}

func (lc *LabelClassifier) alternatives(scores map[string]float64, primary string) []Alternative {
	var alts []Alternative
	for t, score := range scores {
		if t != primary && score >= lc.config.MinConfidence*0.5 {
			alts = append(alts, Alternative{Type: t, Confidence: score})
		}
	}
	sort.Slice(alts, func(i, j int) bool {
		if alts[i].Confidence != alts[j].Confidence {
			return alts[i].Confidence > alts[j].Confidence
		}
		return alts[i].Type < alts[j].Type
	})
	if len(alts) > lc.config.MaxAlternatives {
		alts = alts[:lc.config.MaxAlternatives]
	}
	return alts
}

// normalize lowercases s and reduces it to single-spaced letters and digits
func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}
