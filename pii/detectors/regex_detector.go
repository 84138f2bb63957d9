package pii

import (
	"context"
	"regexp"
	"sort"
)

const regexModelName = "regex"

// RegexDetector implements Guard using regular expressions. It is the fallback when no guard
// backend is configured.
type RegexDetector struct {
	patterns map[string]*regexp.Regexp
}

// NewRegexDetector compiles patterns, keyed by model label. It panics on an invalid
// expression.
func NewRegexDetector(patterns map[string]string) *RegexDetector {
	regexMap := make(map[string]*regexp.Regexp, len(patterns))
	for label, pattern := range patterns {
		regexMap[label] = regexp.MustCompile(pattern)
	}

	return &RegexDetector{
		patterns: regexMap,
	}
}

// NewDefaultRegexDetector uses PIIPatterns.
func NewDefaultRegexDetector() *RegexDetector {
	return NewRegexDetector(PIIPatterns)
}

// Detect returns every pattern match ordered by start offset.
func (r *RegexDetector) Detect(ctx context.Context, text string) (GuardResult, error) {
	if err := ctx.Err(); err != nil {
		return GuardResult{}, err
	}
	res := newGuardResult(regexModelName, nil)

	for label, pattern := range r.patterns {
		for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if len(loc) >= 4 && loc[2] >= 0 {
				start, end = loc[2], loc[3]
			}
			res.Matches = append(res.Matches, Match{
				Type:       modelLabelTypes.lookup(label),
				Value:      text[start:end],
				Start:      start,
				End:        end,
				Resolved:   true,
				Confidence: 1.0,
			})
		}
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		if res.Matches[i].Start != res.Matches[j].Start {
			return res.Matches[i].Start < res.Matches[j].Start
		}
		if res.Matches[i].End != res.Matches[j].End {
			return res.Matches[i].End < res.Matches[j].End
		}
		return res.Matches[i].Type < res.Matches[j].Type
	})
	return res, nil
}
