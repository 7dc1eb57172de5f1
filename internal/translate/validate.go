package translate

import (
	"strings"
	"unicode"
)

// Severity grades a quality finding on one translated item.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// Length-ratio guard rails: a translation shorter than a tenth or longer
// than five times the source is suspicious for any language pair.
const (
	minLengthRatio = 0.1
	maxLengthRatio = 5.0
)

// criticalRatioThreshold is the fraction of critical items at which a batch
// fails validation.
const criticalRatioThreshold = 0.10

// Issue is one quality finding against a translated item.
type Issue struct {
	Index    int
	Severity Severity
	Reason   string
}

// Report aggregates the findings for one translated batch.
type Report struct {
	Total    int
	Issues   []Issue
	Critical int
}

// Pass reports whether the batch meets the quality bar: critical findings
// on fewer than 10% of items.
func (r Report) Pass() bool {
	if r.Total == 0 {
		return true
	}
	return float64(r.Critical)/float64(r.Total) < criticalRatioThreshold
}

// ValidateBatch grades each translation against its source. srcs and tgts
// must be the same length.
func ValidateBatch(srcs, tgts []string, srcLang, tgtLang string) Report {
	rep := Report{Total: len(srcs)}
	for i := range srcs {
		for _, issue := range validateItem(i, srcs[i], tgts[i], srcLang, tgtLang) {
			rep.Issues = append(rep.Issues, issue)
			if issue.Severity == SeverityCritical {
				rep.Critical++
			}
		}
	}
	return rep
}

func validateItem(idx int, src, tgt, srcLang, tgtLang string) []Issue {
	var issues []Issue

	if strings.TrimSpace(tgt) == "" {
		return append(issues, Issue{Index: idx, Severity: SeverityCritical, Reason: "empty translation"})
	}

	srcLen := len([]rune(src))
	tgtLen := len([]rune(tgt))
	if srcLen > 0 {
		ratio := float64(tgtLen) / float64(srcLen)
		if ratio < minLengthRatio {
			issues = append(issues, Issue{Index: idx, Severity: SeverityWarning, Reason: "translation suspiciously short"})
		} else if ratio > maxLengthRatio {
			issues = append(issues, Issue{Index: idx, Severity: SeverityWarning, Reason: "translation suspiciously long"})
		}
	}

	if srcLang == "ja" && tgtLang == "en" && containsJapanese(tgt) {
		issues = append(issues, Issue{Index: idx, Severity: SeverityWarning, Reason: "residual Japanese characters in English output"})
	}

	if onlyPunctuation(tgt) {
		issues = append(issues, Issue{Index: idx, Severity: SeverityWarning, Reason: "translation is only whitespace or punctuation"})
	}

	if tgt == src {
		// May be intentional for proper nouns or sound effects.
		issues = append(issues, Issue{Index: idx, Severity: SeverityInfo, Reason: "translation identical to source"})
	}

	return issues
}

// containsJapanese reports whether s holds hiragana, katakana, or CJK
// ideograph codepoints.
func containsJapanese(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) {
			return true
		}
	}
	return false
}

// onlyPunctuation reports whether s holds no letters or digits.
func onlyPunctuation(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
