// Package intent implements the Intent Extractor collaborator: a
// regex-based component/style/brand detector over transcript text,
// grounded 1:1 on original_source's regex_rules.py (the original itself
// uses only a regex engine, so stdlib regexp is not a shortfall here).
package intent

import (
	"regexp"
	"strings"
)

var (
	componentPattern = regexp.MustCompile(`(?i)\b(button|dropdown|modal|tab|form)\b`)
	stylePattern     = regexp.MustCompile(`(?i)\b(hover|pill|rounded|outline)\b`)
	brandPattern     = regexp.MustCompile(`(?i)\b(stripe|github|google)\b`)
)

// defaultConfidence mirrors the original's IntentMsg.confidence default —
// the regex detector never produces a graded score, only a hit/no-hit.
const defaultConfidence = 1.0

// Detection is the component/styles/brand_refs triple produced by Detect,
// or the zero value with Found=false when no component pattern matched.
type Detection struct {
	Found      bool
	Component  string
	Styles     []string
	BrandRefs  []string
	Confidence float64
}

// Detect scans text for a component keyword; if found, extracts any
// style keywords (lowercased) and brand keywords (title-cased) from the
// same text. Returns Found=false if no component keyword is present.
func Detect(text string) Detection {
	componentMatch := componentPattern.FindStringSubmatch(text)
	if componentMatch == nil {
		return Detection{}
	}

	var styles []string
	for _, m := range stylePattern.FindAllStringSubmatch(text, -1) {
		styles = append(styles, strings.ToLower(m[1]))
	}

	var brandRefs []string
	for _, m := range brandPattern.FindAllStringSubmatch(text, -1) {
		brandRefs = append(brandRefs, titleCase(m[1]))
	}

	return Detection{
		Found:      true,
		Component:  strings.ToLower(componentMatch[1]),
		Styles:     styles,
		BrandRefs:  brandRefs,
		Confidence: defaultConfidence,
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
