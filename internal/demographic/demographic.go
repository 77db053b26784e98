// Package demographic implements the Mesh's Demographic Classifier
// collaborator as a fixed keyword-lookup table — a full ML classifier
// is an explicit Non-goal, but the keyword-tagging boundary itself is
// supplemented from the original, grounded on
// original_source/.../demographic_classifier/service.py's classify.
package demographic

import "strings"

var keywords = map[string][]string{
	"Gen Z":        {"tiktok", "snapchat"},
	"Frontend Dev": {"javascript", "react"},
	"Designer":     {"figma", "adobe"},
}

// Classify tags free text against the fixed keyword table, falling
// back to "General" when nothing matches.
func Classify(text string) []string {
	lower := strings.ToLower(text)
	var tags []string
	for tag, words := range keywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				tags = append(tags, tag)
				break
			}
		}
	}
	if len(tags) == 0 {
		return []string{"General"}
	}
	return tags
}
