package server

import (
	"strings"

	"golang.org/x/text/cases"
)

var answerFolder = cases.Fold()

// normalizeAnswer collapses whitespace and case-folds the text. Matching is
// deliberately case/whitespace-only; no accent stripping, no fuzzy distance.
func normalizeAnswer(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	return answerFolder.String(strings.Join(fields, " "))
}

// matchKeyword returns the first keyword (in submission order) equal to the
// answer after both sides are normalized.
func matchKeyword(keywords []string, answer string) (string, bool) {
	normalized := normalizeAnswer(answer)
	if normalized == "" {
		return "", false
	}
	for _, keyword := range keywords {
		if normalizeAnswer(keyword) == normalized {
			return keyword, true
		}
	}
	return "", false
}
