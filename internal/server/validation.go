package server

import (
	"fmt"
	"strings"
)

const (
	maxNameLength    = 20
	maxKeywordLength = 60
	maxAnswerLength  = 60
	maxHintLength    = 140
	maxKeywords      = 10
)

func validateName(name string) (string, error) {
	return validateText("name", name, maxNameLength)
}

func validateAnswer(text string) (string, error) {
	return validateText("answer", text, maxAnswerLength)
}

func validateHint(text string) (string, error) {
	return validateText("hint", text, maxHintLength)
}

// validateKeywords trims every entry and drops empties, preserving order.
// Duplicates are kept; the claims map treats them as one shared slot.
func validateKeywords(keywords []string) ([]string, error) {
	valid := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		trimmed := normalizeText(keyword)
		if trimmed == "" {
			continue
		}
		if len(trimmed) > maxKeywordLength {
			return nil, fmt.Errorf("keyword must be %d characters or fewer", maxKeywordLength)
		}
		valid = append(valid, trimmed)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("at least one keyword is required")
	}
	if len(valid) > maxKeywords {
		return nil, fmt.Errorf("at most %d keywords are allowed", maxKeywords)
	}
	return valid, nil
}

func validateText(label, text string, maxLen int) (string, error) {
	trimmed := normalizeText(text)
	if trimmed == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	if len(trimmed) > maxLen {
		return "", fmt.Errorf("%s must be %d characters or fewer", label, maxLen)
	}
	return trimmed, nil
}

func normalizeText(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	return strings.Join(fields, " ")
}
