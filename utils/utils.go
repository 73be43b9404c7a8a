package utils

import (
	"math"
	"strings"
)

// Round2 rounds seconds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// JoinTranscript trims every text and joins the non-empty ones with a
// single space.
func JoinTranscript(texts []string) string {
	var builder strings.Builder
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(text)
	}
	return builder.String()
}

// Truncate shortens s to at most n runes for log fields.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
