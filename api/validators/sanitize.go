package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims input and caps it at maxLen runes. Invalid UTF-8 is
// replaced so the result is always safe to store in a text column.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(strings.ToValidUTF8(input, "�"))
	if maxLen <= 0 || utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}
	runes := 0
	for i := range trimmed {
		if runes == maxLen {
			return strings.TrimSpace(trimmed[:i])
		}
		runes++
	}
	return trimmed
}
