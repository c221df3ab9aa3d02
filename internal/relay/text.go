package relay

import (
	"unicode/utf8"
)

// MaxPayloadEcho bounds the raw deployment payload echoed into a message.
const MaxPayloadEcho = 1500

const truncationMarker = "…"

// truncateBytes cuts value to at most limit bytes on a rune boundary and
// appends the truncation marker when anything was dropped.
func truncateBytes(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + truncationMarker
}

// capMessage keeps text within limit characters, marker included.
func capMessage(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-1]) + truncationMarker
}
