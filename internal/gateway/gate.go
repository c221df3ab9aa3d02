package gateway

import "strings"

// QuestionMarker is the first-line prefix that marks a message as addressed to the bot.
const QuestionMarker = "1"

// ExtractQuestion returns the question carried by raw, or false when the message is
// not addressed to the bot. Only the first line is inspected for the marker; the marker
// itself is removed and the remaining text is trimmed.
func ExtractQuestion(raw string) (string, bool) {
	lines := strings.Split(raw, "\n")
	first := lines[0]
	if !strings.HasPrefix(strings.TrimSpace(first), QuestionMarker) {
		return "", false
	}

	index := strings.Index(first, QuestionMarker)
	lines[0] = first[:index] + first[index+len(QuestionMarker):]
	question := strings.TrimSpace(strings.Join(lines, "\n"))
	if question == "" {
		return "", false
	}
	return question, true
}
