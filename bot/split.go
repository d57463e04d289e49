package bot

import "strings"

// MessageLimit is the chunk size for outgoing messages, kept under
// Telegram's 4096-character cap with headroom for formatting.
const MessageLimit = 4000

// SplitMessage breaks text into chunks of at most limit runes, preferring
// line boundaries. A single line longer than the limit is split mid-line.
func SplitMessage(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, line := range splitKeepEnds(text) {
		runes := []rune(line)
		if len(runes) > limit {
			flush()
			for len(runes) > limit {
				chunks = append(chunks, string(runes[:limit]))
				runes = runes[limit:]
			}
			current.WriteString(string(runes))
			currentLen = len(runes)
			continue
		}
		if currentLen+len(runes) > limit {
			flush()
		}
		current.WriteString(line)
		currentLen += len(runes)
	}
	flush()
	return chunks
}

// splitKeepEnds splits on newlines, keeping each newline attached to its
// line.
func splitKeepEnds(text string) []string {
	var lines []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			if text != "" {
				lines = append(lines, text)
			}
			return lines
		}
		lines = append(lines, text[:i+1])
		text = text[i+1:]
	}
}
