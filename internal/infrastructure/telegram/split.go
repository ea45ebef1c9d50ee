package telegram

import (
	"strings"
	"unicode/utf8"
)

// Telegram counts the message limit in characters, not bytes.
const maxMessageLength = 4096

// splitText cuts text into chunks of at most limit runes, preferring to break after a
// blank line, then after a newline.
func splitText(text string, limit int) []string {
	if limit <= 0 {
		limit = maxMessageLength
	}

	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		end := byteOffsetOfRune(text, limit)
		cut := end
		if i := strings.LastIndex(text[:end], "\n\n"); i > 0 {
			cut = i + 2
		} else if i := strings.LastIndex(text[:end], "\n"); i > 0 {
			cut = i + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" || len(chunks) == 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

func byteOffsetOfRune(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}
