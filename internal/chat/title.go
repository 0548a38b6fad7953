package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// titleWordLimit is how many words of the first user message become the
// conversation title.
const titleWordLimit = 6

// deriveTitle builds a conversation title from the first user message: the
// first six words, an ellipsis when truncated, and the first letter
// upper-cased.
func deriveTitle(firstMessage string) string {
	words := strings.Fields(firstMessage)
	title := strings.Join(words, " ")
	if len(words) > titleWordLimit {
		title = strings.Join(words[:titleWordLimit], " ") + "..."
	}
	if title == "" {
		return title
	}

	r, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(r)) + title[size:]
}
