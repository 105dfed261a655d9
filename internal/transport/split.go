package transport

import (
	"regexp"
	"strings"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	spaceRun       = regexp.MustCompile(`\s+`)

	codeFence  = regexp.MustCompile("```[a-zA-Z]*\n?")
	inlineCode = regexp.MustCompile("`([^`]+)`")
	heading    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	boldStars  = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnder  = regexp.MustCompile(`__([^_]+)__`)
	bullet     = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+\.)[ \t]+(.+)$`)
	mdLink     = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// cleanMarkdown flattens Markdown for plain-text chat networks.
func cleanMarkdown(text string) string {
	text = codeFence.ReplaceAllString(text, "")
	text = inlineCode.ReplaceAllString(text, "'$1'")
	text = heading.ReplaceAllString(text, "*** $1 ***")
	text = boldStars.ReplaceAllString(text, "*$1*")
	text = boldUnder.ReplaceAllString(text, "*$1*")
	text = bullet.ReplaceAllString(text, "• $1")
	text = mdLink.ReplaceAllString(text, "$1 $2")
	return text
}

// splitForIRC turns text into single-line chunks of at most maxLength bytes.
// Paragraph breaks become " | ".
func splitForIRC(text string, maxLength int) []string {
	text = cleanMarkdown(text)
	text = paragraphBreak.ReplaceAllString(text, " | ")
	text = spaceRun.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLength {
			chunks = append(chunks, text)
			break
		}
		breakPoint := findBreakPoint(text, maxLength)
		chunks = append(chunks, strings.TrimSpace(text[:breakPoint]))
		text = strings.TrimSpace(text[breakPoint:])
	}
	return chunks
}

// findBreakPoint finds a good place to split a message
func findBreakPoint(text string, maxLength int) int {
	if len(text) <= maxLength {
		return len(text)
	}

	try := func(match func(i int) bool, offset int) int {
		for i := maxLength - 1; i >= maxLength-50 && i > 0; i-- {
			if match(i) {
				return i + offset
			}
		}
		return -1
	}
	followedBySpace := func(i int) bool {
		return i+1 < len(text) && text[i+1] == ' '
	}

	// Sentence end, then other punctuation, then any space.
	if bp := try(func(i int) bool { return strings.IndexByte(".!?", text[i]) >= 0 && followedBySpace(i) }, 1); bp > 0 {
		return bp
	}
	if bp := try(func(i int) bool { return strings.IndexByte(",;:", text[i]) >= 0 && followedBySpace(i) }, 1); bp > 0 {
		return bp
	}
	if bp := try(func(i int) bool { return text[i] == ' ' }, 1); bp > 0 {
		return bp
	}

	// Never cut inside a UTF-8 sequence.
	bp := maxLength
	for bp > 0 && text[bp]&0xC0 == 0x80 {
		bp--
	}
	if bp == 0 {
		return maxLength
	}
	return bp
}

// splitLines splits text into chunks of at most maxLength bytes, preferring
// line boundaries.
func splitLines(text string, maxLength int) []string {
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLength {
			chunks = append(chunks, text)
			break
		}
		cut := strings.LastIndex(text[:maxLength], "\n")
		if cut <= 0 {
			cut = findBreakPoint(text, maxLength)
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	return chunks
}
