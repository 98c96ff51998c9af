package textutil

import "strings"

// Truncate cuts content to maxLen bytes, appending an ellipsis on cut.
func Truncate(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}

// TruncateRunes cuts content to at most maxRunes runes, replacing the last
// rune with the given marker when truncation happens.
func TruncateRunes(content string, maxRunes int, marker string) string {
	runes := []rune(content)
	if len(runes) <= maxRunes {
		return content
	}
	keep := maxRunes - len([]rune(marker))
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + marker
}

// ChunkSplit splits content into pieces no longer than max bytes, preferring
// to break on line boundaries so posted messages stay readable.
func ChunkSplit(content string, max int) []string {
	if max <= 0 || len(content) <= max {
		return []string{content}
	}

	var chunks []string
	for len(content) > max {
		cut := strings.LastIndexByte(content[:max], '\n')
		if cut <= 0 {
			cut = max
		}
		chunks = append(chunks, strings.TrimRight(content[:cut], "\n"))
		content = strings.TrimLeft(content[cut:], "\n")
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}
