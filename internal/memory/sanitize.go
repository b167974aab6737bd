package memory

import (
	"regexp"
	"strings"
	"unicode"
)

var chunkPattern = regexp.MustCompile(`(?s).{1,500}(\s|$)`)

// sanitizeContent normalizes text before storage. Control characters become
// spaces and runs of whitespace collapse to one, so equal facts hash equal
// regardless of incidental formatting.
func sanitizeContent(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := false
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// chunkContent splits text into fragments of at most ChunkSize characters,
// breaking on whitespace where possible. Fragments shorter than
// MinContentLength are dropped.
func chunkContent(s string) []string {
	matches := chunkPattern.FindAllString(s, -1)

	var chunks []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if len(m) >= MinContentLength {
			chunks = append(chunks, m)
		}
	}
	return chunks
}
