package retrieval

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the soft upper bound, in runes, of a paragraph chunk.
const DefaultChunkSize = 1200

// Split breaks text into chunks of whole paragraphs no longer than size runes.
// A single paragraph longer than size is cut on word boundaries.
func Split(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if utf8.RuneCountInString(paragraph) > size {
			flush()
			chunks = append(chunks, splitWords(paragraph, size)...)
			continue
		}

		if current.Len() > 0 && utf8.RuneCountInString(current.String())+2+utf8.RuneCountInString(paragraph) > size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	flush()

	return chunks
}

func splitWords(paragraph string, size int) []string {
	var (
		chunks []string
		line   []string
		length int
	)
	for _, word := range strings.Fields(paragraph) {
		n := utf8.RuneCountInString(word)
		if length > 0 && length+1+n > size {
			chunks = append(chunks, strings.Join(line, " "))
			line, length = nil, 0
		}
		if length > 0 {
			length++
		}
		line = append(line, word)
		length += n
	}
	if len(line) > 0 {
		chunks = append(chunks, strings.Join(line, " "))
	}
	return chunks
}
