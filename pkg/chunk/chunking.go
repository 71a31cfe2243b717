// Package chunk splits text into pieces small enough to embed.
package chunk

import (
	"strings"
)

// DefaultChunkSize is the default maximum chunk length in bytes.
const DefaultChunkSize = 1000

// SplitParagraphIntoChunks splits text into chunks of at most maxChunkSize
// bytes without breaking words. Whitespace is collapsed to single spaces.
// A word longer than maxChunkSize becomes a chunk on its own.
func SplitParagraphIntoChunks(paragraph string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}

	var chunks []string
	var current strings.Builder

	for _, word := range strings.Fields(paragraph) {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// SplitText packs whole paragraphs (separated by blank lines) into chunks
// of at most maxChunkSize bytes. Paragraphs that do not fit on their own
// are split with SplitParagraphIntoChunks.
func SplitText(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, paragraph := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		paragraph = strings.Join(strings.Fields(paragraph), " ")
		if paragraph == "" {
			continue
		}

		if len(paragraph) > maxChunkSize {
			flush()
			chunks = append(chunks, SplitParagraphIntoChunks(paragraph, maxChunkSize)...)
			continue
		}

		if current.Len() > 0 && current.Len()+2+len(paragraph) > maxChunkSize {
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
