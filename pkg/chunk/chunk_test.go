package chunk_test

import (
	"strings"

	. "github.com/campusrag/campusrag/pkg/chunk"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Chunk", func() {
	Describe("SplitParagraphIntoChunks", func() {
		It("should split text into chunks", func() {
			text := "This is a test. This is another sentence. And one more."
			chunks := SplitParagraphIntoChunks(text, 20)
			Expect(len(chunks)).To(BeNumerically(">", 1))
			Expect(strings.Join(chunks, " ")).To(Equal(text))
		})

		It("should handle empty text", func() {
			Expect(SplitParagraphIntoChunks("", 100)).To(BeEmpty())
			Expect(SplitParagraphIntoChunks(" \n\t ", 100)).To(BeEmpty())
		})

		It("should respect max chunk size", func() {
			text := "This is a very long text that should be split into multiple chunks. " +
				"Each chunk should not exceed the maximum size specified. " +
				"This ensures that the text is properly divided for processing."
			chunks := SplitParagraphIntoChunks(text, 50)
			Expect(chunks).ToNot(BeEmpty())
			for _, chunk := range chunks {
				Expect(len(chunk)).To(BeNumerically("<=", 50))
			}
		})

		It("should keep oversized words whole", func() {
			chunks := SplitParagraphIntoChunks("a supercalifragilistic word", 10)
			Expect(chunks).To(Equal([]string{"a", "supercalifragilistic", "word"}))
		})

		It("should handle text smaller than chunk size", func() {
			chunks := SplitParagraphIntoChunks("Short text", 100)
			Expect(chunks).To(Equal([]string{"Short text"}))
		})
	})

	Describe("SplitText", func() {
		It("should split on paragraph boundaries when possible", func() {
			text := "First paragraph.\n\nSecond paragraph.\n\nThird paragraph."
			chunks := SplitText(text, 40)
			Expect(chunks).To(Equal([]string{
				"First paragraph.\n\nSecond paragraph.",
				"Third paragraph.",
			}))
		})

		It("should split paragraphs larger than the chunk size", func() {
			text := "Short.\n\n" + strings.Repeat("word ", 30)
			chunks := SplitText(text, 50)
			Expect(chunks[0]).To(Equal("Short."))
			for _, chunk := range chunks {
				Expect(len(chunk)).To(BeNumerically("<=", 50))
			}
		})

		It("should drop blank paragraphs", func() {
			Expect(SplitText("\n\n  \n\n", 100)).To(BeEmpty())
		})
	})
})
