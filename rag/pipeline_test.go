package rag_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/campusrag/campusrag/rag"
	"github.com/campusrag/campusrag/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pipeline", func() {
	var (
		ctx       context.Context
		embedder  *spyEmbedder
		completer *spyCompleter
		store     *stubStore
		pipeline  *Pipeline
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &spyEmbedder{embedding: []float32{1, 0, 0}}
		completer = &spyCompleter{answer: "ASU was founded in 1885."}
		store = &stubStore{response: hits("ASU was founded in 1885.", "Tempe is the main campus.")}
		pipeline = NewPipeline(store, embedder, completer, 0)
	})

	It("should answer from the retrieved context", func() {
		result, err := pipeline.Query(ctx, "When was ASU founded?", 3)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Degraded).To(BeFalse())
		Expect(result.Question).To(Equal("When was ASU founded?"))
		Expect(result.Answer).To(Equal("ASU was founded in 1885."))
		Expect(result.Sources).To(HaveLen(2))
		Expect(result.Context).To(Equal("ASU was founded in 1885.\n\nTempe is the main campus."))

		Expect(completer.userPrompt).To(ContainSubstring("Question: When was ASU founded?"))
		Expect(completer.userPrompt).To(ContainSubstring(result.Context))
	})

	It("should reject empty questions without calling any stage", func() {
		_, err := pipeline.Query(ctx, "   ", 3)
		Expect(err).To(MatchError(types.ErrEmptyQuestion))
		Expect(embedder.calls.Load()).To(BeZero())
	})

	It("should not call the completer when nothing matches", func() {
		store.response = types.SearchResponse{Results: []types.SearchResult{}}

		result, err := pipeline.Query(ctx, "Where is the stadium?", 3)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Degraded).To(BeFalse())
		Expect(result.Answer).To(Equal(NoInformationAnswer))
		Expect(result.Sources).To(BeEmpty())
		Expect(completer.Calls()).To(BeZero())
	})

	DescribeTable("fallbacks",
		func(setup func(), stage string) {
			setup()

			result, err := pipeline.Query(ctx, "When was ASU founded?", 3)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Degraded).To(BeTrue())
			Expect(result.Stage).To(Equal(stage))
			Expect(result.Answer).To(Equal(ApologyAnswer))
			Expect(result.Sources).To(BeEmpty())
			Expect(result.Context).To(BeEmpty())
		},
		Entry("embedding failure", func() { embedder.err = errBackend }, types.StageEmbed),
		Entry("dimension mismatch", func() {
			store.searchErr = &types.DimensionMismatchError{Expected: 1536, Got: 3}
		}, types.StageSearch),
		Entry("degraded search", func() {
			store.response = types.SearchResponse{Results: []types.SearchResult{}, Degraded: true, Cause: errBackend}
		}, types.StageSearch),
		Entry("completion failure", func() { completer.err = errBackend }, types.StageGenerate),
		Entry("empty completion", func() { completer.answer = "  " }, types.StageGenerate),
	)

	Describe("BuildContext", func() {
		It("should be deterministic in rank order", func() {
			results := hits("first", "second", "third").Results
			Expect(BuildContext(results, 0)).To(Equal("first\n\nsecond\n\nthird"))
			Expect(BuildContext(results, 0)).To(Equal(BuildContext(results, 0)))
		})

		It("should truncate on rune boundaries", func() {
			results := hits(strings.Repeat("é", 10)).Results
			Expect(BuildContext(results, 4)).To(Equal("éééé"))
		})

		It("should bound the context handed to the completer", func() {
			store.response = hits(strings.Repeat("a", 100), strings.Repeat("b", 100))
			pipeline = NewPipeline(store, embedder, completer, 50)

			result, err := pipeline.Query(ctx, "question", 2)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Context).To(HaveLen(50))
		})
	})

	It("should report stage errors with their cause", func() {
		err := &types.StageError{Stage: types.StageEmbed, Err: errBackend}
		Expect(errors.Is(err, errBackend)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("embed"))
	})
})
