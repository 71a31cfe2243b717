package rag_test

import (
	"context"
	"time"

	. "github.com/campusrag/campusrag/rag"
	"github.com/campusrag/campusrag/rag/engine"
	"github.com/campusrag/campusrag/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Assistant", func() {
	var (
		ctx       context.Context
		embedder  *spyEmbedder
		completer *spyCompleter
		store     *stubStore
		cache     *QueryCache
		assistant *Assistant
	)

	newAssistant := func(timeout time.Duration) *Assistant {
		pipeline := NewPipeline(store, embedder, completer, 0)
		info := engine.Info{Type: engine.TypeChromem, Collection: "asu_docs"}
		return NewAssistant(pipeline, store, cache, info, timeout, 0)
	}

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &spyEmbedder{embedding: []float32{1, 0, 0}}
		completer = &spyCompleter{answer: "ASU was founded in 1885."}
		store = &stubStore{response: hits("ASU was founded in 1885.")}
		cache = NewQueryCache(time.Hour, 10)
		assistant = newAssistant(time.Second)
	})

	It("should serve repeated questions from the cache", func() {
		result, outcome, err := assistant.Ask(ctx, "When was ASU founded?", 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeAnswered))
		Expect(result.Answer).To(Equal("ASU was founded in 1885."))

		cached, outcome, err := assistant.Ask(ctx, "  when was asu founded?", 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeCached))
		Expect(cached).To(Equal(result))
		Expect(embedder.calls.Load()).To(BeEquivalentTo(1))
	})

	It("should ask the providers again once the cached answer expired", func() {
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		cache = NewQueryCache(time.Hour, 10).WithClock(func() time.Time { return now })
		assistant = newAssistant(time.Second)

		_, outcome, err := assistant.Ask(ctx, "When was ASU founded?", 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeAnswered))

		now = now.Add(59 * time.Minute)
		_, outcome, err = assistant.Ask(ctx, "When was ASU founded?", 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeCached))
		Expect(embedder.calls.Load()).To(BeEquivalentTo(1))

		now = now.Add(2 * time.Minute)
		_, outcome, err = assistant.Ask(ctx, "When was ASU founded?", 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeAnswered))
		Expect(embedder.calls.Load()).To(BeEquivalentTo(2))
		Expect(completer.Calls()).To(Equal(2))
	})

	It("should never return more sources than requested", func() {
		chromemStore, err := engine.NewChromemDBCollection("asu_docs", "", false, 3, 100)
		Expect(err).ToNot(HaveOccurred())
		_, err = chromemStore.AddDocuments(ctx, []types.Document{
			{ID: "asu_about", Content: "ASU was founded in 1885."},
			{ID: "asu_tempe", Content: "The Tempe campus is ASU's main campus."},
			{ID: "asu_rankings", Content: "ASU is ranked first in innovation."},
		}, [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0.8, 0.2, 0}})
		Expect(err).ToNot(HaveOccurred())

		pipeline := NewPipeline(chromemStore, embedder, completer, 0)
		assistant = NewAssistant(pipeline, chromemStore, cache, engine.Info{}, time.Second, 3)

		result, outcome, err := assistant.Ask(ctx, "Tell me about ASU", 3)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeAnswered))
		Expect(result.Sources).To(HaveLen(3))

		result, outcome, err = assistant.Ask(ctx, "Tell me about ASU", 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeAnswered))
		Expect(result.Sources).To(HaveLen(1))

		result, outcome, err = assistant.Ask(ctx, "Tell me about ASU", 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeCached))
		Expect(result.Sources).To(HaveLen(3))
		Expect(cache.Len()).To(Equal(1))
	})

	It("should not cache degraded results", func() {
		embedder.err = errBackend

		for i := 0; i < 2; i++ {
			result, outcome, err := assistant.Ask(ctx, "When was ASU founded?", 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome).To(Equal(OutcomeAnswered))
			Expect(result.Degraded).To(BeTrue())
			Expect(result.Answer).To(Equal(ApologyAnswer))
		}
		Expect(embedder.calls.Load()).To(BeEquivalentTo(2))
		Expect(cache.Len()).To(BeZero())
	})

	It("should time out slow pipelines", func() {
		embedder.delay = time.Second
		assistant = newAssistant(20 * time.Millisecond)

		start := time.Now()
		result, outcome, err := assistant.Ask(ctx, "When was ASU founded?", 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeTimedOut))
		Expect(result).To(BeNil())
		Expect(time.Since(start)).To(BeNumerically("<", 500*time.Millisecond))
		Expect(cache.Len()).To(BeZero())
	})

	It("should validate the question before the cache", func() {
		_, _, err := assistant.Ask(ctx, "", 0)
		Expect(err).To(MatchError(types.ErrEmptyQuestion))
		Expect(cache.Stats().Misses).To(BeZero())
		Expect(embedder.calls.Load()).To(BeZero())
	})

	It("should use the configured top k by default", func() {
		Expect(assistant.DefaultTopK()).To(Equal(DefaultTopK))
	})

	It("should merge store, cache and configuration stats", func() {
		_, _, err := assistant.Ask(ctx, "When was ASU founded?", 0)
		Expect(err).ToNot(HaveOccurred())

		stats := assistant.Stats(ctx)
		Expect(stats.Backend).To(Equal("stub"))
		Expect(stats.TotalDocuments).To(Equal(1))
		Expect(stats.Cache.Size).To(Equal(1))
		Expect(stats.Cache.Misses).To(BeEquivalentTo(1))
		Expect(stats.Info.Type).To(Equal(engine.TypeChromem))
	})
})
