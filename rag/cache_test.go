package rag_test

import (
	"fmt"
	"time"

	. "github.com/campusrag/campusrag/rag"
	"github.com/campusrag/campusrag/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("QueryCache", func() {
	var (
		now   time.Time
		cache *QueryCache
	)

	clock := func() time.Time { return now }
	result := func(answer string) *types.PipelineResult {
		return &types.PipelineResult{Question: "q", Answer: answer}
	}

	BeforeEach(func() {
		now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		cache = NewQueryCache(time.Hour, 3).WithClock(clock)
	})

	It("should normalize questions", func() {
		cache.Put("  What is ASU?  ", result("a"))

		got, ok := cache.Get("what is asu?")
		Expect(ok).To(BeTrue())
		Expect(got.Answer).To(Equal("a"))
		Expect(CacheKey("WHAT IS ASU?")).To(Equal(CacheKey("what is asu? ")))
		Expect(CacheKey("what is asu")).To(HaveLen(64))
	})

	It("should expire entries after the ttl", func() {
		cache.Put("question", result("a"))

		now = now.Add(59 * time.Minute)
		_, ok := cache.Get("question")
		Expect(ok).To(BeTrue())

		now = now.Add(time.Minute)
		_, ok = cache.Get("question")
		Expect(ok).To(BeFalse())
	})

	It("should count genuine hits and misses", func() {
		cache.Put("question", result("a"))
		cache.Get("question")
		cache.Get("question")
		cache.Get("other")

		stats := cache.Stats()
		Expect(stats.Hits).To(BeEquivalentTo(2))
		Expect(stats.Misses).To(BeEquivalentTo(1))
		Expect(stats.HitRatio).To(BeNumerically("~", 2.0/3.0, 1e-9))
		Expect(stats.Size).To(Equal(1))
		Expect(stats.MaxEntries).To(Equal(3))
		Expect(stats.TTLSeconds).To(BeEquivalentTo(3600))
	})

	It("should report a zero hit ratio before any lookup", func() {
		Expect(cache.Stats().HitRatio).To(BeZero())
	})

	It("should drop expired entries before evicting live ones", func() {
		cache.Put("old", result("old"))
		now = now.Add(2 * time.Hour)
		cache.Put("q1", result("1"))
		cache.Put("q2", result("2"))
		cache.Put("q3", result("3"))

		Expect(cache.Len()).To(Equal(3))
		for _, q := range []string{"q1", "q2", "q3"} {
			_, ok := cache.Get(q)
			Expect(ok).To(BeTrue(), q)
		}
	})

	It("should evict the oldest entries down to the maximum", func() {
		for i := 0; i < 5; i++ {
			cache.Put(fmt.Sprintf("q%d", i), result(fmt.Sprint(i)))
			now = now.Add(time.Second)
		}

		Expect(cache.Len()).To(Equal(3))
		_, ok := cache.Get("q0")
		Expect(ok).To(BeFalse())
		_, ok = cache.Get("q1")
		Expect(ok).To(BeFalse())
		_, ok = cache.Get("q4")
		Expect(ok).To(BeTrue())
	})

	It("should overwrite entries for the same question", func() {
		cache.Put("question", result("a"))
		cache.Put("QUESTION", result("b"))

		got, ok := cache.Get("question")
		Expect(ok).To(BeTrue())
		Expect(got.Answer).To(Equal("b"))
		Expect(cache.Len()).To(Equal(1))
	})

	It("should use defaults for non-positive settings", func() {
		stats := NewQueryCache(0, 0).Stats()
		Expect(stats.MaxEntries).To(Equal(DefaultCacheMaxEntries))
		Expect(stats.TTLSeconds).To(Equal(DefaultCacheTTL.Seconds()))
	})
})
