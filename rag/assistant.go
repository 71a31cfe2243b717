package rag

import (
	"context"
	"strings"
	"time"

	"github.com/campusrag/campusrag/pkg/metrics"
	"github.com/campusrag/campusrag/rag/engine"
	"github.com/campusrag/campusrag/rag/interfaces"
	"github.com/campusrag/campusrag/rag/types"
	"github.com/mudler/xlog"
)

// Query defaults.
const (
	DefaultQueryTimeout = 15 * time.Second
	DefaultTopK         = 3
)

// Outcome tells how Ask produced its result.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeCached   Outcome = "cached"
	OutcomeTimedOut Outcome = "timed_out"
)

// AssistantStats merges store, configuration and cache statistics.
type AssistantStats struct {
	types.Stats
	Cache CacheStats  `json:"cache"`
	Info  engine.Info `json:"config"`
}

// Assistant is the entry point of the HTTP API and the messaging webhook:
// a cache in front of a time-bounded pipeline.
type Assistant struct {
	pipeline *Pipeline
	store    interfaces.VectorStore
	cache    *QueryCache
	info     engine.Info
	timeout  time.Duration
	topK     int
}

func NewAssistant(pipeline *Pipeline, store interfaces.VectorStore, cache *QueryCache, info engine.Info, timeout time.Duration, topK int) *Assistant {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Assistant{
		pipeline: pipeline,
		store:    store,
		cache:    cache,
		info:     info,
		timeout:  timeout,
		topK:     topK,
	}
}

// DefaultTopK returns the number of sources used when the caller does not
// ask for a specific amount.
func (a *Assistant) DefaultTopK() int {
	return a.topK
}

// Ask answers a question through the cache and the pipeline. A topK <= 0
// selects the configured default. The cache is keyed by question only, so
// it serves and stores results for the default topK alone. Only healthy
// results are cached.
func (a *Assistant) Ask(ctx context.Context, question string, topK int) (*types.PipelineResult, Outcome, error) {
	if strings.TrimSpace(question) == "" {
		return nil, "", types.ErrEmptyQuestion
	}
	if topK <= 0 {
		topK = a.topK
	}
	cacheable := topK == a.topK

	start := time.Now()
	m := metrics.Get()

	if !cacheable {
		xlog.Debug("Bypassing cache", "top_k", topK, "default_top_k", a.topK)
	} else if result, ok := a.cache.Get(question); ok {
		xlog.Info("Cache hit", "question", question)
		m.QueryDuration.WithLabelValues(string(OutcomeCached)).Observe(time.Since(start).Seconds())
		return result, OutcomeCached, nil
	}

	type reply struct {
		result *types.PipelineResult
		err    error
	}
	r, ok := RunWithTimeout(ctx, a.timeout, func(ctx context.Context) reply {
		result, err := a.pipeline.Query(ctx, question, topK)
		return reply{result: result, err: err}
	})
	if !ok {
		xlog.Warn("Query timed out", "question", question, "timeout", a.timeout)
		m.QueryTimeouts.Inc()
		m.QueryDuration.WithLabelValues(string(OutcomeTimedOut)).Observe(time.Since(start).Seconds())
		return nil, OutcomeTimedOut, nil
	}
	if r.err != nil {
		return nil, "", r.err
	}

	if cacheable && !r.result.Degraded {
		a.cache.Put(question, r.result)
	}

	elapsed := time.Since(start)
	m.QueryDuration.WithLabelValues(string(OutcomeAnswered)).Observe(elapsed.Seconds())
	xlog.Info("Query completed", "duration", elapsed, "sources", len(r.result.Sources), "degraded", r.result.Degraded)
	return r.result, OutcomeAnswered, nil
}

func (a *Assistant) Stats(ctx context.Context) AssistantStats {
	return AssistantStats{
		Stats: a.store.Stats(ctx),
		Cache: a.cache.Stats(),
		Info:  a.info,
	}
}
