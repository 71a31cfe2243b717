package rag

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/campusrag/campusrag/pkg/metrics"
	"github.com/campusrag/campusrag/rag/interfaces"
	"github.com/campusrag/campusrag/rag/types"
	"github.com/mudler/xlog"
)

// DefaultMaxContextChars bounds the context handed to the answer generator.
const DefaultMaxContextChars = 4000

// contextSeparator joins result contents in the context.
const contextSeparator = "\n\n"

// Pipeline answers questions: embed, search, assemble the context, generate.
type Pipeline struct {
	store           interfaces.VectorStore
	embedder        interfaces.Embedder
	completer       interfaces.Completer
	maxContextChars int
}

func NewPipeline(store interfaces.VectorStore, embedder interfaces.Embedder, completer interfaces.Completer, maxContextChars int) *Pipeline {
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}
	return &Pipeline{
		store:           store,
		embedder:        embedder,
		completer:       completer,
		maxContextChars: maxContextChars,
	}
}

// Query answers a question from the topK most similar documents. The only
// error is ErrEmptyQuestion: stage failures produce a degraded result with
// the apology answer.
func (p *Pipeline) Query(ctx context.Context, question string, topK int) (*types.PipelineResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, types.ErrEmptyQuestion
	}

	embedding, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return p.fallback(question, &types.StageError{Stage: types.StageEmbed, Err: err}), nil
	}

	res, err := p.store.Search(ctx, embedding, topK)
	if err != nil {
		return p.fallback(question, &types.StageError{Stage: types.StageSearch, Err: err}), nil
	}
	if res.Degraded {
		return p.fallback(question, &types.StageError{Stage: types.StageSearch, Err: res.Cause}), nil
	}
	if len(res.Results) == 0 {
		xlog.Debug("No documents matched the question", "question", question)
		return &types.PipelineResult{
			Question: question,
			Answer:   NoInformationAnswer,
			Sources:  []types.SearchResult{},
		}, nil
	}

	contextText := BuildContext(res.Results, p.maxContextChars)

	answer, err := p.completer.Complete(ctx, SystemPrompt, UserPrompt(question, contextText))
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		return p.fallback(question, &types.StageError{Stage: types.StageGenerate, Err: err}), nil
	}

	return &types.PipelineResult{
		Question: question,
		Answer:   answer,
		Sources:  res.Results,
		Context:  contextText,
	}, nil
}

func (p *Pipeline) fallback(question string, err *types.StageError) *types.PipelineResult {
	xlog.Error("Pipeline stage failed", "stage", err.Stage, "error", err.Err, "question", question)
	metrics.Get().PipelineFailures.WithLabelValues(err.Stage).Inc()

	return &types.PipelineResult{
		Question: question,
		Answer:   ApologyAnswer,
		Sources:  []types.SearchResult{},
		Degraded: true,
		Stage:    err.Stage,
	}
}

// BuildContext joins the contents of results in rank order, separated by a
// blank line, and cuts the text at maxChars runes.
func BuildContext(results []types.SearchResult, maxChars int) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	joined := strings.Join(parts, contextSeparator)

	if maxChars > 0 && utf8.RuneCountInString(joined) > maxChars {
		joined = string([]rune(joined)[:maxChars])
	}
	return joined
}
