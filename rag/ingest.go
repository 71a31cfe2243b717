package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/campusrag/campusrag/pkg/chunk"
	"github.com/campusrag/campusrag/rag/interfaces"
	"github.com/campusrag/campusrag/rag/sources"
	"github.com/campusrag/campusrag/rag/types"
	"github.com/mudler/xlog"
)

// DefaultEmbedBatchSize is the number of texts sent per embeddings request.
const DefaultEmbedBatchSize = 100

// Ingestor loads sources, chunks them, embeds the chunks and stores them.
type Ingestor struct {
	store          interfaces.VectorStore
	embedder       interfaces.Embedder
	ledger         *Ledger
	sourceConfig   *sources.Config
	chunkSize      int
	embedBatchSize int
}

// NewIngestor returns an Ingestor. ledger may be nil.
func NewIngestor(store interfaces.VectorStore, embedder interfaces.Embedder, ledger *Ledger, sourceConfig *sources.Config, chunkSize int) *Ingestor {
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultChunkSize
	}
	return &Ingestor{
		store:          store,
		embedder:       embedder,
		ledger:         ledger,
		sourceConfig:   sourceConfig,
		chunkSize:      chunkSize,
		embedBatchSize: DefaultEmbedBatchSize,
	}
}

// ChunkID is the natural id of the n-th chunk of a document.
func ChunkID(location string, n int) string {
	return fmt.Sprintf("%s#%d", location, n)
}

// PageDocuments chunks a page into documents with natural ids
// <location>#<n>, n starting at 0.
func PageDocuments(page sources.Page, source string, chunkSize int) []types.Document {
	chunks := chunk.SplitText(page.Text, chunkSize)
	docs := make([]types.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = types.Document{
			ID:      ChunkID(page.Location, i),
			Content: c,
			Metadata: map[string]any{
				"url":   page.Location,
				"type":  page.Type,
				"chunk": i,
			},
			Source: source,
		}
	}
	return docs
}

// Ingest loads uri and stores its chunks. Re-ingesting a source overwrites
// the chunks stored under the same ids and removes the chunks it no longer
// produces.
func (i *Ingestor) Ingest(ctx context.Context, uri string, updateInterval time.Duration) (types.AddReport, error) {
	pages, err := sources.SourceRouter(uri, i.sourceConfig)
	if err != nil {
		return types.AddReport{}, fmt.Errorf("failed to load %s: %w", uri, err)
	}

	var docs []types.Document
	for _, page := range pages {
		docs = append(docs, PageDocuments(page, uri, i.chunkSize)...)
	}
	xlog.Info("Chunked source", "uri", uri, "pages", len(pages), "chunks", len(docs))

	report, err := i.IngestDocuments(ctx, docs)
	if err != nil {
		return report, err
	}

	if i.ledger != nil {
		chunks := make([]string, len(docs))
		for n, d := range docs {
			chunks[n] = d.ID
		}
		if previous, ok := i.ledger.Entry(uri); ok {
			chunks = append(chunks, i.removeStale(ctx, uri, previous.Chunks, chunks)...)
		}

		err := i.ledger.Record(LedgerEntry{
			URI:            uri,
			Documents:      report.Persisted,
			IngestedAt:     time.Now(),
			UpdateInterval: updateInterval,
			Chunks:         chunks,
		})
		if err != nil {
			xlog.Warn("Failed to record source", "uri", uri, "error", err)
		}
	}
	return report, nil
}

// removeStale deletes the previous chunks of uri missing from current. The
// ids it could not delete are returned so a later refresh retries them.
func (i *Ingestor) removeStale(ctx context.Context, uri string, previous, current []string) []string {
	keep := make(map[string]struct{}, len(current))
	for _, id := range current {
		keep[id] = struct{}{}
	}
	var stale []string
	for _, id := range previous {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if err := i.store.DeleteDocuments(ctx, stale); err != nil {
		xlog.Warn("Failed to remove stale chunks", "uri", uri, "chunks", len(stale), "error", err)
		return stale
	}
	xlog.Info("Removed stale chunks", "uri", uri, "chunks", len(stale))
	return nil
}

// IngestDocuments embeds documents in batches and adds them to the store.
func (i *Ingestor) IngestDocuments(ctx context.Context, docs []types.Document) (types.AddReport, error) {
	var total types.AddReport
	for start := 0; start < len(docs); start += i.embedBatchSize {
		batch := docs[start:min(start+i.embedBatchSize, len(docs))]

		texts := make([]string, len(batch))
		for j, d := range batch {
			texts[j] = d.Content
		}
		embeddings, err := i.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, &types.StageError{Stage: types.StageEmbed, Err: err}
		}

		report, err := i.store.AddDocuments(ctx, batch, embeddings)
		if err != nil {
			return total, err
		}
		total.Requested += report.Requested
		total.Persisted += report.Persisted
		total.Failed += report.Failed
		total.Batches += report.Batches
	}
	return total, nil
}

// Seed stores the sample documents.
func (i *Ingestor) Seed(ctx context.Context) (types.AddReport, error) {
	return i.IngestDocuments(ctx, SampleDocuments())
}

// Reset deletes the collection and forgets every ingested source.
func (i *Ingestor) Reset(ctx context.Context) error {
	if err := i.store.DeleteCollection(ctx); err != nil {
		return err
	}
	if i.ledger != nil {
		return i.ledger.Reset()
	}
	return nil
}

// SampleDocuments returns a handful of general ASU documents used to
// bootstrap an empty collection.
func SampleDocuments() []types.Document {
	sample := func(id, title, path, kind, content string) types.Document {
		return types.Document{
			ID:      id,
			Content: content,
			Metadata: map[string]any{
				"source": "asu_web",
				"title":  title,
				"url":    "https://www.asu.edu/" + path,
				"type":   kind,
			},
			Source: "asu_web",
		}
	}

	return []types.Document{
		sample("asu_about", "About Arizona State University", "about", "general_info",
			"Arizona State University (ASU) is a public research university located in the Phoenix metropolitan area. Founded in 1885, ASU is one of the largest universities in the United States by enrollment."),
		sample("asu_academics", "ASU Academic Programs", "academics", "academics",
			"ASU offers over 400 undergraduate degree programs and more than 450 graduate degree programs across 17 colleges and schools. The university is known for innovation and research excellence."),
		sample("asu_tempe", "ASU Tempe Campus", "tempe", "campus_info",
			"The Tempe campus is ASU's main campus, home to over 50,000 students. It features state-of-the-art facilities including libraries, research centers, and student recreation areas."),
		sample("asu_rankings", "ASU Innovation and Rankings", "rankings", "rankings",
			"ASU is consistently ranked among the top universities for innovation. The university emphasizes practical learning, research opportunities, and preparing students for future careers."),
		sample("asu_student_life", "ASU Student Life", "student-life", "student_life",
			"Student life at ASU includes over 1,000 student organizations, Division I athletics (ASU Sun Devils), and numerous cultural and recreational activities throughout the year."),
	}
}
