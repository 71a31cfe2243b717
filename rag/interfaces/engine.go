package interfaces

import (
	"context"

	"github.com/campusrag/campusrag/rag/types"
)

// VectorStore defines the interface for vector store backends
type VectorStore interface {
	// AddDocuments upserts documents with their embeddings. It only returns
	// an error for dimension mismatches; per-item failures are counted in
	// the report.
	AddDocuments(ctx context.Context, docs []types.Document, embeddings [][]float32) (types.AddReport, error)

	// Search returns up to topK results by descending score. Backend
	// failures are reported through SearchResponse.Degraded.
	Search(ctx context.Context, embedding []float32, topK int) (types.SearchResponse, error)

	Stats(ctx context.Context) types.Stats
	// DeleteCollection drops every document and leaves an empty collection
	// behind. Failures wrap ErrDestructiveOperation.
	DeleteCollection(ctx context.Context) error
	// DeleteDocuments removes documents by natural id. Unknown ids are
	// ignored.
	DeleteDocuments(ctx context.Context, ids []string) error
	CollectionExists(ctx context.Context) bool
	Close() error
}

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer turns a system prompt and a user prompt into text.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
