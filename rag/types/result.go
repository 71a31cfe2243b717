package types

import "time"

// Document is a unit of text persisted in a vector store.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
	Source   string
}

// SearchResult represents a single result from a similarity query.
type SearchResult struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`

	// Score is the cosine similarity between the query and the document.
	// The higher the value, the more similar the document is to the query.
	// Every backend reports it in the range [-1, 1].
	Score float32 `json:"score"`

	// Rank is the 1-based position in the result list.
	Rank int `json:"rank"`
}

// SearchResponse carries the results of a search together with the health
// of the backend that produced them. An empty Results with Degraded unset
// means the collection simply had nothing to return.
type SearchResponse struct {
	Results  []SearchResult
	Degraded bool
	Cause    error
}

// AddReport summarizes an AddDocuments call.
type AddReport struct {
	Requested int `json:"requested"`
	Persisted int `json:"persisted"`
	Failed    int `json:"failed"`
	Batches   int `json:"batches"`
}

// Stats describes a vector store collection.
type Stats struct {
	Backend        string         `json:"backend"`
	Collection     string         `json:"collection_name"`
	TotalDocuments int            `json:"total_documents"`
	Extra          map[string]any `json:"extra,omitempty"`
	Degraded       bool           `json:"degraded,omitempty"`
}

// PipelineResult is the answer to a single question.
type PipelineResult struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Sources  []SearchResult `json:"sources"`
	Context  string         `json:"context"`

	// Degraded is set when a pipeline stage failed and Answer is a fallback.
	Degraded bool   `json:"-"`
	Stage    string `json:"-"`
}

// CacheEntry is a memoized pipeline result.
type CacheEntry struct {
	Key       string
	Result    *PipelineResult
	CreatedAt time.Time
}
