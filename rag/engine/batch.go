package engine

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/campusrag/campusrag/pkg/metrics"
	"github.com/campusrag/campusrag/rag/types"
	"github.com/mudler/xlog"
)

// DefaultBatchSize is the number of documents submitted per upsert request.
const DefaultBatchSize = 100

// insertSequence orders documents by insertion. Seeding it with the clock
// keeps it increasing across restarts.
var insertSequence atomic.Int64

func init() {
	insertSequence.Store(time.Now().UnixNano())
}

// record is a document ready to be upserted.
type record struct {
	id        string
	doc       types.Document
	embedding []float32
	payload   map[string]any
}

// upsertFunc writes a batch of records to a backend.
type upsertFunc func(ctx context.Context, batch []record) error

// prepareRecords validates inputs and derives ids. ok is false when the
// inputs are empty or of different lengths; that case is logged and is not
// an error.
func prepareRecords(backend string, docs []types.Document, embeddings [][]float32, dimension int) ([]record, bool, error) {
	if len(docs) == 0 || len(embeddings) == 0 {
		xlog.Warn("No documents or embeddings provided", "backend", backend)
		return nil, false, nil
	}
	if len(docs) != len(embeddings) {
		xlog.Warn("Documents and embeddings length mismatch", "backend", backend, "documents", len(docs), "embeddings", len(embeddings))
		return nil, false, nil
	}

	for _, e := range embeddings {
		if err := types.CheckDimension(e, dimension); err != nil {
			return nil, false, err
		}
	}

	first := insertSequence.Add(int64(len(docs))) - int64(len(docs)) + 1
	records := make([]record, len(docs))
	for i, doc := range docs {
		records[i] = record{
			id:        DerivedID(doc.ID),
			doc:       doc,
			embedding: embeddings[i],
			payload:   payloadFor(doc, first+int64(i)),
		}
	}
	return records, true, nil
}

// upsertInBatches submits records in fixed-size batches. When a batch fails
// every record of that batch is retried on its own so a single bad record
// does not block the others.
func upsertInBatches(ctx context.Context, backend string, records []record, batchSize int, upsert upsertFunc) types.AddReport {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	report := types.AddReport{Requested: len(records)}
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		batch := records[start:end]
		report.Batches++
		batchNumber := start/batchSize + 1

		err := upsert(ctx, batch)
		if err == nil {
			report.Persisted += len(batch)
			xlog.Debug("Added batch", "backend", backend, "batch", batchNumber, "documents", len(batch))
			continue
		}
		xlog.Error("Error adding batch, retrying documents one by one", "backend", backend, "batch", batchNumber, "error", err)

		for _, r := range batch {
			if err := upsert(ctx, []record{r}); err != nil {
				report.Failed++
				xlog.Error("Failed to add document", "backend", backend, "id", r.doc.ID, "point", r.id, "error", err)
				continue
			}
			report.Persisted++
		}
	}

	metrics.Get().DocumentsPersisted.WithLabelValues(backend).Add(float64(report.Persisted))
	xlog.Info("Added documents", "backend", backend, "persisted", report.Persisted, "requested", report.Requested, "failed", report.Failed)
	return report
}

// rankResults sorts results by descending score, ties by insertion order,
// truncates to topK and assigns 1-based ranks. The insertion sequence is
// removed from the metadata.
func rankResults(results []types.SearchResult, topK int) []types.SearchResult {
	type ranked struct {
		result types.SearchResult
		seq    int64
	}
	items := make([]ranked, len(results))
	for i, r := range results {
		if r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
		items[i] = ranked{result: r, seq: takeSequence(r.Metadata)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].result.Score != items[j].result.Score {
			return items[i].result.Score > items[j].result.Score
		}
		return items[i].seq < items[j].seq
	})

	if len(items) > topK {
		items = items[:topK]
	}
	out := make([]types.SearchResult, len(items))
	for i, it := range items {
		out[i] = it.result
		out[i].Rank = i + 1
	}
	return out
}

// degraded builds the response for a failed search and records it.
func degraded(backend string, err error) types.SearchResponse {
	xlog.Error("Search failed, returning no results", "backend", backend, "error", err)
	metrics.Get().SearchDegraded.WithLabelValues(backend).Inc()
	return types.SearchResponse{Results: []types.SearchResult{}, Degraded: true, Cause: err}
}

func empty() types.SearchResponse {
	return types.SearchResponse{Results: []types.SearchResult{}}
}
