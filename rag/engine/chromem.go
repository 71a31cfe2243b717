package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/campusrag/campusrag/rag/types"
	"github.com/mudler/xlog"
	"github.com/philippgille/chromem-go"
)

const chromemBackend = "chromem"

// ChromemDB is the local embedded store. Embeddings are always computed by
// the caller, so the collection's embedding function is never used.
type ChromemDB struct {
	mu             sync.RWMutex
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	path           string
	dimension      int
	batchSize      int
}

// NewChromemDBCollection opens (or creates) a collection persisted under
// path. An empty path keeps everything in memory.
func NewChromemDBCollection(collection, path string, compress bool, dimension, batchSize int) (*ChromemDB, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("error opening chromem db at %s: %w", path, err)
		}
	}

	c, err := db.GetOrCreateCollection(collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("error creating collection: %w", err)
	}

	xlog.Info("Loaded chromem collection", "collection", collection, "path", path, "documents", c.Count())

	return &ChromemDB{
		db:             db,
		collection:     c,
		collectionName: collection,
		path:           path,
		dimension:      dimension,
		batchSize:      batchSize,
	}, nil
}

func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("chromem store expects precomputed embeddings")
}

func (c *ChromemDB) AddDocuments(ctx context.Context, docs []types.Document, embeddings [][]float32) (types.AddReport, error) {
	records, ok, err := prepareRecords(chromemBackend, docs, embeddings, c.dimension)
	if err != nil || !ok {
		return types.AddReport{}, err
	}

	return upsertInBatches(ctx, chromemBackend, records, c.batchSize, func(ctx context.Context, batch []record) error {
		documents := make([]chromem.Document, len(batch))
		for i, r := range batch {
			content, metadata := splitPayload(r.payload)
			documents[i] = chromem.Document{
				ID:        r.id,
				Content:   content,
				Metadata:  toStringMetadata(metadata),
				Embedding: r.embedding,
			}
		}

		c.mu.RLock()
		collection := c.collection
		c.mu.RUnlock()
		return collection.AddDocuments(ctx, documents, runtime.NumCPU())
	}), nil
}

func (c *ChromemDB) Search(ctx context.Context, embedding []float32, topK int) (types.SearchResponse, error) {
	if err := types.CheckDimension(embedding, c.dimension); err != nil {
		return types.SearchResponse{}, err
	}
	if topK <= 0 {
		return empty(), nil
	}

	c.mu.RLock()
	collection := c.collection
	c.mu.RUnlock()

	// chromem requires nResults <= number of documents
	count := collection.Count()
	if count == 0 {
		return empty(), nil
	}
	// One extra result shows whether the last kept one is tied. chromem
	// breaks ties arbitrarily, so widen until every tied result is present.
	n := min(topK+1, count)
	var res []chromem.Result
	for {
		var err error
		res, err = collection.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err != nil {
			return degraded(chromemBackend, err), nil
		}
		if n >= count || len(res) < n || res[len(res)-1].Similarity < res[min(topK, len(res))-1].Similarity {
			break
		}
		n = min(2*n, count)
	}

	results := make([]types.SearchResult, 0, len(res))
	for _, r := range res {
		results = append(results, types.SearchResult{
			Content:  r.Content,
			Metadata: fromStringMetadata(r.Metadata),
			Score:    r.Similarity,
		})
	}

	return types.SearchResponse{Results: rankResults(results, topK)}, nil
}

func (c *ChromemDB) Stats(_ context.Context) types.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return types.Stats{
		Backend:        chromemBackend,
		Collection:     c.collectionName,
		TotalDocuments: c.collection.Count(),
		Extra: map[string]any{
			"path":        c.path,
			"vector_size": c.dimension,
		},
	}
}

// DeleteCollection drops every document. A fresh empty collection takes its
// place so the store stays usable.
func (c *ChromemDB) DeleteCollection(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.DeleteCollection(c.collectionName); err != nil {
		return fmt.Errorf("%w: deleting collection %s: %v", types.ErrDestructiveOperation, c.collectionName, err)
	}
	xlog.Info("Deleted collection", "backend", chromemBackend, "collection", c.collectionName)

	collection, err := c.db.GetOrCreateCollection(c.collectionName, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("%w: recreating collection %s: %v", types.ErrDestructiveOperation, c.collectionName, err)
	}
	c.collection = collection
	return nil
}

func (c *ChromemDB) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	c.mu.RLock()
	collection := c.collection
	c.mu.RUnlock()

	if err := collection.Delete(ctx, nil, nil, derivedIDs(ids)...); err != nil {
		return fmt.Errorf("error deleting documents from %s: %w", c.collectionName, err)
	}
	return nil
}

// Export reads back every stored document with its embedding, oldest first.
// Documents keep their natural ids so adding them to another store derives
// the same backend ids. Metadata values come back as strings.
func (c *ChromemDB) Export(ctx context.Context) ([]types.Document, [][]float32, error) {
	c.mu.RLock()
	collection := c.collection
	c.mu.RUnlock()

	count := collection.Count()
	if count == 0 {
		return nil, nil, nil
	}
	if c.dimension <= 0 {
		return nil, nil, fmt.Errorf("cannot export collection %s without a vector size", c.collectionName)
	}

	// any unit vector ranks every document
	query := make([]float32, c.dimension)
	query[0] = 1
	res, err := collection.QueryEmbedding(ctx, query, count, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("error exporting collection %s: %w", c.collectionName, err)
	}

	type exported struct {
		doc       types.Document
		embedding []float32
		seq       int64
	}
	items := make([]exported, 0, len(res))
	for _, r := range res {
		metadata := fromStringMetadata(r.Metadata)
		seq := takeSequence(metadata)

		id, _ := metadata[OriginalIDKey].(string)
		if id == "" {
			id = r.ID
		}
		source, _ := metadata[SourceKey].(string)
		delete(metadata, OriginalIDKey)
		delete(metadata, SourceKey)

		items = append(items, exported{
			doc: types.Document{
				ID:       id,
				Content:  r.Content,
				Metadata: metadata,
				Source:   source,
			},
			embedding: r.Embedding,
			seq:       seq,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	docs := make([]types.Document, len(items))
	embeddings := make([][]float32, len(items))
	for i, it := range items {
		docs[i] = it.doc
		embeddings[i] = it.embedding
	}
	return docs, embeddings, nil
}

func (c *ChromemDB) CollectionExists(_ context.Context) bool {
	return c.db.GetCollection(c.collectionName, noEmbedding) != nil
}

func (c *ChromemDB) Close() error {
	return nil
}

func toStringMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float32:
			out[k] = strconv.FormatFloat(float64(val), 'f', -1, 32)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func fromStringMetadata(metadata map[string]string) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
