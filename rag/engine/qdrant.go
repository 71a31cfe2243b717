package engine

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"time"

	"github.com/campusrag/campusrag/rag/types"
	"github.com/mudler/xlog"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

const qdrantBackend = "qdrant"

// DefaultQdrantPort is Qdrant's gRPC port (the REST API listens on 6333).
const DefaultQdrantPort = 6334

// qdrantClient is the subset of *qdrant.Client used by QdrantDB.
type qdrantClient interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// QdrantConfig holds the connection details of a Qdrant deployment.
type QdrantConfig struct {
	// URL of the cluster, e.g. https://xyz.cloud.qdrant.io. The scheme
	// selects TLS; only the host is used since the client speaks gRPC.
	URL    string
	APIKey string
	// Port is the gRPC port. Default: 6334
	Port int
	// MaxMessageSize bounds gRPC messages in bytes. Default: 50MB
	MaxMessageSize int
}

// QdrantDB is the remote managed store.
type QdrantDB struct {
	client         qdrantClient
	collectionName string
	dimension      int
	batchSize      int
	url            string
}

// NewQdrantDBCollection connects to Qdrant and creates the collection with
// cosine distance if it does not exist yet.
func NewQdrantDBCollection(ctx context.Context, collection string, cfg QdrantConfig, dimension, batchSize int) (*QdrantDB, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: invalid qdrant url %q", types.ErrConfiguration, cfg.URL)
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultQdrantPort
	}
	maxMessageSize := cfg.MaxMessageSize
	if maxMessageSize == 0 {
		maxMessageSize = 50 * 1024 * 1024
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	q := newQdrantDB(client, collection, cfg.URL, dimension, batchSize)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := q.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return q, nil
}

func newQdrantDB(client qdrantClient, collection, url string, dimension, batchSize int) *QdrantDB {
	return &QdrantDB{
		client:         client,
		collectionName: collection,
		dimension:      dimension,
		batchSize:      batchSize,
		url:            url,
	}
}

func (q *QdrantDB) ensureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("error listing qdrant collections: %w", err)
	}
	for _, name := range collections {
		if name == q.collectionName {
			xlog.Info("Loaded existing collection", "backend", qdrantBackend, "collection", q.collectionName)
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("error creating collection %s: %w", q.collectionName, err)
	}
	xlog.Info("Created new collection", "backend", qdrantBackend, "collection", q.collectionName, "vector_size", q.dimension)
	return nil
}

func (q *QdrantDB) AddDocuments(ctx context.Context, docs []types.Document, embeddings [][]float32) (types.AddReport, error) {
	records, ok, err := prepareRecords(qdrantBackend, docs, embeddings, q.dimension)
	if err != nil || !ok {
		return types.AddReport{}, err
	}

	return upsertInBatches(ctx, qdrantBackend, records, q.batchSize, func(ctx context.Context, batch []record) error {
		points := make([]*qdrant.PointStruct, len(batch))
		for i, r := range batch {
			points[i] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(r.id),
				Vectors: qdrant.NewVectors(r.embedding...),
				Payload: toQdrantPayload(r.payload),
			}
		}
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}), nil
}

func (q *QdrantDB) Search(ctx context.Context, embedding []float32, topK int) (types.SearchResponse, error) {
	if err := types.CheckDimension(embedding, q.dimension); err != nil {
		return types.SearchResponse{}, err
	}
	if topK <= 0 {
		return empty(), nil
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return degraded(qdrantBackend, err), nil
	}

	results := make([]types.SearchResult, 0, len(points))
	for _, p := range points {
		content, metadata := splitPayload(fromQdrantPayload(p.GetPayload()))
		results = append(results, types.SearchResult{
			Content:  content,
			Metadata: metadata,
			// cosine collections already report similarity
			Score: p.GetScore(),
		})
	}

	return types.SearchResponse{Results: rankResults(results, topK)}, nil
}

func (q *QdrantDB) Stats(ctx context.Context) types.Stats {
	stats := types.Stats{Backend: qdrantBackend, Collection: q.collectionName}

	info, err := q.client.GetCollectionInfo(ctx, q.collectionName)
	if err != nil {
		xlog.Error("Error getting collection stats", "backend", qdrantBackend, "collection", q.collectionName, "error", err)
		stats.Degraded = true
		return stats
	}

	stats.TotalDocuments = int(info.GetPointsCount())
	stats.Extra = map[string]any{"url": q.url}
	if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
		stats.Extra["vector_size"] = params.GetSize()
		stats.Extra["distance_metric"] = params.GetDistance().String()
	}
	return stats
}

func (q *QdrantDB) DeleteCollection(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.collectionName); err != nil {
		return fmt.Errorf("%w: deleting collection %s: %v", types.ErrDestructiveOperation, q.collectionName, err)
	}
	xlog.Info("Deleted collection", "backend", qdrantBackend, "collection", q.collectionName)

	if err := q.ensureCollection(ctx); err != nil {
		return fmt.Errorf("%w: recreating collection %s: %v", types.ErrDestructiveOperation, q.collectionName, err)
	}
	return nil
}

func (q *QdrantDB) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]*qdrant.PointId, len(ids))
	for i, id := range derivedIDs(ids) {
		points[i] = qdrant.NewIDUUID(id)
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorIDs(points),
	})
	if err != nil {
		return fmt.Errorf("error deleting points from %s: %w", q.collectionName, err)
	}
	return nil
}

func (q *QdrantDB) CollectionExists(ctx context.Context) bool {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		xlog.Error("Error checking collection existence", "backend", qdrantBackend, "error", err)
		return false
	}
	for _, name := range collections {
		if name == q.collectionName {
			return true
		}
	}
	return false
}

func (q *QdrantDB) Close() error {
	return q.client.Close()
}

func toQdrantPayload(payload map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		out[k] = toQdrantValue(v)
	}
	return out
}

// toQdrantValue converts a sanitized (scalar) value.
func toQdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: rv.Int()}}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(rv.Uint())}}
	case reflect.Float32, reflect.Float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: rv.Float()}}
	}
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprint(v)}}
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = val.BoolValue
		case *qdrant.Value_NullValue:
			out[k] = ""
		default:
			out[k] = v.String()
		}
	}
	return out
}
