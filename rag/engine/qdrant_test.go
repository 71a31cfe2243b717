package engine_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/campusrag/campusrag/rag/engine"
	"github.com/campusrag/campusrag/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/qdrant/go-client/qdrant"
)

// fakeQdrant records upserts and can be told to fail.
type fakeQdrant struct {
	mu          sync.Mutex
	collections []string
	points      map[string]*qdrant.PointStruct
	upsertCalls int

	rejectOriginalID string
	queryErr         error
	infoErr          error
	deleteErr        error
	deletedIDs       []string
	scored           []*qdrant.ScoredPoint
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{points: map[string]*qdrant.PointStruct{}}
}

func (f *fakeQdrant) ListCollections(_ context.Context) ([]string, error) {
	return f.collections, nil
}

func (f *fakeQdrant) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.collections = append(f.collections, req.GetCollectionName())
	return nil
}

func (f *fakeQdrant) GetCollectionInfo(_ context.Context, _ string) (*qdrant.CollectionInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	count := uint64(len(f.points))
	return &qdrant.CollectionInfo{
		PointsCount: &count,
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     3,
					Distance: qdrant.Distance_Cosine,
				}),
			},
		},
	}, nil
}

func (f *fakeQdrant) DeleteCollection(_ context.Context, name string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.collections[:0]
	for _, c := range f.collections {
		if c != name {
			kept = append(kept, c)
		}
	}
	f.collections = kept
	f.points = map[string]*qdrant.PointStruct{}
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++

	for _, p := range req.GetPoints() {
		if p.GetPayload()[OriginalIDKey].GetStringValue() == f.rejectOriginalID {
			return nil, errors.New("bad point")
		}
	}
	for _, p := range req.GetPoints() {
		f.points[p.GetId().GetUuid()] = p
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Query(_ context.Context, _ *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.scored, nil
}

func (f *fakeQdrant) Delete(_ context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range req.GetPoints().GetPoints().GetIds() {
		f.deletedIDs = append(f.deletedIDs, id.GetUuid())
		delete(f.points, id.GetUuid())
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Close() error {
	return nil
}

func scoredPoint(content string, score float32) *qdrant.ScoredPoint {
	return &qdrant.ScoredPoint{
		Score: score,
		Payload: map[string]*qdrant.Value{
			ContentKey: {Kind: &qdrant.Value_StringValue{StringValue: content}},
			"year":     {Kind: &qdrant.Value_IntegerValue{IntegerValue: 1885}},
		},
	}
}

var _ = Describe("QdrantDB", func() {
	var (
		ctx    context.Context
		client *fakeQdrant
		db     *QdrantDB
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = newFakeQdrant()
		db = NewQdrantDBWithClient(client, "asu_docs", 3, 2)
	})

	Describe("AddDocuments", func() {
		docs := []types.Document{
			{ID: "a", Content: "first", Metadata: map[string]any{"tags": []string{"x"}}},
			{ID: "bad", Content: "second"},
			{ID: "c", Content: "third"},
		}
		embeddings := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

		It("should upsert under derived ids with the content in the payload", func() {
			report, err := db.AddDocuments(ctx, docs[:1], embeddings[:1])
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Persisted).To(Equal(1))

			p, ok := client.points[DerivedID("a")]
			Expect(ok).To(BeTrue())
			Expect(p.GetPayload()[ContentKey].GetStringValue()).To(Equal("first"))
			Expect(p.GetPayload()["tags"].GetStringValue()).To(Equal(`['x']`))
		})

		It("should retry a failed batch item by item", func() {
			client.rejectOriginalID = "bad"

			report, err := db.AddDocuments(ctx, docs, embeddings)
			Expect(err).ToNot(HaveOccurred())
			Expect(report).To(Equal(types.AddReport{Requested: 3, Persisted: 2, Failed: 1, Batches: 2}))
			// batch [a bad] fails, a and bad retried alone, batch [c] succeeds
			Expect(client.upsertCalls).To(Equal(4))
			Expect(client.points).To(HaveLen(2))
		})

		It("should check dimensions before any write", func() {
			_, err := db.AddDocuments(ctx, docs[:1], [][]float32{{1, 0}})
			Expect(errors.Is(err, types.ErrDimensionMismatch)).To(BeTrue())
			Expect(client.upsertCalls).To(BeZero())
		})
	})

	Describe("Search", func() {
		It("should degrade on backend failures", func() {
			client.queryErr = errors.New("connection refused")

			res, err := db.Search(ctx, []float32{1, 0, 0}, 3)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Degraded).To(BeTrue())
			Expect(res.Cause).To(MatchError("connection refused"))
			Expect(res.Results).To(BeEmpty())
		})

		It("should rank results by descending score", func() {
			client.scored = []*qdrant.ScoredPoint{
				scoredPoint("low", 0.2),
				scoredPoint("high", 0.9),
				scoredPoint("mid", 0.5),
			}

			res, err := db.Search(ctx, []float32{1, 0, 0}, 2)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Degraded).To(BeFalse())
			Expect(res.Results).To(HaveLen(2))
			Expect(res.Results[0].Content).To(Equal("high"))
			Expect(res.Results[0].Rank).To(Equal(1))
			Expect(res.Results[1].Content).To(Equal("mid"))
			Expect(res.Results[0].Metadata).To(HaveKeyWithValue("year", int64(1885)))
			Expect(res.Results[0].Metadata).ToNot(HaveKey(ContentKey))
		})

		It("should order tied scores by insertion sequence", func() {
			tied := func(content, seq string) *qdrant.ScoredPoint {
				p := scoredPoint(content, 0.7)
				p.Payload[SequenceKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: seq}}
				return p
			}
			client.scored = []*qdrant.ScoredPoint{
				tied("third", "0000000000000000030"),
				scoredPoint("unsequenced", 0.7),
				tied("first", "0000000000000000010"),
				tied("second", "0000000000000000020"),
			}

			res, err := db.Search(ctx, []float32{1, 0, 0}, 3)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Results).To(HaveLen(3))
			Expect(res.Results[0].Content).To(Equal("first"))
			Expect(res.Results[1].Content).To(Equal("second"))
			Expect(res.Results[2].Content).To(Equal("third"))
			Expect(res.Results[0].Metadata).ToNot(HaveKey(SequenceKey))
		})

		It("should fail on a dimension mismatch", func() {
			_, err := db.Search(ctx, []float32{1}, 2)
			Expect(errors.Is(err, types.ErrDimensionMismatch)).To(BeTrue())
		})
	})

	Describe("DeleteDocuments", func() {
		It("should delete the points of the derived ids", func() {
			_, err := db.AddDocuments(ctx, []types.Document{{ID: "a", Content: "first"}, {ID: "b", Content: "second"}},
				[][]float32{{1, 0, 0}, {0, 1, 0}})
			Expect(err).ToNot(HaveOccurred())

			Expect(db.DeleteDocuments(ctx, []string{"a"})).To(Succeed())
			Expect(client.deletedIDs).To(Equal([]string{DerivedID("a")}))
			Expect(client.points).To(HaveLen(1))
		})

		It("should surface backend failures", func() {
			client.deleteErr = errors.New("timeout")
			Expect(db.DeleteDocuments(ctx, []string{"a"})).To(MatchError(ContainSubstring("timeout")))
		})
	})

	Describe("Stats", func() {
		It("should report vector size and distance", func() {
			stats := db.Stats(ctx)
			Expect(stats.Degraded).To(BeFalse())
			Expect(stats.Backend).To(Equal("qdrant"))
			Expect(stats.Extra).To(HaveKeyWithValue("vector_size", uint64(3)))
			Expect(stats.Extra).To(HaveKeyWithValue("distance_metric", "Cosine"))
		})

		It("should be degraded when the backend fails", func() {
			client.infoErr = errors.New("unavailable")
			stats := db.Stats(ctx)
			Expect(stats.Degraded).To(BeTrue())
			Expect(stats.TotalDocuments).To(BeZero())
		})
	})

	Describe("DeleteCollection", func() {
		It("should propagate failures", func() {
			client.deleteErr = errors.New("forbidden")
			err := db.DeleteCollection(ctx)
			Expect(errors.Is(err, types.ErrDestructiveOperation)).To(BeTrue())
		})

		It("should leave an empty collection behind", func() {
			_, err := db.AddDocuments(ctx, []types.Document{{ID: "a", Content: "a"}}, [][]float32{{1, 0, 0}})
			Expect(err).ToNot(HaveOccurred())

			Expect(db.DeleteCollection(ctx)).To(Succeed())
			Expect(client.collections).To(ConsistOf("asu_docs"))
			Expect(db.Stats(ctx).TotalDocuments).To(BeZero())
		})
	})

	Describe("CollectionExists", func() {
		It("should look the collection up by name", func() {
			Expect(db.CollectionExists(ctx)).To(BeFalse())
			client.collections = []string{"other", "asu_docs"}
			Expect(db.CollectionExists(ctx)).To(BeTrue())
		})
	})
})
