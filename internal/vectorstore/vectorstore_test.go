package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

type fakeEmbedder struct {
	dim        int
	queryCalls int
	batchCalls int
	err        error
}

// textVector derives a deterministic normalized vector from the text, so
// identical texts embed identically and similarity ranking is stable.
func textVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i, r := range text {
		vec[i%dim] += float32(r) * float32(i%7+1)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queryCalls++
	if f.err != nil {
		return nil, f.err
	}
	return textVector(text, f.dim), nil
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = textVector(text, f.dim)
	}
	return vectors, nil
}

type storedPoint struct {
	id      string
	vector  []float32
	payload map[string]*qdrant.Value
}

type fakeClient struct {
	exists    bool
	existsErr error
	createErr error
	deleteErr error
	upsertErr error
	queryErr  error
	infoErr   error
	healthErr error

	info *qdrant.CollectionInfo

	createCalls int
	upsertCalls int
	queryCalls  int
	deleteCalls int

	lastCreate *qdrant.CreateCollection
	lastQuery  *qdrant.QueryPoints

	points []storedPoint
}

func (f *fakeClient) CollectionExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeClient) CreateCollection(_ context.Context, request *qdrant.CreateCollection) error {
	f.createCalls++
	f.lastCreate = request
	if f.createErr != nil {
		return f.createErr
	}
	f.exists = true
	return nil
}

func (f *fakeClient) DeleteCollection(_ context.Context, _ string) error {
	f.deleteCalls++
	return f.deleteErr
}

func (f *fakeClient) GetCollectionInfo(_ context.Context, _ string) (*qdrant.CollectionInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info, nil
}

func (f *fakeClient) Upsert(_ context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upsertCalls++
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	for _, point := range request.GetPoints() {
		f.points = append(f.points, storedPoint{
			id:      point.GetId().GetUuid(),
			vector:  point.GetVectors().GetVector().GetDense().GetData(),
			payload: point.GetPayload(),
		})
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Query(_ context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queryCalls++
	f.lastQuery = request
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	queryVec := request.GetQuery().GetNearest().GetDense().GetData()
	results := make([]*qdrant.ScoredPoint, 0, len(f.points))
	for _, point := range f.points {
		var score float32
		for i := range queryVec {
			if i < len(point.vector) {
				score += queryVec[i] * point.vector[i]
			}
		}
		results = append(results, &qdrant.ScoredPoint{
			Id:      qdrant.NewID(point.id),
			Score:   score,
			Payload: point.payload,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	limit := int(request.GetLimit())
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeClient) HealthCheck(_ context.Context) (*qdrant.HealthCheckReply, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &qdrant.HealthCheckReply{}, nil
}

func testConfig() Config {
	return Config{
		CollectionName: "test_collection",
		VectorSize:     8,
		Distance:       "cosine",
		RetrievalK:     4,
	}
}

func newTestService(t *testing.T, client *fakeClient, embedder *fakeEmbedder) *Service {
	t.Helper()
	svc, err := New(context.Background(), client, embedder, testConfig())
	require.NoError(t, err)
	return svc
}

func TestNewCreatesAbsentCollection(t *testing.T) {
	client := &fakeClient{exists: false}
	newTestService(t, client, &fakeEmbedder{dim: 8})

	require.Equal(t, 1, client.createCalls)
	require.NotNil(t, client.lastCreate)
	assert.Equal(t, "test_collection", client.lastCreate.GetCollectionName())
	params := client.lastCreate.GetVectorsConfig().GetParams()
	require.NotNil(t, params)
	assert.Equal(t, uint64(8), params.GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, params.GetDistance())
}

func TestNewSkipsCreateWhenCollectionExists(t *testing.T) {
	client := &fakeClient{exists: false}
	embedder := &fakeEmbedder{dim: 8}
	newTestService(t, client, embedder)
	require.Equal(t, 1, client.createCalls)

	// second construction against the now-existing collection
	newTestService(t, client, embedder)
	assert.Equal(t, 1, client.createCalls)
}

func TestNewProbeError(t *testing.T) {
	client := &fakeClient{existsErr: errors.New("unavailable")}
	_, err := New(context.Background(), client, &fakeEmbedder{dim: 8}, testConfig())
	require.Error(t, err)
	assert.Zero(t, client.createCalls)
}

func TestNewCreateError(t *testing.T) {
	client := &fakeClient{exists: false, createErr: errors.New("conflict")}
	_, err := New(context.Background(), client, &fakeEmbedder{dim: 8}, testConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)
}

func TestAddDocumentsEmpty(t *testing.T) {
	client := &fakeClient{exists: true}
	embedder := &fakeEmbedder{dim: 8}
	svc := newTestService(t, client, embedder)

	ids, err := svc.AddDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, client.upsertCalls)
	assert.Zero(t, embedder.batchCalls)
}

func TestAddDocuments(t *testing.T) {
	client := &fakeClient{exists: true}
	embedder := &fakeEmbedder{dim: 8}
	svc := newTestService(t, client, embedder)

	docs := []schema.Document{
		{PageContent: "alpha chunk", Metadata: map[string]any{"source": "a.txt"}},
		{PageContent: "bravo chunk", Metadata: map[string]any{"source": "a.txt"}},
		{PageContent: "charlie chunk", Metadata: map[string]any{"source": "b.txt"}},
	}

	ids, err := svc.AddDocuments(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	seen := map[string]bool{}
	for _, id := range ids {
		_, parseErr := uuid.Parse(id)
		assert.NoError(t, parseErr)
		assert.False(t, seen[id], "identifiers must be unique")
		seen[id] = true
	}
	assert.Equal(t, 1, embedder.batchCalls, "chunk texts are embedded in one batched call")
	assert.Equal(t, 1, client.upsertCalls)
	assert.Len(t, client.points, 3)
}

func TestAddDocumentsEmbeddingFailure(t *testing.T) {
	client := &fakeClient{exists: true}
	embedder := &fakeEmbedder{dim: 8}
	svc := newTestService(t, client, embedder)

	embedder.err = errors.New("quota exceeded")
	_, err := svc.AddDocuments(context.Background(), []schema.Document{{PageContent: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)
	assert.Zero(t, client.upsertCalls)
}

func TestAddDocumentsDimensionMismatch(t *testing.T) {
	client := &fakeClient{exists: true}
	svc := newTestService(t, client, &fakeEmbedder{dim: 8})

	mismatched := &fakeEmbedder{dim: 4}
	svc.embedder = mismatched

	_, err := svc.AddDocuments(context.Background(), []schema.Document{{PageContent: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)
	assert.Zero(t, client.upsertCalls)
}

func TestAddDocumentsUpsertFailure(t *testing.T) {
	client := &fakeClient{exists: true, upsertErr: errors.New("write refused")}
	svc := newTestService(t, client, &fakeEmbedder{dim: 8})

	_, err := svc.AddDocuments(context.Background(), []schema.Document{{PageContent: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)
}

func TestSearchRanksIdenticalChunkFirst(t *testing.T) {
	client := &fakeClient{exists: true}
	svc := newTestService(t, client, &fakeEmbedder{dim: 8})

	docs := []schema.Document{
		{PageContent: "the capital of france is paris", Metadata: map[string]any{"source": "geo.txt"}},
		{PageContent: "go is a statically typed language", Metadata: map[string]any{"source": "lang.txt"}},
		{PageContent: "qdrant stores vectors with payloads", Metadata: map[string]any{"source": "db.txt"}},
	}
	_, err := svc.AddDocuments(context.Background(), docs)
	require.NoError(t, err)

	results, err := svc.SearchWithScores(context.Background(), "go is a statically typed language", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "go is a statically typed language", results[0].Document.PageContent)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "results must be in descending score order")
	}
}

func TestSearchRoundTripsPayload(t *testing.T) {
	client := &fakeClient{exists: true}
	svc := newTestService(t, client, &fakeEmbedder{dim: 8})

	doc := schema.Document{
		PageContent: "page three content",
		Metadata:    map[string]any{"source": "doc.pdf", "page": 3, "total_pages": 10},
	}
	_, err := svc.AddDocuments(context.Background(), []schema.Document{doc})
	require.NoError(t, err)

	found, err := svc.Search(context.Background(), "page three content", 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "page three content", found[0].PageContent)
	assert.Equal(t, "doc.pdf", found[0].Metadata["source"])
	assert.EqualValues(t, 3, found[0].Metadata["page"])
	assert.EqualValues(t, 10, found[0].Metadata["total_pages"])
}

func TestSearchDefaultK(t *testing.T) {
	client := &fakeClient{exists: true}
	svc := newTestService(t, client, &fakeEmbedder{dim: 8})

	_, err := svc.Search(context.Background(), "anything", 0)
	require.NoError(t, err)
	require.NotNil(t, client.lastQuery)
	assert.Equal(t, uint64(4), client.lastQuery.GetLimit())

	_, err = svc.Search(context.Background(), "anything", 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), client.lastQuery.GetLimit())
}

func TestRetriever(t *testing.T) {
	client := &fakeClient{exists: true}
	svc := newTestService(t, client, &fakeEmbedder{dim: 8})

	_, err := svc.AddDocuments(context.Background(), []schema.Document{
		{PageContent: "retriever target", Metadata: map[string]any{"source": "r.txt"}},
	})
	require.NoError(t, err)

	retriever := svc.Retriever(2)
	docs, err := retriever.GetRelevantDocuments(context.Background(), "retriever target")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "retriever target", docs[0].PageContent)
	assert.Equal(t, uint64(2), client.lastQuery.GetLimit())
}

func TestDeleteCollection(t *testing.T) {
	client := &fakeClient{exists: true}
	svc := newTestService(t, client, &fakeEmbedder{dim: 8})

	require.NoError(t, svc.DeleteCollection(context.Background()))
	assert.Equal(t, 1, client.deleteCalls)

	// a second delete surfaces the database's own not-found error
	client.deleteErr = errors.New("collection not found")
	err := svc.DeleteCollection(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)
}

func TestCollectionInfo(t *testing.T) {
	client := &fakeClient{
		exists: true,
		info: &qdrant.CollectionInfo{
			Status:      qdrant.CollectionStatus_Green,
			PointsCount: qdrant.PtrOf(uint64(42)),
		},
	}
	svc := newTestService(t, client, &fakeEmbedder{dim: 8})

	info := svc.CollectionInfo(context.Background())
	assert.Equal(t, "test_collection", info.Name)
	assert.Equal(t, uint64(42), info.PointsCount)
	assert.Equal(t, "Green", info.Status)
}

func TestCollectionInfoDegradedOnFailure(t *testing.T) {
	client := &fakeClient{exists: true}
	svc := newTestService(t, client, &fakeEmbedder{dim: 8})

	client.infoErr = errors.New("not found")
	info := svc.CollectionInfo(context.Background())
	assert.Equal(t, "test_collection", info.Name)
	assert.Zero(t, info.PointsCount)
	assert.Equal(t, StatusMissing, info.Status)
}

func TestHealthCheck(t *testing.T) {
	client := &fakeClient{exists: true}
	svc := newTestService(t, client, &fakeEmbedder{dim: 8})

	assert.True(t, svc.HealthCheck(context.Background()))

	client.healthErr = errors.New("connection refused")
	assert.False(t, svc.HealthCheck(context.Background()))
}

func TestParseQdrantURL(t *testing.T) {
	tests := []struct {
		raw     string
		host    string
		port    int
		useTLS  bool
		wantErr bool
	}{
		{raw: "http://localhost:6334", host: "localhost", port: 6334},
		{raw: "http://localhost", host: "localhost", port: 6334},
		{raw: "https://cluster.cloud.qdrant.io:6334", host: "cluster.cloud.qdrant.io", port: 6334, useTLS: true},
		{raw: "https://cluster.cloud.qdrant.io", host: "cluster.cloud.qdrant.io", port: 6334, useTLS: true},
		{raw: "http://", wantErr: true},
		{raw: "http://host:notaport", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, port, useTLS, err := parseQdrantURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.useTLS, useTLS)
		})
	}
}
