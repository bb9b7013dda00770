package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
)

// ErrWrite wraps collection creation, upsert, and deletion failures.
// No local retry; resilience belongs to the surrounding layer.
var ErrWrite = errors.New("vector store write error")

// StatusMissing is the degraded status CollectionInfo reports when the
// collection cannot be looked up.
const StatusMissing = "Collection does not exist"

type Config struct {
	CollectionName string
	VectorSize     uint64
	Distance       string
	RetrievalK     int
}

// ScoredDocument pairs a search hit with its similarity score.
type ScoredDocument struct {
	Document schema.Document
	Score    float32
}

// Info is the read-only introspection payload for the collection.
type Info struct {
	Name        string
	PointsCount uint64
	Status      string
}

type collectionState int

const (
	stateAbsent collectionState = iota
	stateExists
)

// Service owns one named Qdrant collection: provisioning on
// construction, batched insertion, and similarity search over it.
type Service struct {
	client   Client
	embedder Embedder
	cfg      Config
}

// Embedder is the embedding capability the store needs; satisfied by
// *embedding.Service.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// New probes the collection and creates it with the configured vector
// size and distance metric when absent.
//
// Probe-then-create is not atomic: two processes that both see the
// collection absent may both attempt creation, and the second create
// fails against the database. Known limitation, left to Qdrant's own
// duplicate-create handling.
func New(ctx context.Context, client Client, embedder Embedder, cfg Config) (*Service, error) {
	s := &Service{client: client, embedder: embedder, cfg: cfg}

	state, err := s.probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("probing collection %q: %w", cfg.CollectionName, err)
	}
	if state == stateAbsent {
		log.Info().Str("collection", cfg.CollectionName).Msg("Collection does not exist, creating")
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     cfg.VectorSize,
				Distance: distanceFromName(cfg.Distance),
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: creating collection %q: %v", ErrWrite, cfg.CollectionName, err)
		}
		log.Info().Str("collection", cfg.CollectionName).Msg("Collection created")
	} else {
		log.Info().Str("collection", cfg.CollectionName).Msg("Collection already exists")
	}
	return s, nil
}

func (s *Service) probe(ctx context.Context) (collectionState, error) {
	exists, err := s.client.CollectionExists(ctx, s.cfg.CollectionName)
	if err != nil {
		return stateAbsent, err
	}
	if exists {
		return stateExists, nil
	}
	return stateAbsent, nil
}

// AddDocuments embeds the chunks in one batched call and upserts them
// under freshly minted UUIDs. Identifiers are never derived from
// content, so re-inserting identical chunks creates new entries. An
// empty input is a deliberate no-op, not a failure.
func (s *Service) AddDocuments(ctx context.Context, docs []schema.Document) ([]string, error) {
	if len(docs) == 0 {
		log.Warn().Msg("No documents to add to the vector store")
		return []string{}, nil
	}
	log.Info().Int("documents", len(docs)).Msg("Adding documents to the vector store")

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if uint64(len(vectors[0])) != s.cfg.VectorSize {
		return nil, fmt.Errorf("%w: embedding dimension %d does not match collection size %d",
			ErrWrite, len(vectors[0]), s.cfg.VectorSize)
	}

	ids := make([]string, len(docs))
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		ids[i] = uuid.NewString()
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(ids[i]),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payloadFromDocument(doc),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.CollectionName,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: upserting %d points: %v", ErrWrite, len(points), err)
	}

	log.Info().Int("documents", len(docs)).Msg("Added documents to the vector store")
	return ids, nil
}

// Search returns the k most similar documents, best first. k <= 0 falls
// back to the configured retrieval width.
func (s *Service) Search(ctx context.Context, query string, k int) ([]schema.Document, error) {
	points, err := s.query(ctx, query, k)
	if err != nil {
		return nil, err
	}
	docs := make([]schema.Document, len(points))
	for i, point := range points {
		docs[i] = documentFromPayload(point.GetPayload())
	}
	log.Info().Int("results", len(docs)).Msg("Found similar documents")
	return docs, nil
}

// SearchWithScores is Search plus the similarity score per result, in
// the same descending order.
func (s *Service) SearchWithScores(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	points, err := s.query(ctx, query, k)
	if err != nil {
		return nil, err
	}
	results := make([]ScoredDocument, len(points))
	for i, point := range points {
		results[i] = ScoredDocument{
			Document: documentFromPayload(point.GetPayload()),
			Score:    point.GetScore(),
		}
	}
	log.Info().Int("results", len(results)).Msg("Found similar documents with scores")
	return results, nil
}

func (s *Service) query(ctx context.Context, query string, k int) ([]*qdrant.ScoredPoint, error) {
	if k <= 0 {
		k = s.cfg.RetrievalK
	}
	log.Debug().Int("k", k).Msg("Searching the vector store")

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w", s.cfg.CollectionName, err)
	}
	return points, nil
}

// Retriever returns a search-only adapter with k pre-bound, for
// composition into a downstream generation pipeline.
func (s *Service) Retriever(k int) *Retriever {
	if k <= 0 {
		k = s.cfg.RetrievalK
	}
	return &Retriever{svc: s, k: k}
}

type Retriever struct {
	svc *Service
	k   int
}

func (r *Retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	return r.svc.Search(ctx, query, r.k)
}

// DeleteCollection destroys the collection. Not idempotent: deleting a
// collection that is already gone surfaces the database's own not-found
// error as ErrWrite.
func (s *Service) DeleteCollection(ctx context.Context) error {
	log.Warn().Str("collection", s.cfg.CollectionName).Msg("Deleting collection")
	if err := s.client.DeleteCollection(ctx, s.cfg.CollectionName); err != nil {
		return fmt.Errorf("%w: deleting collection %q: %v", ErrWrite, s.cfg.CollectionName, err)
	}
	log.Info().Str("collection", s.cfg.CollectionName).Msg("Collection deleted")
	return nil
}

// CollectionInfo reports name, point count, and status. Lookup failure
// is reported data, not an error: the caller gets a degraded payload so
// liveness can be probed without error handling. This is deliberate and
// applies to this operation and HealthCheck only.
func (s *Service) CollectionInfo(ctx context.Context) Info {
	info, err := s.client.GetCollectionInfo(ctx, s.cfg.CollectionName)
	if err != nil {
		log.Error().Err(err).Str("collection", s.cfg.CollectionName).Msg("Failed to get collection info")
		return Info{Name: s.cfg.CollectionName, PointsCount: 0, Status: StatusMissing}
	}
	return Info{
		Name:        s.cfg.CollectionName,
		PointsCount: info.GetPointsCount(),
		Status:      info.GetStatus().String(),
	}
}

// HealthCheck reports whether a lightweight database round-trip
// succeeds. Every failure collapses to false, never an error.
func (s *Service) HealthCheck(ctx context.Context) bool {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		log.Error().Err(err).Msg("Qdrant health check failed")
		return false
	}
	return true
}

func distanceFromName(name string) qdrant.Distance {
	switch name {
	case "euclid":
		return qdrant.Distance_Euclid
	case "dot":
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}
