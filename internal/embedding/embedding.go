package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrService wraps every remote embedding failure (network, auth, quota).
// There is no local retry; the caller decides.
var ErrService = errors.New("embedding service error")

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client construction is expensive, so the underlying langchaingo
// embedder is cached process-wide: repeated New calls with the same
// configuration share one client. Initialized on first use, never torn
// down.
var (
	clientMu  sync.Mutex
	cachedCfg Config
	cached    *embeddings.EmbedderImpl
)

func newEmbedder(cfg Config) (*embeddings.EmbedderImpl, error) {
	clientMu.Lock()
	defer clientMu.Unlock()
	if cached != nil && cfg == cachedCfg {
		return cached, nil
	}

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing embedding LLM: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	log.Info().Str("model", cfg.Model).Msg("Initialized embeddings client")
	cached, cachedCfg = embedder, cfg
	return embedder, nil
}

// Service maps text to fixed-length vectors via a remote embedding API.
type Service struct {
	embedder embeddings.Embedder
	model    string
}

func New(cfg Config) (*Service, error) {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{embedder: embedder, model: cfg.Model}, nil
}

// NewFromEmbedder wires an explicit embedder implementation instead of
// the shared client.
func NewFromEmbedder(embedder embeddings.Embedder, model string) *Service {
	return &Service{embedder: embedder, model: model}
}

// EmbedQuery embeds a single query string.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	log.Debug().Int("length", len(text)).Msg("Generating embedding for query")
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrService, err)
	}
	log.Debug().Int("dimension", len(vector)).Msg("Generated query embedding")
	return vector, nil
}

// EmbedDocuments embeds a batch of texts in one call; result order
// matches input order.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debug().Int("documents", len(texts)).Msg("Generating embeddings for documents")
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding %d documents: %v", ErrService, len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedding count mismatch: got %d, want %d", ErrService, len(vectors), len(texts))
	}
	log.Debug().Int("documents", len(vectors)).Msg("Generated document embeddings")
	return vectors, nil
}

// Model reports the configured embedding model name.
func (s *Service) Model() string {
	return s.model
}
