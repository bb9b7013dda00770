package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for configuration that can never work.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	QdrantURL            string `yaml:"qdrant_url"`
	QdrantAPIKey         string `yaml:"qdrant_api_key"`
	QdrantCollectionName string `yaml:"qdrant_collection_name"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	RetrievalK int `yaml:"retrieval_k"`

	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`
	DistanceMetric     string `yaml:"distance_metric"`

	LogLevel string `yaml:"log_level"`

	AppName    string `yaml:"app_name"`
	AppVersion string `yaml:"app_version"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.QdrantCollectionName == "" {
		cfg.QdrantCollectionName = "rag_qa_collection"
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.RetrievalK == 0 {
		cfg.RetrievalK = 4
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.EmbeddingDimension == 0 {
		cfg.EmbeddingDimension = 1536
	}
	if cfg.DistanceMetric == "" {
		cfg.DistanceMetric = "cosine"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppName == "" {
		cfg.AppName = "RAG Q&A System"
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = "0.1.0"
	}
}

// Validate fails fast on construction-time invariants so that bad
// settings never surface later, mid-pipeline.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalid, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap must not be negative, got %d", ErrInvalid, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			ErrInvalid, c.ChunkOverlap, c.ChunkSize)
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("%w: retrieval_k must be positive, got %d", ErrInvalid, c.RetrievalK)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: embedding_dimension must be positive, got %d", ErrInvalid, c.EmbeddingDimension)
	}
	switch c.DistanceMetric {
	case "cosine", "euclid", "dot":
	default:
		return fmt.Errorf("%w: unknown distance_metric %q", ErrInvalid, c.DistanceMetric)
	}
	return nil
}
