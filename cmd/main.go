package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ragqa/internal/config"
	"ragqa/internal/embedding"
	"ragqa/internal/parser"
	"ragqa/internal/splitter"
	"ragqa/internal/vectorstore"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to a document file to ingest")
	query := flag.String("query", "", "Similarity search query")
	k := flag.Int("k", 0, "Number of results to return (0 uses the configured default)")
	withScores := flag.Bool("with-scores", false, "Include similarity scores in query output")
	info := flag.Bool("info", false, "Print collection info")
	health := flag.Bool("health", false, "Check vector database health")
	drop := flag.Bool("drop", false, "Delete the collection")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.LogLevel)

	ctx := context.Background()

	client, err := vectorstore.NewClient(vectorstore.ClientConfig{
		URL:    cfg.QdrantURL,
		APIKey: cfg.QdrantAPIKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing Qdrant client")
	}

	embedder, err := embedding.New(embedding.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.EmbeddingModel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	store, err := vectorstore.New(ctx, client, embedder, vectorstore.Config{
		CollectionName: cfg.QdrantCollectionName,
		VectorSize:     uint64(cfg.EmbeddingDimension),
		Distance:       cfg.DistanceMetric,
		RetrievalK:     cfg.RetrievalK,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing vector store")
	}

	switch {
	case *filePath != "":
		ingestFile(ctx, cfg, store, *filePath)
	case *query != "":
		searchStore(ctx, store, *query, *k, *withScores)
	case *info:
		printInfo(ctx, store)
	case *health:
		if !store.HealthCheck(ctx) {
			log.Fatal().Msg("Vector database is unreachable")
		}
		fmt.Println("ok")
	case *drop:
		if err := store.DeleteCollection(ctx); err != nil {
			log.Fatal().Err(err).Msg("Error deleting collection")
		}
	default:
		log.Fatal().Msg("Please provide one of -file, -query, -info, -health or -drop")
	}
}

func ingestFile(ctx context.Context, cfg *config.Config, store *vectorstore.Service, filePath string) {
	docs, err := parser.Load(ctx, filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading document")
	}

	split, err := splitter.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing splitter")
	}
	chunks := split.Split(docs)

	ids, err := store.AddDocuments(ctx, chunks)
	if err != nil {
		log.Fatal().Err(err).Msg("Error adding documents")
	}
	log.Info().Int("chunks", len(ids)).Str("file", filePath).Msg("Ingested file")
}

func searchStore(ctx context.Context, store *vectorstore.Service, query string, k int, withScores bool) {
	if withScores {
		results, err := store.SearchWithScores(ctx, query, k)
		if err != nil {
			log.Fatal().Err(err).Msg("Error searching")
		}
		for i, r := range results {
			fmt.Printf("[%d] score=%.4f source=%v\n%s\n\n", i+1, r.Score, r.Document.Metadata["source"], r.Document.PageContent)
		}
		return
	}
	docs, err := store.Search(ctx, query, k)
	if err != nil {
		log.Fatal().Err(err).Msg("Error searching")
	}
	for i, doc := range docs {
		fmt.Printf("[%d] source=%v\n%s\n\n", i+1, doc.Metadata["source"], doc.PageContent)
	}
}

func printInfo(ctx context.Context, store *vectorstore.Service) {
	info := store.CollectionInfo(ctx)
	fmt.Printf("collection: %s\npoints: %d\nstatus: %s\n", info.Name, info.PointsCount, info.Status)
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
