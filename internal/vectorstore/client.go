package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
)

// Client is the slice of the Qdrant API the service depends on.
// *qdrant.Client satisfies it; tests inject fakes.
type Client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
}

type ClientConfig struct {
	URL    string
	APIKey string
}

// The gRPC client is shared process-wide: repeated NewClient calls with
// the same configuration return the same connection. Initialized on
// first use, never closed.
var (
	clientMu     sync.Mutex
	cachedCfg    ClientConfig
	cachedClient *qdrant.Client
)

func NewClient(cfg ClientConfig) (*qdrant.Client, error) {
	clientMu.Lock()
	defer clientMu.Unlock()
	if cachedClient != nil && cfg == cachedCfg {
		return cachedClient, nil
	}

	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing qdrant client: %w", err)
	}

	log.Info().Str("host", host).Int("port", port).Msg("Initialized Qdrant client")
	cachedClient, cachedCfg = client, cfg
	return client, nil
}

func parseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("parsing qdrant url %q: %w", raw, err)
	}
	host = u.Hostname()
	if host == "" {
		return "", 0, false, fmt.Errorf("qdrant url %q has no host", raw)
	}
	port = 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("qdrant url %q has invalid port: %w", raw, err)
		}
	}
	return host, port, u.Scheme == "https", nil
}
