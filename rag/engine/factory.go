package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/campusrag/campusrag/rag/interfaces"
	"github.com/campusrag/campusrag/rag/types"
)

// Supported store types. Aliases are resolved by Normalize.
const (
	TypeChromem  = "chromem"
	TypeQdrant   = "qdrant"
	TypePgvector = "pgvector"
)

var typeAliases = map[string]string{
	TypeChromem:  TypeChromem,
	"chromadb":   TypeChromem,
	"local":      TypeChromem,
	TypeQdrant:   TypeQdrant,
	TypePgvector: TypePgvector,
	"postgres":   TypePgvector,
}

// Config selects and configures the vector store backend.
type Config struct {
	Type       string
	Collection string
	Dimension  int
	BatchSize  int

	ChromemPath     string
	ChromemCompress bool

	Qdrant QdrantConfig

	DatabaseURL string
}

// Info describes the active store configuration without touching the store.
type Info struct {
	Type               string `json:"vector_store_type"`
	Collection         string `json:"collection_name"`
	QdrantURL          string `json:"qdrant_url,omitempty"`
	ChromemPath        string `json:"chroma_path,omitempty"`
	DatabaseConfigured bool   `json:"database_configured"`
}

// Normalize resolves aliases. It fails with ErrConfiguration for unknown types.
func Normalize(storeType string) (string, error) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(storeType))]
	if !ok {
		return "", fmt.Errorf("%w: unsupported vector store type %q, supported: chromem (chromadb, local), qdrant, pgvector (postgres)",
			types.ErrConfiguration, storeType)
	}
	return t, nil
}

// Validate checks the configuration without any I/O.
func (c Config) Validate() error {
	t, err := Normalize(c.Type)
	if err != nil {
		return err
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name is required", types.ErrConfiguration)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", types.ErrConfiguration, c.Dimension)
	}

	switch t {
	case TypeQdrant:
		if c.Qdrant.URL == "" || c.Qdrant.APIKey == "" {
			return fmt.Errorf("%w: QDRANT_URL and QDRANT_API_KEY are required for the qdrant store", types.ErrConfiguration)
		}
	case TypePgvector:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the pgvector store", types.ErrConfiguration)
		}
	}
	return nil
}

// New builds the configured store.
func New(ctx context.Context, cfg Config) (interfaces.VectorStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	t, _ := Normalize(cfg.Type)
	switch t {
	case TypeQdrant:
		return NewQdrantDBCollection(ctx, cfg.Collection, cfg.Qdrant, cfg.Dimension, batchSize)
	case TypePgvector:
		return NewPostgresDBCollection(ctx, cfg.Collection, cfg.DatabaseURL, cfg.Dimension, batchSize)
	default:
		return NewChromemDBCollection(cfg.Collection, cfg.ChromemPath, cfg.ChromemCompress, cfg.Dimension, batchSize)
	}
}

// Inspect reports the active configuration.
func Inspect(cfg Config) Info {
	t, err := Normalize(cfg.Type)
	if err != nil {
		t = cfg.Type
	}

	info := Info{
		Type:               t,
		Collection:         cfg.Collection,
		DatabaseConfigured: cfg.DatabaseURL != "",
	}
	switch t {
	case TypeQdrant:
		info.QdrantURL = cfg.Qdrant.URL
	case TypeChromem:
		info.ChromemPath = cfg.ChromemPath
	}
	return info
}
