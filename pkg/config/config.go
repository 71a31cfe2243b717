// Package config loads the service configuration.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/campusrag/campusrag/rag/engine"
	"github.com/campusrag/campusrag/rag/llm"
	"github.com/campusrag/campusrag/rag/types"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	VectorStore VectorStoreConfig `koanf:"vector_store"`
	OpenAI      OpenAIConfig      `koanf:"openai"`
	Cache       CacheConfig       `koanf:"cache"`
	Query       QueryConfig       `koanf:"query"`
	Ingest      IngestConfig      `koanf:"ingest"`
}

type ServerConfig struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	ServiceName string `koanf:"service_name"`
}

// Address is the listen address of the HTTP server.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type VectorStoreConfig struct {
	// Type is chromem (chromadb, local), qdrant or pgvector (postgres).
	Type       string         `koanf:"type"`
	Collection string         `koanf:"collection"`
	Dimension  int            `koanf:"dimension"`
	BatchSize  int            `koanf:"batch_size"`
	Chromem    ChromemConfig  `koanf:"chromem"`
	Qdrant     QdrantConfig   `koanf:"qdrant"`
	Postgres   PostgresConfig `koanf:"postgres"`
}

type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

type QdrantConfig struct {
	URL    string `koanf:"url"`
	APIKey string `koanf:"api_key"`
	// Port is the gRPC port.
	Port int `koanf:"port"`
}

type PostgresConfig struct {
	DatabaseURL string `koanf:"database_url"`
}

type OpenAIConfig struct {
	APIKey         string  `koanf:"api_key"`
	BaseURL        string  `koanf:"base_url"`
	EmbeddingModel string  `koanf:"embedding_model"`
	ChatModel      string  `koanf:"chat_model"`
	MaxTokens      int     `koanf:"max_tokens"`
	Temperature    float32 `koanf:"temperature"`
}

type CacheConfig struct {
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

type QueryConfig struct {
	Timeout         time.Duration `koanf:"timeout"`
	TopK            int           `koanf:"top_k"`
	MaxContextChars int           `koanf:"max_context_chars"`
}

type IngestConfig struct {
	ChunkSize int `koanf:"chunk_size"`
	// LedgerPath is the state file listing ingested sources.
	LedgerPath      string        `koanf:"ledger_path"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	GitPrivateKey   string        `koanf:"git_private_key"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8000,
			ServiceName: "asu-rag-api-optimized",
		},
		VectorStore: VectorStoreConfig{
			Type:       engine.TypeChromem,
			Collection: "asu_docs",
			Dimension:  1536,
			BatchSize:  engine.DefaultBatchSize,
			Chromem:    ChromemConfig{Path: "./data/vector_db"},
			Qdrant:     QdrantConfig{Port: engine.DefaultQdrantPort},
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      llm.DefaultChatModel,
			MaxTokens:      llm.DefaultMaxTokens,
			Temperature:    llm.DefaultTemperature,
		},
		Cache: CacheConfig{
			TTL:        time.Hour,
			MaxEntries: 100,
		},
		Query: QueryConfig{
			Timeout:         15 * time.Second,
			TopK:            3,
			MaxContextChars: 4000,
		},
		Ingest: IngestConfig{
			ChunkSize:  1000,
			LedgerPath: "./data/sources.json",
		},
	}
}

// Validate checks the configuration. Every failure wraps ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.Engine().Validate(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port %d", types.ErrConfiguration, c.Server.Port)
	}
	if c.Cache.TTL <= 0 || c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("%w: cache ttl and max entries must be positive", types.ErrConfiguration)
	}
	if c.Query.Timeout <= 0 || c.Query.TopK <= 0 {
		return fmt.Errorf("%w: query timeout and top_k must be positive", types.ErrConfiguration)
	}
	return nil
}

// RequireOpenAI reports a missing API key. Only commands that embed or
// generate need it.
func (c *Config) RequireOpenAI() error {
	if c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is required", types.ErrConfiguration)
	}
	return nil
}

// Engine returns the vector store factory configuration.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Type:            c.VectorStore.Type,
		Collection:      c.VectorStore.Collection,
		Dimension:       c.VectorStore.Dimension,
		BatchSize:       c.VectorStore.BatchSize,
		ChromemPath:     c.VectorStore.Chromem.Path,
		ChromemCompress: c.VectorStore.Chromem.Compress,
		Qdrant: engine.QdrantConfig{
			URL:    c.VectorStore.Qdrant.URL,
			APIKey: c.VectorStore.Qdrant.APIKey,
			Port:   c.VectorStore.Qdrant.Port,
		},
		DatabaseURL: c.VectorStore.Postgres.DatabaseURL,
	}
}

// LLM returns the OpenAI client configuration.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		APIKey:         c.OpenAI.APIKey,
		BaseURL:        c.OpenAI.BaseURL,
		EmbeddingModel: c.OpenAI.EmbeddingModel,
		ChatModel:      c.OpenAI.ChatModel,
		MaxTokens:      c.OpenAI.MaxTokens,
		Temperature:    c.OpenAI.Temperature,
	}
}
