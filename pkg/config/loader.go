package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes the structured environment variables.
const EnvPrefix = "RAG_"

// legacyEnv maps the plain environment variable names to config keys.
var legacyEnv = map[string]string{
	"VECTOR_STORE_TYPE":   "vector_store.type",
	"COLLECTION_NAME":     "vector_store.collection",
	"EMBEDDING_DIM":       "vector_store.dimension",
	"BATCH_SIZE":          "vector_store.batch_size",
	"VECTOR_DB_PATH":      "vector_store.chromem.path",
	"QDRANT_URL":          "vector_store.qdrant.url",
	"QDRANT_API_KEY":      "vector_store.qdrant.api_key",
	"DATABASE_URL":        "vector_store.postgres.database_url",
	"OPENAI_API_KEY":      "openai.api_key",
	"OPENAI_API_BASE_URL": "openai.base_url",
	"PORT":                "server.port",
}

// Load builds the configuration.
//
// Precedence (highest to lowest):
//  1. RAG_<SECTION>__<FIELD> variables, e.g. RAG_QUERY__TIMEOUT=10s or
//     RAG_VECTOR_STORE__QDRANT__URL
//  2. the plain variables of legacyEnv, e.g. QDRANT_URL
//  3. the YAML file at configPath, when not empty
//  4. Default()
//
// A .env file in the working directory, if any, is loaded into the
// environment first without overriding variables already set.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return legacyEnv[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// keys absent from every source keep their Default() value
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
