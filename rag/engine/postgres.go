package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/campusrag/campusrag/rag/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mudler/xlog"
)

const pgvectorBackend = "pgvector"

// PostgresDB stores documents in a pgvector table, one table per collection.
type PostgresDB struct {
	pool           *pgxpool.Pool
	collectionName string
	tableName      string
	dimension      int
	batchSize      int
}

// NewPostgresDBCollection connects to the database and creates the vector
// extension, the collection table and its HNSW index if needed.
func NewPostgresDBCollection(ctx context.Context, collectionName, databaseURL string, dimension, batchSize int) (*PostgresDB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is required for the pgvector store", types.ErrConfiguration)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse database URL: %v", types.ErrConfiguration, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pg := &PostgresDB{
		pool:           pool,
		collectionName: collectionName,
		tableName:      sanitizeTableName(collectionName),
		dimension:      dimension,
		batchSize:      batchSize,
	}

	if err := pg.setupDatabase(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	return pg, nil
}

// sanitizeTableName turns a collection name into a safe identifier.
func sanitizeTableName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
	if len(name) > 0 && (name[0] < 'a' || name[0] > 'z') && (name[0] < 'A' || name[0] > 'Z') {
		name = "col_" + name
	}
	return strings.ToLower("documents_" + name)
}

func (p *PostgresDB) setupDatabase(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding VECTOR(%d) NOT NULL,
			updated_at TIMESTAMP DEFAULT NOW()
		)
	`, p.tableName, p.dimension))
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
		USING hnsw(embedding vector_cosine_ops)
	`, p.tableName, p.tableName))
	if err != nil {
		xlog.Warn("Failed to create HNSW index", "table", p.tableName, "error", err)
	}

	return nil
}

func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (p *PostgresDB) AddDocuments(ctx context.Context, docs []types.Document, embeddings [][]float32) (types.AddReport, error) {
	records, ok, err := prepareRecords(pgvectorBackend, docs, embeddings, p.dimension)
	if err != nil || !ok {
		return types.AddReport{}, err
	}

	upsertSQL := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3::jsonb, $4::vector)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding, updated_at = NOW()
	`, p.tableName)

	return upsertInBatches(ctx, pgvectorBackend, records, p.batchSize, func(ctx context.Context, batch []record) error {
		b := &pgx.Batch{}
		for _, r := range batch {
			content, metadata := splitPayload(r.payload)
			metadataJSON, err := json.Marshal(metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata of %s: %w", r.doc.ID, err)
			}
			b.Queue(upsertSQL, r.id, content, string(metadataJSON), formatVector(r.embedding))
		}

		// all or nothing per batch, so a failed batch can be retried item by item
		return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, b).Close()
		})
	}), nil
}

func (p *PostgresDB) Search(ctx context.Context, embedding []float32, topK int) (types.SearchResponse, error) {
	if err := types.CheckDimension(embedding, p.dimension); err != nil {
		return types.SearchResponse{}, err
	}
	if topK <= 0 {
		return empty(), nil
	}

	query := fmt.Sprintf(`
		SELECT content, metadata, (1 - (embedding <=> $1::vector))::real AS similarity
		FROM %s
		ORDER BY embedding <=> $1::vector, metadata->>'inserted_seq'
		LIMIT $2
	`, p.tableName)

	rows, err := p.pool.Query(ctx, query, formatVector(embedding), topK)
	if err != nil {
		return degraded(pgvectorBackend, err), nil
	}
	defer rows.Close()

	results := []types.SearchResult{}
	for rows.Next() {
		var r types.SearchResult
		var metadataJSON []byte
		if err := rows.Scan(&r.Content, &metadataJSON, &r.Score); err != nil {
			return degraded(pgvectorBackend, err), nil
		}

		r.Metadata = map[string]any{}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				xlog.Warn("Failed to decode metadata", "table", p.tableName, "error", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return degraded(pgvectorBackend, err), nil
	}

	return types.SearchResponse{Results: rankResults(results, topK)}, nil
}

func (p *PostgresDB) Stats(ctx context.Context) types.Stats {
	stats := types.Stats{
		Backend:    pgvectorBackend,
		Collection: p.collectionName,
		Extra: map[string]any{
			"table":       p.tableName,
			"vector_size": p.dimension,
		},
	}

	var count int
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", p.tableName)).Scan(&count)
	if err != nil {
		xlog.Error("Failed to count documents", "table", p.tableName, "error", err)
		stats.Degraded = true
		return stats
	}
	stats.TotalDocuments = count
	return stats
}

func (p *PostgresDB) DeleteCollection(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", p.tableName)); err != nil {
		return fmt.Errorf("%w: dropping table %s: %v", types.ErrDestructiveOperation, p.tableName, err)
	}
	xlog.Info("Deleted collection", "backend", pgvectorBackend, "collection", p.collectionName, "table", p.tableName)

	if err := p.setupDatabase(ctx); err != nil {
		return fmt.Errorf("%w: recreating table %s: %v", types.ErrDestructiveOperation, p.tableName, err)
	}
	return nil
}

func (p *PostgresDB) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", p.tableName)
	if _, err := p.pool.Exec(ctx, query, derivedIDs(ids)); err != nil {
		return fmt.Errorf("error deleting documents from %s: %w", p.tableName, err)
	}
	return nil
}

func (p *PostgresDB) CollectionExists(ctx context.Context) bool {
	var exists bool
	err := p.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", p.tableName).Scan(&exists)
	if err != nil {
		xlog.Error("Error checking collection existence", "backend", pgvectorBackend, "error", err)
		return false
	}
	return exists
}

func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}
