package engine

import (
	"context"
	"fmt"

	"github.com/campusrag/campusrag/rag/interfaces"
	"github.com/campusrag/campusrag/rag/types"
	"github.com/mudler/xlog"
)

// Migrate copies every document of a local chromem collection into dst.
// The returned report comes from dst; a partial copy is an error.
func Migrate(ctx context.Context, src *ChromemDB, dst interfaces.VectorStore) (types.AddReport, error) {
	docs, embeddings, err := src.Export(ctx)
	if err != nil {
		return types.AddReport{}, err
	}
	if len(docs) == 0 {
		xlog.Info("Nothing to migrate", "collection", src.collectionName)
		return types.AddReport{}, nil
	}

	report, err := dst.AddDocuments(ctx, docs, embeddings)
	if err != nil {
		return report, fmt.Errorf("error migrating collection %s: %w", src.collectionName, err)
	}

	xlog.Info("Migrated collection",
		"collection", src.collectionName,
		"exported", len(docs),
		"persisted", report.Persisted,
		"failed", report.Failed)

	if report.Persisted != len(docs) {
		return report, fmt.Errorf("migrated %d of %d documents from %s", report.Persisted, len(docs), src.collectionName)
	}
	return report, nil
}
