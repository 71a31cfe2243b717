package rag

import (
	"context"
	"time"

	"github.com/mudler/xlog"
)

// DefaultRefreshCheckInterval is how often the SourceManager looks for
// sources due for an update.
const DefaultRefreshCheckInterval = time.Minute

// SourceManager re-ingests the ledger sources that carry an update interval.
type SourceManager struct {
	ingestor *Ingestor
	ledger   *Ledger
	every    time.Duration
	now      func() time.Time
}

func NewSourceManager(ingestor *Ingestor, ledger *Ledger, every time.Duration) *SourceManager {
	if every <= 0 {
		every = DefaultRefreshCheckInterval
	}
	return &SourceManager{ingestor: ingestor, ledger: ledger, every: every, now: time.Now}
}

// Due returns the sources whose update interval has elapsed.
func (sm *SourceManager) Due() []LedgerEntry {
	var due []LedgerEntry
	for _, e := range sm.ledger.Entries() {
		if e.UpdateInterval > 0 && sm.now().Sub(e.IngestedAt) >= e.UpdateInterval {
			due = append(due, e)
		}
	}
	return due
}

// Refresh re-ingests every due source, one at a time.
func (sm *SourceManager) Refresh(ctx context.Context) {
	for _, e := range sm.Due() {
		if ctx.Err() != nil {
			return
		}
		xlog.Info("Updating source", "uri", e.URI)
		report, err := sm.ingestor.Ingest(ctx, e.URI, e.UpdateInterval)
		if err != nil {
			xlog.Error("Error updating source", "uri", e.URI, "error", err)
			continue
		}
		xlog.Info("Source updated", "uri", e.URI, "persisted", report.Persisted)
	}
}

// Start refreshes sources in the background until ctx is done.
func (sm *SourceManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sm.every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sm.Refresh(ctx)
			}
		}
	}()
}
