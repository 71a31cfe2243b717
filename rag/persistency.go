package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// LedgerEntry records an ingested source.
type LedgerEntry struct {
	URI        string    `json:"uri"`
	Documents  int       `json:"documents"`
	IngestedAt time.Time `json:"ingested_at"`
	// UpdateInterval re-ingests the source periodically when positive.
	UpdateInterval time.Duration `json:"update_interval,omitempty"`
	// Chunks lists the natural ids stored for the source.
	Chunks []string `json:"chunks,omitempty"`
}

// Ledger keeps track of the ingested sources in a JSON state file. An
// empty path keeps the ledger in memory.
type Ledger struct {
	sync.Mutex
	path    string
	entries map[string]LedgerEntry
}

// NewLedger loads the state file at path, creating it if missing.
func NewLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, entries: map[string]LedgerEntry{}}
	if path == "" {
		return l, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		l.Lock()
		defer l.Unlock()
		return l, l.save()
	}
	if err != nil {
		return nil, err
	}

	entries := []LedgerEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	for _, e := range entries {
		l.entries[e.URI] = e
	}
	return l, nil
}

func (l *Ledger) save() error {
	if l.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(l.list(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, data, 0644)
}

func (l *Ledger) list() []LedgerEntry {
	entries := make([]LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].URI < entries[j].URI })
	return entries
}

// Record stores or replaces the entry of a source.
func (l *Ledger) Record(entry LedgerEntry) error {
	l.Lock()
	defer l.Unlock()
	l.entries[entry.URI] = entry
	return l.save()
}

// Entries returns the recorded sources sorted by URI.
func (l *Ledger) Entries() []LedgerEntry {
	l.Lock()
	defer l.Unlock()
	return l.list()
}

// Entry returns the recorded entry of a source.
func (l *Ledger) Entry(uri string) (LedgerEntry, bool) {
	l.Lock()
	defer l.Unlock()
	e, ok := l.entries[uri]
	return e, ok
}

func (l *Ledger) EntryExists(uri string) bool {
	l.Lock()
	defer l.Unlock()
	_, ok := l.entries[uri]
	return ok
}

// RemoveEntry forgets a source. Its documents stay in the store.
func (l *Ledger) RemoveEntry(uri string) error {
	l.Lock()
	defer l.Unlock()
	delete(l.entries, uri)
	return l.save()
}

// Reset forgets every source.
func (l *Ledger) Reset() error {
	l.Lock()
	defer l.Unlock()
	l.entries = map[string]LedgerEntry{}
	return l.save()
}
