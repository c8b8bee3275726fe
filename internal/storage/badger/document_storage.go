package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/wayfarer-labs/scrapeforge/internal/engine"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// documentRecord is a cached scrape result keyed by the URL it was scraped
// from, backing the "index"/"index;documents" engines (§2, §4.C).
type documentRecord struct {
	URL       string `badgerhold:"key"`
	Doc       models.Document
	StoredAt  time.Time `badgerhold:"index"`
}

// DocumentIndex implements engine.DocumentIndex over Badger: a URL-keyed
// cache of previously-scraped Documents. Grounded on the teacher's
// DocumentStorage (Upsert/Get/Find badgerhold idioms), narrowed from the
// Jira/Confluence document store (SourceType/Tags/FullTextSearch) to a
// single lookup-by-URL cache the orchestrator's index engines consult
// instead of a live fetch.
type DocumentIndex struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ engine.DocumentIndex = (*DocumentIndex)(nil)

// NewDocumentIndex builds a DocumentIndex over an already-open Badger
// connection.
func NewDocumentIndex(db *BadgerDB, logger arbor.ILogger) *DocumentIndex {
	return &DocumentIndex{db: db, logger: logger}
}

// Save caches doc under url, overwriting any previous entry. The scrape
// path does not call it, so the index engines find only documents saved
// through this method by other callers.
func (s *DocumentIndex) Save(ctx context.Context, url string, doc models.Document) error {
	rec := documentRecord{URL: url, Doc: doc, StoredAt: time.Now()}
	if err := s.db.Store().Upsert(url, &rec); err != nil {
		return fmt.Errorf("document index: save %s: %w", url, err)
	}
	return nil
}

// Lookup implements engine.DocumentIndex.
func (s *DocumentIndex) Lookup(ctx context.Context, url string) (models.Document, bool, error) {
	var rec documentRecord
	if err := s.db.Store().Get(url, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.Document{}, false, nil
		}
		return models.Document{}, false, fmt.Errorf("document index: lookup %s: %w", url, err)
	}
	return rec.Doc, true, nil
}

// Count returns the number of cached documents.
func (s *DocumentIndex) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&documentRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("document index: count: %w", err)
	}
	return int(count), nil
}
