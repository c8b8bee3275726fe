package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/wayfarer-labs/scrapeforge/internal/common"
	"github.com/wayfarer-labs/scrapeforge/internal/interfaces"
)

// Manager owns the single Badger connection the Job Adapter (internal/
// jobqueue, over the raw badgerhold.Store), the key/value store (LLM API
// keys), and the document cache (internal/engine's "index"/
// "index;documents" engines) all share.
type Manager struct {
	db        *BadgerDB
	kv        interfaces.KeyValueStorage
	documents *DocumentIndex
	logger    arbor.ILogger
}

// NewManager opens a Badger connection and builds the stores over it.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		kv:        NewKVStorage(db, logger),
		documents: NewDocumentIndex(db, logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")
	return manager, nil
}

// Store returns the underlying badgerhold store, used directly by
// internal/jobqueue.Manager for CrawlJob and result persistence.
func (m *Manager) Store() *badgerhold.Store {
	return m.db.Store()
}

// KeyValueStorage returns the key/value store (LLM API keys).
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// DocumentIndex returns the scraped-document cache backing the index
// engines.
func (m *Manager) DocumentIndex() *DocumentIndex {
	return m.documents
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
