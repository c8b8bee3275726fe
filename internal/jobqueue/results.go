package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/wayfarer-labs/scrapeforge/internal/crawl"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

var _ crawl.ResultStore = (*Manager)(nil)

// resultRecord is one accumulated Document for a crawl job, ordered by
// Seq so GET /v1/crawl/{id} can page through results with a stable cursor.
type resultRecord struct {
	ID        string `badgerhold:"key"`
	JobID     string `badgerhold:"index"`
	Seq       int
	Doc       models.Document
	CreatedAt time.Time
}

// SaveResult implements crawl.ResultStore: appends doc to jobID's result
// set under a new monotonic sequence number.
func (m *Manager) SaveResult(ctx context.Context, jobID string, doc models.Document) error {
	m.mu.Lock()
	seq := m.resultSeq[jobID]
	m.resultSeq[jobID] = seq + 1
	m.mu.Unlock()

	rec := resultRecord{
		ID:        fmt.Sprintf("%s:%06d", jobID, seq),
		JobID:     jobID,
		Seq:       seq,
		Doc:       doc,
		CreatedAt: time.Now(),
	}
	if err := m.store.Insert(rec.ID, &rec); err != nil {
		return fmt.Errorf("jobqueue: save result: %w", err)
	}
	return nil
}

// ListResults returns jobID's accumulated Documents ordered by Seq,
// starting at offset and returning at most limit. The returned bool
// reports whether more results exist beyond what was returned (§6 "next").
func (m *Manager) ListResults(ctx context.Context, jobID string, offset, limit int) ([]models.Document, bool, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []resultRecord
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("Seq").Skip(offset).Limit(limit + 1)
	if err := m.store.Find(&recs, query); err != nil {
		return nil, false, fmt.Errorf("jobqueue: list results: %w", err)
	}

	hasMore := len(recs) > limit
	if hasMore {
		recs = recs[:limit]
	}
	docs := make([]models.Document, len(recs))
	for i, r := range recs {
		docs[i] = r.Doc
	}
	return docs, hasMore, nil
}
