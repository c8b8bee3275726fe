package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(store, arbor.NewLogger())
}

func TestManager_EnqueueThenGetReturnsJob(t *testing.T) {
	m := newTestManager(t)
	job := &models.CrawlJob{SeedURL: "https://example.com", State: models.JobStateScraping}

	id, err := m.Enqueue(context.Background(), "crawl", job, EnqueueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.SeedURL)
}

func TestManager_EnqueueDedupesByIdempotencyKey(t *testing.T) {
	m := newTestManager(t)
	job1 := &models.CrawlJob{SeedURL: "https://example.com", State: models.JobStateScraping}
	job2 := &models.CrawlJob{SeedURL: "https://example.com", State: models.JobStateScraping}

	id1, err := m.Enqueue(context.Background(), "crawl", job1, EnqueueOptions{IdempotencyKey: "dup-key"})
	require.NoError(t, err)
	id2, err := m.Enqueue(context.Background(), "crawl", job2, EnqueueOptions{IdempotencyKey: "dup-key"})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestManager_SaveUpdatesLiveProgress(t *testing.T) {
	m := newTestManager(t)
	job := &models.CrawlJob{SeedURL: "https://example.com", State: models.JobStateScraping}
	id, err := m.Enqueue(context.Background(), "crawl", job, EnqueueOptions{})
	require.NoError(t, err)

	job.ID = id
	job.Completed = 5
	job.State = models.JobStateCompleted
	require.NoError(t, m.Save(context.Background(), job))

	got, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Completed)
	assert.Equal(t, models.JobStateCompleted, got.State)
}

func TestManager_WaitForJobTimesOutOnNonTerminalJob(t *testing.T) {
	m := newTestManager(t)
	job := &models.CrawlJob{SeedURL: "https://example.com", State: models.JobStateScraping}
	id, err := m.Enqueue(context.Background(), "crawl", job, EnqueueOptions{})
	require.NoError(t, err)

	_, err = m.WaitForJob(context.Background(), id, 300*time.Millisecond)

	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindJobWaitTimeout, kind)
}

func TestManager_WaitForJobReturnsOnTerminalState(t *testing.T) {
	m := newTestManager(t)
	job := &models.CrawlJob{SeedURL: "https://example.com", State: models.JobStateScraping}
	id, err := m.Enqueue(context.Background(), "crawl", job, EnqueueOptions{})
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		job.ID = id
		job.State = models.JobStateCompleted
		_ = m.Save(context.Background(), job)
	}()

	got, err := m.WaitForJob(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, got.State)
}

func TestManager_CancelInvokesRegisteredCancelFunc(t *testing.T) {
	m := newTestManager(t)
	job := &models.CrawlJob{SeedURL: "https://example.com", State: models.JobStateScraping}
	id, err := m.Enqueue(context.Background(), "crawl", job, EnqueueOptions{})
	require.NoError(t, err)

	called := false
	m.RegisterCancel(id, func() { called = true })

	require.NoError(t, m.Cancel(context.Background(), id))
	assert.True(t, called)
}

func TestManager_RemoveJobDeletesRecord(t *testing.T) {
	m := newTestManager(t)
	job := &models.CrawlJob{SeedURL: "https://example.com", State: models.JobStateScraping}
	id, err := m.Enqueue(context.Background(), "crawl", job, EnqueueOptions{})
	require.NoError(t, err)

	require.NoError(t, m.RemoveJob(context.Background(), id))

	_, err = m.Get(context.Background(), id)
	require.Error(t, err)
}
