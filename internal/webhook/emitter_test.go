package webhook

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
}

func TestEmitter_PostsSignedPayload(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEmitter(nil, fastRetryPolicy(), arbor.NewLogger())
	e.Emit(t.Context(), models.WebhookConfig{URL: srv.URL, Secret: "shh"}, models.WebhookEvent{Event: "started", JobID: "job-1"})

	assert.NotEmpty(t, gotSig)
	assert.Equal(t, sign("shh", gotBody), gotSig)
}

func TestEmitter_RetriesOn5xxThenGivesUp(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewEmitter(nil, fastRetryPolicy(), arbor.NewLogger())
	e.Emit(t.Context(), models.WebhookConfig{URL: srv.URL}, models.WebhookEvent{Event: "failed", JobID: "job-2"})

	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestEmitter_NoURLIsNoOp(t *testing.T) {
	e := NewEmitter(nil, fastRetryPolicy(), arbor.NewLogger())
	e.Emit(t.Context(), models.WebhookConfig{}, models.WebhookEvent{Event: "started", JobID: "job-3"})
}
