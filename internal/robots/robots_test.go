package robots

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestIsAllowed_RespectsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	p := New(arbor.NewLogger(), "testbot", false, time.Minute)

	require.True(t, p.IsAllowed(t.Context(), srv.URL+"/public"))
	require.False(t, p.IsAllowed(t.Context(), srv.URL+"/private/page"))
}

func TestIsAllowed_FailsOpenOnFetchError(t *testing.T) {
	p := New(arbor.NewLogger(), "testbot", false, time.Minute)

	assert.True(t, p.IsAllowed(t.Context(), "http://127.0.0.1:1/nope"))
}

func TestIsAllowed_FailsOpenOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := New(arbor.NewLogger(), "testbot", false, time.Minute)
	assert.True(t, p.IsAllowed(t.Context(), srv.URL+"/anything"))
}

func TestGroup_CachesWithinTTL(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("User-agent: *\nDisallow: /blocked\n"))
	}))
	defer srv.Close()

	p := New(arbor.NewLogger(), "testbot", false, time.Hour)

	for i := 0; i < 5; i++ {
		p.IsAllowed(t.Context(), srv.URL+"/blocked/x")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFilterLinks_PartitionsByRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /admin\n"))
	}))
	defer srv.Close()

	p := New(arbor.NewLogger(), "testbot", false, time.Minute)
	links := []string{srv.URL + "/ok", srv.URL + "/admin/secret"}

	kept, denied := p.FilterLinks(t.Context(), links)

	assert.Equal(t, []string{srv.URL + "/ok"}, kept)
	assert.Equal(t, DenialReasonRobotsTxt, denied[srv.URL+"/admin/secret"])
}

func TestFilterLinksWithDoc_AllowsOnMalformedDoc(t *testing.T) {
	kept, denied := FilterLinksWithDoc([]string{"https://example.com/a"}, "not a valid robots document \x00\x01")
	assert.Equal(t, []string{"https://example.com/a"}, kept)
	assert.Empty(t, denied)
}

func TestFilterLinksWithDoc_DeniesDisallowedPath(t *testing.T) {
	doc := "User-agent: *\nDisallow: /no-go\n"
	links := []string{"https://example.com/ok", "https://example.com/no-go/page"}

	kept, denied := FilterLinksWithDoc(links, doc)

	assert.Equal(t, []string{"https://example.com/ok"}, kept)
	assert.Equal(t, DenialReasonRobotsTxt, denied["https://example.com/no-go/page"])
}
