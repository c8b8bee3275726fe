package mapper

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/urlvalid"
)

func TestMapper_Map_DiscoversLinksFromPageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			http.NotFound(w, r)
		default:
			w.Write([]byte(`<html><body><a href="/about">About</a><a href="/blog/post-1">Post</a></body></html>`))
		}
	}))
	defer srv.Close()

	m := New(urlvalid.New(nil), arbor.NewLogger())
	links, err := m.Map(t.Context(), Request{URL: srv.URL, Limit: 10})

	require.NoError(t, err)
	assert.Contains(t, links, srv.URL+"/about")
	assert.Contains(t, links, srv.URL+"/blog/post-1")
}

func TestMapper_Map_FiltersBySearchTerm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/about">About</a><a href="/blog/post-1">Post</a></body></html>`))
	}))
	defer srv.Close()

	m := New(urlvalid.New(nil), arbor.NewLogger())
	links, err := m.Map(t.Context(), Request{URL: srv.URL, Search: "blog", Limit: 10})

	require.NoError(t, err)
	for _, l := range links {
		assert.Contains(t, l, "blog")
	}
}

func TestMapper_Map_RespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body></html>`))
	}))
	defer srv.Close()

	m := New(urlvalid.New(nil), arbor.NewLogger())
	links, err := m.Map(t.Context(), Request{URL: srv.URL, Limit: 1})

	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestMapper_Map_InvalidURLReturnsError(t *testing.T) {
	m := New(urlvalid.New(nil), arbor.NewLogger())
	_, err := m.Map(t.Context(), Request{URL: "not a url"})
	require.Error(t, err)
}
