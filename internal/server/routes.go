// -----------------------------------------------------------------------
// Last Modified: Thursday, 9th October 2025 8:53:55 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes (§6).
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/scrape", s.app.ScrapeHandler.Handle)
	mux.HandleFunc("/v1/map", s.app.MapHandler.Handle)
	mux.HandleFunc("/v1/crawl", s.handleCrawlCollection)
	mux.HandleFunc("/v1/crawl/", s.handleCrawlItem)
	mux.HandleFunc("/v1/concurrency-check", s.app.CrawlHandler.HandleConcurrencyCheck)

	mux.HandleFunc("/is-production", s.app.APIHandler.IsProductionHandler)
	mux.HandleFunc("/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler)

	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleCrawlCollection routes POST /v1/crawl (start a job).
func (s *Server) handleCrawlCollection(w http.ResponseWriter, r *http.Request) {
	s.app.CrawlHandler.HandleCreate(w, r)
}

// handleCrawlItem routes /v1/crawl/{id} and /v1/crawl/{id}/errors, mirroring
// the prefix-strip idiom the teacher uses for its job sub-routes.
func (s *Server) handleCrawlItem(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/v1/crawl/")
	if suffix == "" {
		http.NotFound(w, r)
		return
	}

	if strings.HasSuffix(suffix, "/errors") {
		jobID := strings.TrimSuffix(suffix, "/errors")
		s.app.CrawlHandler.HandleErrors(w, r, jobID)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.app.CrawlHandler.HandleGet(w, r, suffix)
	case http.MethodDelete:
		s.app.CrawlHandler.HandleDelete(w, r, suffix)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
