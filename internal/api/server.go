// Package api exposes the HTTP interface for the article library service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperdock/paperdock/internal/importer"
	"github.com/paperdock/paperdock/internal/library"
	"github.com/paperdock/paperdock/internal/metrics"
	"github.com/paperdock/paperdock/internal/search"
)

// Library is the record storage surface the server drives.
type Library interface {
	Load() ([]library.Record, error)
	Add(title string, authors []string, abstract, url, text string) (library.Record, error)
	Delete(id string) error
	DeleteFailed() error
	DeleteEmpty() error
	DeleteAll() error
	SeenURLs() (map[string]struct{}, error)
}

// BatchImporter runs imports and scans.
type BatchImporter interface {
	Run(ctx context.Context, links []importer.Link, seen map[string]struct{}) ([]library.Record, []string, int)
	Scan(ctx context.Context, records []library.Record) ([]string, int)
}

// Lister fetches candidate links from the remote collection API.
type Lister interface {
	ListArticles(ctx context.Context, projectID string) ([]importer.Link, error)
}

// Ranker searches the library.
type Ranker interface {
	Search(query string, records []library.Record, topK int) []search.Result
}

// Answerer synthesizes prose answers from ranked results.
type Answerer interface {
	Answer(ctx context.Context, query string, results []search.Result) string
	Configured() bool
}

// Server wires HTTP handlers to the library, importer, and ranker.
type Server struct {
	router     chi.Router
	store      Library
	importer   BatchImporter
	remote     Lister
	ranker     Ranker
	answerer   Answerer
	logger     *zap.Logger
	defaultTop int
}

// NewServer constructs a Server with middleware and routes. remote and
// answerer may be nil when the deployment has no collection API or LLM key.
func NewServer(
	store Library,
	batch BatchImporter,
	remote Lister,
	ranker Ranker,
	answerer Answerer,
	logger *zap.Logger,
) *Server {
	s := &Server{
		store:      store,
		importer:   batch,
		remote:     remote,
		ranker:     ranker,
		answerer:   answerer,
		logger:     logger,
		defaultTop: 3,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(5 * time.Minute))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/articles", func(r chi.Router) {
			r.Get("/", s.listArticles)
			r.Post("/", s.createArticle)
			r.Delete("/", s.deleteArticles)
			r.Delete("/{article_id}", s.deleteArticle)
		})
		r.Post("/import", s.importBatch)
		r.Post("/scan", s.scan)
		r.Post("/search", s.search)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listArticles(w http.ResponseWriter, _ *http.Request) {
	records, err := s.store.Load()
	if err != nil {
		s.serverError(w, "loading library", err)
		return
	}
	if records == nil {
		records = []library.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": records, "count": len(records)})
}

type createArticleRequest struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract"`
	URL      string   `json:"url"`
	Text     string   `json:"text"`
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request) {
	var req createArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	record, err := s.store.Add(req.Title, req.Authors, req.Abstract, req.URL, req.Text)
	if err != nil {
		s.serverError(w, "adding article", err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "article_id")
	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, library.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.serverError(w, "deleting article", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// deleteArticles handles the bulk variants: ?filter=failed clears failed
// imports, ?filter=empty clears records without text, ?filter=all clears
// the whole library.
func (s *Server) deleteArticles(w http.ResponseWriter, r *http.Request) {
	var err error
	filter := r.URL.Query().Get("filter")
	switch filter {
	case "failed":
		err = s.store.DeleteFailed()
	case "empty":
		err = s.store.DeleteEmpty()
	case "all":
		err = s.store.DeleteAll()
	default:
		writeError(w, http.StatusBadRequest, "filter must be one of failed, empty, all")
		return
	}
	if err != nil {
		s.serverError(w, "deleting articles", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": filter})
}

type importRequest struct {
	Collection string `json:"collection"`
	Links      []struct {
		Title    string   `json:"title"`
		URL      string   `json:"url"`
		Authors  []string `json:"authors"`
		Abstract string   `json:"abstract"`
	} `json:"links"`
}

func (s *Server) importBatch(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var links []importer.Link
	switch {
	case req.Collection != "":
		if s.remote == nil {
			writeError(w, http.StatusBadRequest, "no collection API configured")
			return
		}
		remote, err := s.remote.ListArticles(r.Context(), req.Collection)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		links = remote
	case len(req.Links) > 0:
		for _, l := range req.Links {
			links = append(links, importer.Link{
				Title: l.Title, URL: l.URL, Authors: l.Authors, Abstract: l.Abstract,
			})
		}
	default:
		writeError(w, http.StatusBadRequest, "either collection or links is required")
		return
	}

	seen, err := s.store.SeenURLs()
	if err != nil {
		s.serverError(w, "loading seen URLs", err)
		return
	}
	records, log, imported := s.importer.Run(r.Context(), links, seen)
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": imported,
		"appended": len(records),
		"log":      log,
	})
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Load()
	if err != nil {
		s.serverError(w, "loading library", err)
		return
	}
	log, updated := s.importer.Scan(r.Context(), records)
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated, "log": log})
}

type searchRequest struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
	Answer bool   `json:"answer"`
}

type searchResult struct {
	Article library.Record `json:"article"`
	Score   float64        `json:"score"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.defaultTop
	}
	records, err := s.store.Load()
	if err != nil {
		s.serverError(w, "loading library", err)
		return
	}
	results := s.ranker.Search(req.Query, records, req.TopK)

	payload := map[string]any{"results": toSearchResults(results)}
	if req.Answer {
		if s.answerer == nil || !s.answerer.Configured() {
			payload["answer"] = "Analysis unavailable: no API key configured."
		} else {
			payload["answer"] = s.answerer.Answer(r.Context(), req.Query, results)
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func toSearchResults(results []search.Result) []searchResult {
	out := make([]searchResult, 0, len(results))
	for _, res := range results {
		out = append(out, searchResult{Article: res.Record, Score: res.Score})
	}
	return out
}

func (s *Server) serverError(w http.ResponseWriter, action string, err error) {
	s.logger.Error(action+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
