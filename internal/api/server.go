// Package api serves stored articles and the topic list over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/internal/logger"
	"github.com/Adda-Baaj/khobor-topics/internal/store"
)

// Querier answers article queries.
type Querier interface {
	Query(ctx context.Context, q store.Query) ([]domain.Article, error)
}

// TopicLister returns the known topic names.
type TopicLister interface {
	Topics() []string
}

// ArticleView is the wire form of an article.
type ArticleView struct {
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	ContentHead string    `json:"content_head"`
	ContentSize int       `json:"content_size"`
	Source      string    `json:"source"`
	Topics      []string  `json:"topics"`
}

func newArticleView(a domain.Article) ArticleView {
	topics := a.Topics
	if topics == nil {
		topics = []string{}
	}
	return ArticleView{
		Author:      a.Author,
		Title:       a.Title,
		Description: a.Description,
		URL:         a.URL,
		PublishedAt: a.PublishedAt.UTC(),
		ContentHead: a.ContentHead,
		ContentSize: a.ContentSize,
		Source:      a.Source,
		Topics:      topics,
	}
}

// Server holds the API handlers.
type Server struct {
	articles Querier
	topics   TopicLister
	log      logger.Logger
	now      func() time.Time
}

// NewServer builds a Server over the given article store and taxonomy.
func NewServer(articles Querier, topics TopicLister, log logger.Logger) *Server {
	return &Server{articles: articles, topics: topics, log: logger.Ensure(log), now: time.Now}
}

// Routes returns the API handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/get_news_by_topic", s.handleNewsByTopic)
	mux.HandleFunc("GET /api/get_topics", s.handleTopics)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return s.withCORS(s.withRequestLog(mux))
}

func (s *Server) handleNewsByTopic(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q, err := store.ParseQuery(store.Params{
		Topics:      values["topics"],
		Limit:       values.Get("limit"),
		FromDate:    values.Get("from_date"),
		ToDate:      values.Get("to_date"),
		SortByMatch: values.Get("sort_by_match"),
	}, s.now())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	articles, err := s.articles.Query(r.Context(), q)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	views := make([]ArticleView, 0, len(articles))
	for _, a := range articles {
		views = append(views, newArticleView(a))
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleTopics(w http.ResponseWriter, _ *http.Request) {
	topics := []string{}
	if s.topics != nil {
		topics = append(topics, s.topics.Topics()...)
	}
	respondJSON(w, http.StatusOK, topics)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Use /api/get_news_by_topic to fetch articles and /api/get_topics to list topics.",
	})
}

// respondError maps validation failures to 400 and everything else to 500.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrValidation) {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.log.ErrorObj("query failed", "api_query_error", map[string]any{
		"path":  r.URL.Path,
		"query": r.URL.RawQuery,
		"error": err.Error(),
	})
	respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.DebugObj("request served", "http_request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
