// Package server exposes the thin HTTP surface: entity search and matching
// against the alias, prefix autocomplete, health, and the token-gated
// reindex trigger.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/siftd/sift/internal/config"
	"github.com/siftd/sift/internal/data"
	"github.com/siftd/sift/internal/index"
	"github.com/siftd/sift/internal/schema"
	"github.com/siftd/sift/internal/search"
)

const defaultLimit = 10

// Server wires the HTTP handlers over the search provider and indexer.
type Server struct {
	settings *config.Settings
	model    *schema.Schemata
	provider index.SearchProvider
	indexer  *index.Indexer
	source   data.Source
	log      *slog.Logger
}

// New creates a server. The dataset catalog is consulted per request so a
// reindex can introduce datasets without a restart.
func New(settings *config.Settings, model *schema.Schemata, provider index.SearchProvider, indexer *index.Indexer, source data.Source, log *slog.Logger) *Server {
	return &Server{
		settings: settings,
		model:    model,
		provider: provider,
		indexer:  indexer,
		source:   source,
		log:      log,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))
	r.Get("/healthz", s.handleHealth)
	r.Get("/search/{dataset}", s.handleSearch)
	r.Post("/match/{dataset}", s.handleMatch)
	r.Get("/suggest/{dataset}", s.handleSuggest)
	r.Post("/updatez", s.handleUpdate)
	return r
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.settings.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.log.Info("server listening", "addr", srv.Addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// The alias not existing yet is still healthy: the service can run
	// before the first index build.
	if _, err := s.provider.GetBackingIndexes(r.Context(), s.settings.Alias()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	dataset, err := s.dataset(r.Context(), chi.URLParam(r, "dataset"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	q := r.URL.Query()
	var sch *schema.Schema
	if name := q.Get("schema"); name != "" {
		if sch = s.model.Get(name); sch == nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown schema %q", index.ErrBadQuery, name))
			return
		}
	}
	filters := search.Filters{}
	for _, field := range []string{"countries", "topics", "datasets"} {
		if values := q[field]; len(values) > 0 {
			filters[field] = values
		}
	}
	query := search.TextQuery(dataset, sch, q.Get("q"), filters, q.Get("fuzzy") == "true")
	req := &index.SearchRequest{
		Query:  query,
		Limit:  intParam(q.Get("limit"), defaultLimit),
		Offset: intParam(q.Get("offset"), 0),
		Sort:   search.ParseSorts(q["sort"]),
	}
	if facets := q["facets"]; len(facets) > 0 {
		req.Aggregations = search.FacetAggregations(facets)
	}
	result, err := s.provider.Search(r.Context(), s.settings.Alias(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	dataset, err := s.dataset(r.Context(), chi.URLParam(r, "dataset"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var body struct {
		Entity map[string]any `json:"entity"`
		Fuzzy  bool           `json:"fuzzy"`
		Limit  int            `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Entity == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing entity example"))
		return
	}
	// Match examples need no id of their own.
	if _, ok := body.Entity["id"]; !ok {
		body.Entity["id"] = "query"
	}
	entity, err := schema.FromDict(s.model, body.Entity)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", index.ErrBadQuery, err))
		return
	}
	req := &index.SearchRequest{
		Query: search.EntityQuery(dataset, entity, body.Fuzzy),
		Limit: body.Limit,
	}
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	result, err := s.provider.Search(r.Context(), s.settings.Alias(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	dataset, err := s.dataset(r.Context(), chi.URLParam(r, "dataset"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	req := &index.SearchRequest{
		Query: search.PrefixQuery(dataset, r.URL.Query().Get("prefix")),
		Limit: intParam(r.URL.Query().Get("limit"), defaultLimit),
	}
	result, err := s.provider.Search(r.Context(), s.settings.Alias(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeResult(w, result)
}

// handleUpdate triggers a reindex in the background. The shared update token
// is the only authentication on this surface.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if s.settings.UpdateToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(s.settings.UpdateToken)) != 1 {
		writeError(w, http.StatusUnauthorized, errors.New("invalid update token"))
		return
	}
	force := r.URL.Query().Get("force") == "true"
	go func() {
		if err := s.indexer.SyncAll(context.Background(), force); err != nil {
			if errors.Is(err, index.ErrIndexerBusy) {
				s.log.Warn("reindex trigger skipped, indexer busy")
				return
			}
			s.log.Error("triggered reindex failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// dataset resolves a dataset by name against the upstream catalog.
func (s *Server) dataset(ctx context.Context, name string) (*data.Dataset, error) {
	datasets, err := s.source.ListDatasets(ctx)
	if err != nil {
		return nil, err
	}
	for _, ds := range datasets {
		if ds.Name == name {
			return ds, nil
		}
	}
	return nil, fmt.Errorf("no such dataset: %s", name)
}

func writeResult(w http.ResponseWriter, result *index.SearchResult) {
	hits := make([]map[string]any, 0, len(result.Hits))
	for _, hit := range result.Hits {
		doc := map[string]any{"id": hit.ID, "score": hit.Score}
		for k, v := range hit.Source {
			doc[k] = v
		}
		hits = append(hits, doc)
	}
	out := map[string]any{"total": result.Total, "results": hits}
	if len(result.Facets) > 0 {
		out["facets"] = result.Facets
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(msg)})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
