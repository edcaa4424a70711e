package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/gutensearch/pkg/search"
)

// SearcherAPI is the HTTP surface of the searcher role.
type SearcherAPI struct {
	searcher *search.Searcher
	log      *slog.Logger
}

// NewSearcherAPI wires the searcher endpoints.
func NewSearcherAPI(searcher *search.Searcher, log *slog.Logger) *SearcherAPI {
	return &SearcherAPI{searcher: searcher, log: log}
}

// Routes mounts the searcher endpoints.
func (s *SearcherAPI) Routes(r chi.Router) {
	r.Get("/search", s.handleSearch)
	r.Get("/books", s.handleBooks)
	r.Get("/stats", s.handleStats)
	r.Get("/health", healthHandler("searcher"))
}

// intParam parses an optional integer query parameter, substituting def when
// it is absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", errInvalidRequest, name, raw)
	}
	return n, nil
}

func (s *SearcherAPI) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, fmt.Errorf("%w: missing query parameter q", errInvalidRequest))
		return
	}

	limit, err := intParam(r, "limit", s.searcher.DefaultLimit())
	if err != nil {
		writeError(w, err)
		return
	}
	year, err := intParam(r, "year", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	query := search.Query{
		Text:     q,
		Author:   r.URL.Query().Get("author"),
		Language: r.URL.Query().Get("language"),
		Year:     year,
		Limit:    limit,
	}
	results, total, err := s.searcher.Search(r.Context(), query)
	if err != nil {
		writeError(w, fmt.Errorf("searching %q: %w", q, err))
		return
	}

	s.log.Debug("search served", "query", q, "results", len(results), "total", total)
	writeJSON(w, http.StatusOK, map[string]any{
		"query":            q,
		"total_results":    total,
		"returned_results": len(results),
		"results":          results,
	})
}

func (s *SearcherAPI) handleBooks(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	books, total, err := s.searcher.ListBooks(r.Context(), limit)
	if err != nil {
		writeError(w, fmt.Errorf("listing books: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_results":    total,
		"returned_results": len(books),
		"books":            books,
	})
}

func (s *SearcherAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.searcher.Stats(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("reading corpus stats: %w", err))
		return
	}
	recordIndexExtent(stats.Books, stats.Terms)
	writeJSON(w, http.StatusOK, stats)
}
