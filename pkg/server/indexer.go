package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/gutensearch/pkg/index"
)

// IndexerAPI is the HTTP surface of the indexer role. Most indexing work
// arrives through the queue consumer; these endpoints cover manual updates,
// full rebuilds and monitoring.
type IndexerAPI struct {
	ix  *index.Indexer
	log *slog.Logger
}

// NewIndexerAPI wires the indexer endpoints.
func NewIndexerAPI(ix *index.Indexer, log *slog.Logger) *IndexerAPI {
	return &IndexerAPI{ix: ix, log: log}
}

// Routes mounts the indexer endpoints.
func (s *IndexerAPI) Routes(r chi.Router) {
	r.Post("/index/update/{id}", s.handleUpdate)
	r.Post("/index/rebuild", s.handleRebuild)
	r.Get("/index/status", s.handleStatus)
	r.Get("/stats", s.handleStatus)
	r.Get("/health", healthHandler("indexer"))
}

func (s *IndexerAPI) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := bookIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.ix.IndexBook(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	status := "updated"
	if !res.Indexed {
		status = "already_indexed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookId": res.BookID,
		"status": status,
		"terms":  res.Terms,
	})
}

func (s *IndexerAPI) handleRebuild(w http.ResponseWriter, r *http.Request) {
	report, err := s.ix.Rebuild(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("rebuilding index: %w", err))
		return
	}
	resp := map[string]any{
		"status":        "completed",
		"books_indexed": report.Indexed,
		"skipped":       report.Skipped,
		"failed":        report.Failed,
	}
	if len(report.Errors) > 0 {
		resp["errors"] = report.Errors
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *IndexerAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ix.Status(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("reading index status: %w", err))
		return
	}
	recordIndexExtent(status.Books, status.Terms)
	writeJSON(w, http.StatusOK, status)
}
