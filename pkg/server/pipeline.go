package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/gutensearch/pkg/guten"
	"github.com/kadirpekel/gutensearch/pkg/pipeline"
)

// PipelineAPI exposes bulk ingestion on the ingestor role.
type PipelineAPI struct {
	p   *pipeline.Pipeline
	log *slog.Logger
}

// NewPipelineAPI wires the pipeline endpoints.
func NewPipelineAPI(p *pipeline.Pipeline, log *slog.Logger) *PipelineAPI {
	return &PipelineAPI{p: p, log: log}
}

// Routes mounts the pipeline endpoints.
func (s *PipelineAPI) Routes(r chi.Router) {
	r.Post("/pipeline/execute", s.handleExecute)
	r.Get("/pipeline/status", s.handleStatus)
}

func (s *PipelineAPI) handleExecute(w http.ResponseWriter, r *http.Request) {
	from, err := intParam(r, "from", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := intParam(r, "to", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	workers, err := intParam(r, "workers", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if from <= 0 || to < from {
		writeError(w, fmt.Errorf("%w: range %d..%d", errInvalidRequest, from, to))
		return
	}

	// The run outlives the request, so it must not die with its context.
	ctx := context.WithoutCancel(r.Context())
	if err := s.p.Execute(ctx, guten.BookID(from), guten.BookID(to), workers); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "started",
		"from":   from,
		"to":     to,
	})
}

func (s *PipelineAPI) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.p.Status())
}
