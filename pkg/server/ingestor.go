package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/gutensearch/pkg/datalake"
	"github.com/kadirpekel/gutensearch/pkg/guten"
	"github.com/kadirpekel/gutensearch/pkg/gutenberg"
	"github.com/kadirpekel/gutensearch/pkg/queue"
)

// maxUploadBytes bounds a replicated book upload. The largest plain-text
// books are a few megabytes.
const maxUploadBytes = 64 << 20

// BookReplicator copies a stored book's raw content to a peer before the
// ingest is acknowledged.
type BookReplicator interface {
	Replicate(ctx context.Context, id guten.BookID, title, raw string) error
}

// Ingestor is the service that downloads, validates, stores, replicates and
// enqueues books for indexing.
type Ingestor struct {
	lake       datalake.Store
	fetcher    gutenberg.Fetcher
	replicator BookReplicator
	publisher  queue.Publisher
	log        *slog.Logger
}

// NewIngestor wires the ingestor service.
func NewIngestor(lake datalake.Store, fetcher gutenberg.Fetcher, replicator BookReplicator,
	publisher queue.Publisher, log *slog.Logger) *Ingestor {
	return &Ingestor{
		lake:       lake,
		fetcher:    fetcher,
		replicator: replicator,
		publisher:  publisher,
		log:        log,
	}
}

// Routes mounts the ingestor endpoints, including the replication receiver
// peers push copies to.
func (s *Ingestor) Routes(r chi.Router) {
	r.Post("/ingest/{id}", s.handleIngest)
	r.Get("/ingest/status/{id}", s.handleStatus)
	r.Get("/ingest/list", s.handleList)
	r.Post("/api/datalake/store", s.handleReceive)
	r.Get("/health", healthHandler("ingestor"))
}

func bookIDParam(r *http.Request) (guten.BookID, error) {
	id, err := guten.ParseBookID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return id, nil
}

// Outcome describes what Ingest did for one book.
type Outcome struct {
	BookID guten.BookID `json:"bookId"`
	Status string       `json:"status"`
	Path   string       `json:"path,omitempty"`
}

// Ingest statuses.
const (
	StatusDownloaded    = "downloaded"
	StatusAlreadyExists = "already_exists"
)

// Ingest runs the full flow for one book: download, split, store, replicate
// to a peer, then enqueue the indexing job. The queue message goes out only
// after the peer copy exists, so an acknowledged book survives the loss of
// this node. A book already present locally is acknowledged without
// re-downloading.
func (s *Ingestor) Ingest(ctx context.Context, id guten.BookID) (Outcome, error) {
	if s.lake.IsPresent(id) {
		s.log.Debug("book already ingested", "bookId", id)
		outcome := Outcome{BookID: id, Status: StatusAlreadyExists}
		if dir, err := s.lake.Dir(id); err == nil {
			outcome.Path = dir
		}
		return outcome, nil
	}

	raw, err := s.fetcher.Download(ctx, id)
	if err != nil {
		s.log.Warn("download failed", "bookId", id, "error", err)
		return Outcome{}, err
	}
	header, body, err := gutenberg.Split(raw)
	if err != nil {
		s.log.Warn("book failed format validation", "bookId", id, "error", err)
		return Outcome{}, err
	}

	dir, err := s.lake.Save(id, header, body)
	if err != nil {
		return Outcome{}, fmt.Errorf("storing book %d: %w", id, err)
	}

	title := gutenberg.ExtractMetadata(id, header, dir).Title
	if err := s.replicator.Replicate(ctx, id, title, raw); err != nil {
		if !errors.Is(err, guten.ErrNoTargets) {
			return Outcome{}, fmt.Errorf("replicating book %d: %w", id, err)
		}
		s.log.Info("no replication peers, proceeding with local copy only", "bookId", id)
	}

	if err := s.publisher.Publish(ctx, id); err != nil {
		return Outcome{}, fmt.Errorf("enqueueing book %d for indexing: %w", id, err)
	}

	s.log.Info("book ingested", "bookId", id, "path", dir)
	return Outcome{BookID: id, Status: StatusDownloaded, Path: dir}, nil
}

func (s *Ingestor) handleIngest(w http.ResponseWriter, r *http.Request) {
	id, err := bookIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	outcome, err := s.Ingest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if outcome.Status == StatusAlreadyExists {
		status = http.StatusOK
	}
	writeJSON(w, status, outcome)
}

func (s *Ingestor) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := bookIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.lake.IsPresent(id) {
		writeJSON(w, http.StatusNotFound, map[string]any{"bookId": id, "status": "not_found"})
		return
	}
	resp := map[string]any{"bookId": id, "status": "available"}
	if dir, err := s.lake.Dir(id); err == nil {
		resp["path"] = dir
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Ingestor) handleList(w http.ResponseWriter, _ *http.Request) {
	ids, err := s.lake.ListIDs()
	if err != nil {
		writeError(w, fmt.Errorf("listing stored books: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(ids), "books": ids})
}

// handleReceive accepts a replicated book from a peer ingestor: the raw
// content arrives as a file part and goes through the same validation and
// split as a download. Replicated books are not re-replicated or re-queued.
// Accepting an id that is already present overwrites the pair with identical
// content, so retries are harmless.
func (s *Ingestor) handleReceive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, fmt.Errorf("%w: parsing upload: %v", errInvalidRequest, err))
		return
	}
	id, err := guten.ParseBookID(r.FormValue("bookId"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	raw, err := formFileContent(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	header, body, err := gutenberg.Split(raw)
	if err != nil {
		writeError(w, fmt.Errorf("replicated book %d: %w", id, err))
		return
	}

	dir, err := s.lake.Save(id, header, body)
	if err != nil {
		writeError(w, fmt.Errorf("storing replicated book %d: %w", id, err))
		return
	}
	s.log.Info("replica received", "bookId", id, "title", r.FormValue("title"), "from", r.RemoteAddr)
	writeJSON(w, http.StatusCreated, map[string]any{"bookId": id, "path": dir})
}

func formFileContent(r *http.Request, field string) (string, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("%w: missing %q part: %v", errInvalidRequest, field, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading %q part: %w", field, err)
	}
	return string(data), nil
}
