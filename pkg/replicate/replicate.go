// Package replicate copies a freshly ingested book to one peer node before
// the ingest is acknowledged, so a single machine loss cannot drop a book
// that was reported stored.
package replicate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"mime/multipart"
	"net"
	"net/http"

	"github.com/kadirpekel/gutensearch/pkg/cluster"
	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/guten"
)

// Form part names of the receiving endpoint.
const (
	FieldBookID = "bookId"
	FieldTitle  = "title"
	FieldFile   = "file"
)

// Replicator pushes raw book content to peer datalake receivers.
type Replicator struct {
	cfg     config.ReplicationConfig
	targets []string
	client  *http.Client
	log     *slog.Logger
}

// New derives the replication targets from the cluster membership: every
// peer host, on the replication HTTP port.
func New(cfg config.ReplicationConfig, membership *cluster.Membership, log *slog.Logger) *Replicator {
	var targets []string
	for _, peer := range membership.Peers() {
		host, _, err := net.SplitHostPort(peer)
		if err != nil {
			host = peer
		}
		targets = append(targets, fmt.Sprintf("%s:%d", host, cfg.Port))
	}
	return &Replicator{
		cfg:     cfg,
		targets: targets,
		client:  &http.Client{Timeout: cfg.Timeout()},
		log:     log,
	}
}

// Targets returns the derived receiver addresses.
func (r *Replicator) Targets() []string {
	return r.targets
}

// Replicate delivers the raw book content to one peer, trying targets in
// random order until one accepts. The title travels along best-effort so the
// receiver can log something readable. Returns guten.ErrNoTargets when the
// cluster has no peers (the caller decides whether a lone node may proceed
// without a copy) and guten.ErrReplicationFailed when every peer refused.
func (r *Replicator) Replicate(ctx context.Context, id guten.BookID, title, raw string) error {
	if !r.cfg.IsEnabled() {
		r.log.Debug("replication disabled", "bookId", id)
		return nil
	}
	if len(r.targets) == 0 {
		return fmt.Errorf("book %d: %w", id, guten.ErrNoTargets)
	}

	order := rand.Perm(len(r.targets))
	var lastErr error
	for _, i := range order {
		target := r.targets[i]
		if err := r.send(ctx, target, id, title, raw); err != nil {
			lastErr = err
			r.log.Warn("replication attempt failed", "bookId", id, "target", target, "error", err)
			continue
		}
		r.log.Info("book replicated", "bookId", id, "target", target)
		return nil
	}
	return fmt.Errorf("book %d: %w: %v", id, guten.ErrReplicationFailed, lastErr)
}

func (r *Replicator) send(ctx context.Context, target string, id guten.BookID, title, raw string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField(FieldBookID, id.String()); err != nil {
		return err
	}
	if title != "" {
		if err := mw.WriteField(FieldTitle, title); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile(FieldFile, id.String()+".txt")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(fw, raw); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	url := "http://" + target + r.cfg.Endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s responded %d: %s", target, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
