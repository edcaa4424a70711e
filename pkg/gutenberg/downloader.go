package gutenberg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/guten"
)

// userAgent is fixed: mirrors throttle by agent string and a stable value
// keeps us on their allow lists.
const userAgent = "gutensearch/1.0 (+https://github.com/kadirpekel/gutensearch)"

// Fetcher downloads the raw text of a book.
type Fetcher interface {
	Download(ctx context.Context, id guten.BookID) (string, error)
}

// Downloader fetches plain-text books from a Gutenberg mirror.
type Downloader struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewDownloader builds a Downloader from configuration. The configured
// timeout bounds connect plus read time of each attempt.
func NewDownloader(cfg config.GutenbergConfig, log *slog.Logger) *Downloader {
	return &Downloader{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout()},
		log:     log,
	}
}

// Candidates returns the ordered URL list for an identifier. The order is
// semantically significant: the first HTTP 200 wins, so it must stay stable
// and testable.
func (d *Downloader) Candidates(id guten.BookID) []string {
	return []string{
		fmt.Sprintf("%s/cache/epub/%d/pg%d.txt", d.baseURL, id, id),
		fmt.Sprintf("%s/files/%d/%d-0.txt", d.baseURL, id, id),
		fmt.Sprintf("%s/files/%d/%d.txt", d.baseURL, id, id),
		fmt.Sprintf("%s/cache/epub/%d/pg%d.txt.utf8", d.baseURL, id, id),
	}
}

// Download attempts each candidate URL in order and returns the body of the
// first HTTP 200 response. 404 and 410 translate to guten.ErrNotFound; every
// other failure (connection error, timeout, non-2xx) is a transport error.
// When both kinds occur across candidates the transport error wins, since
// the book may well exist behind the failing mirror path.
func (d *Downloader) Download(ctx context.Context, id guten.BookID) (string, error) {
	var transportErr error

	for _, u := range d.Candidates(id) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return "", fmt.Errorf("%w: building request for %s: %v", guten.ErrTransport, u, err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := d.client.Do(req)
		if err != nil {
			d.log.Debug("download attempt failed", "bookId", id, "url", u, "error", err)
			transportErr = fmt.Errorf("%w: GET %s: %v", guten.ErrTransport, u, err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return "", fmt.Errorf("%w: reading %s: %v", guten.ErrTransport, u, err)
			}
			d.log.Debug("book downloaded", "bookId", id, "url", u, "bytes", len(data))
			return string(data), nil

		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			resp.Body.Close()
			d.log.Debug("candidate not found", "bookId", id, "url", u, "status", resp.StatusCode)

		default:
			resp.Body.Close()
			d.log.Debug("candidate failed", "bookId", id, "url", u, "status", resp.StatusCode)
			transportErr = fmt.Errorf("%w: GET %s: HTTP %d", guten.ErrTransport, u, resp.StatusCode)
		}
	}

	if transportErr != nil {
		return "", transportErr
	}
	return "", fmt.Errorf("book %d: %w", id, guten.ErrNotFound)
}
