// Package datalake persists the raw header/body pair of every accepted book
// on the local node and tracks which identifiers are present.
//
// Two placement policies are supported: bucket directories keyed by
// identifier range, and timestamp directories keyed by save time. A tracking
// file under the datalake root records the identifiers (and, for the
// timestamp policy, their directories); updates to it serialize through an
// advisory write lock so concurrent saves on one node cannot clobber each
// other.
package datalake

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/guten"
)

const (
	headerSuffix = "_header.txt"
	bodySuffix   = "_body.txt"
)

var bodyFilePattern = regexp.MustCompile(`^(\d+)_body\.txt$`)

// Store is the datalake contract shared by the ingestor, the replication
// receiver and the indexer on one node.
type Store interface {
	// Save writes the header/body pair, records the identifier in the
	// tracking file and returns the absolute directory of the pair.
	Save(id guten.BookID, header, body string) (string, error)

	// ReadHeader returns the stored header text.
	ReadHeader(id guten.BookID) (string, error)

	// ReadBody returns the stored body text.
	ReadBody(id guten.BookID) (string, error)

	// Dir returns the absolute directory holding the pair.
	Dir(id guten.BookID) (string, error)

	// IsPresent reports whether both files exist locally.
	IsPresent(id guten.BookID) bool

	// ListIDs returns the tracked identifiers in ascending order.
	ListIDs() ([]guten.BookID, error)

	// ScanIDs walks the directory tree and recovers the identifiers from
	// <id>_body.txt file names. Used when the tracking file is missing or
	// unusable.
	ScanIDs() ([]guten.BookID, error)
}

// Lake is the on-disk Store implementation.
type Lake struct {
	root     string
	layout   layout
	tracking *trackingFile
	log      *slog.Logger
}

// New creates the datalake root if needed and returns a Lake for it.
func New(cfg config.DatalakeConfig, log *slog.Logger) (*Lake, error) {
	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving datalake path %q: %w", cfg.Path, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating datalake root: %w", err)
	}

	var lay layout
	switch cfg.Type {
	case config.DatalakeTimestamp:
		lay = timestampLayout{}
	default:
		lay = bucketLayout{size: cfg.BucketSize}
	}

	return &Lake{
		root:   root,
		layout: lay,
		tracking: &trackingFile{
			path:      filepath.Join(root, cfg.TrackingFilename),
			withPaths: !lay.deterministic(),
		},
		log: log,
	}, nil
}

// Root returns the absolute datalake root directory.
func (l *Lake) Root() string {
	return l.root
}

// Save implements Store.
func (l *Lake) Save(id guten.BookID, header, body string) (string, error) {
	dir := filepath.Join(l.root, l.layout.dirFor(id, time.Now()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating book directory: %w", err)
	}

	if err := os.WriteFile(headerPath(dir, id), []byte(header), 0644); err != nil {
		return "", fmt.Errorf("writing header for book %d: %w", id, err)
	}
	if err := os.WriteFile(bodyPath(dir, id), []byte(body), 0644); err != nil {
		return "", fmt.Errorf("writing body for book %d: %w", id, err)
	}

	if err := l.tracking.add(id, dir); err != nil {
		return "", fmt.Errorf("updating tracking file: %w", err)
	}

	l.log.Debug("book saved", "bookId", id, "dir", dir)
	return dir, nil
}

// Dir implements Store. For the bucket layout the directory is derived from
// the identifier; for the timestamp layout it comes from the tracking file.
func (l *Lake) Dir(id guten.BookID) (string, error) {
	if l.layout.deterministic() {
		return filepath.Join(l.root, l.layout.dirFor(id, time.Time{})), nil
	}
	dir, ok, err := l.tracking.lookup(id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("book %d: %w", id, guten.ErrNotFound)
	}
	return dir, nil
}

// ReadHeader implements Store.
func (l *Lake) ReadHeader(id guten.BookID) (string, error) {
	return l.readFile(id, headerSuffix)
}

// ReadBody implements Store.
func (l *Lake) ReadBody(id guten.BookID) (string, error) {
	return l.readFile(id, bodySuffix)
}

func (l *Lake) readFile(id guten.BookID, suffix string) (string, error) {
	dir, err := l.Dir(id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, id.String()+suffix))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("book %d: %w", id, guten.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading book %d: %w", id, err)
	}
	return string(data), nil
}

// IsPresent implements Store.
func (l *Lake) IsPresent(id guten.BookID) bool {
	dir, err := l.Dir(id)
	if err != nil {
		return false
	}
	if _, err := os.Stat(headerPath(dir, id)); err != nil {
		return false
	}
	if _, err := os.Stat(bodyPath(dir, id)); err != nil {
		return false
	}
	return true
}

// ListIDs implements Store.
func (l *Lake) ListIDs() ([]guten.BookID, error) {
	entries, err := l.tracking.list()
	if err != nil {
		return nil, err
	}
	ids := make([]guten.BookID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.id)
	}
	return ids, nil
}

// ScanIDs implements Store.
func (l *Lake) ScanIDs() ([]guten.BookID, error) {
	seen := map[guten.BookID]struct{}{}
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := bodyFilePattern.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil
		}
		seen[guten.BookID(n)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning datalake: %w", err)
	}

	ids := make([]guten.BookID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func headerPath(dir string, id guten.BookID) string {
	return filepath.Join(dir, id.String()+headerSuffix)
}

func bodyPath(dir string, id guten.BookID) string {
	return filepath.Join(dir, id.String()+bodySuffix)
}
