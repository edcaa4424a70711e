package datalake

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kadirpekel/gutensearch/pkg/guten"
)

// layout maps an identifier to its directory relative to the datalake root.
type layout interface {
	dirFor(id guten.BookID, now time.Time) string

	// deterministic reports whether the directory can be derived from the
	// identifier alone. Non-deterministic layouts need the tracking file to
	// resolve a book's directory.
	deterministic() bool
}

// bucketLayout groups identifiers into fixed-size ranges: bucket_<id/size>.
type bucketLayout struct {
	size int
}

func (b bucketLayout) dirFor(id guten.BookID, _ time.Time) string {
	return fmt.Sprintf("bucket_%d", int(id)/b.size)
}

func (b bucketLayout) deterministic() bool { return true }

// timestampLayout places each book under <YYYYMMDD>/<HH>/<id> using the
// local clock at save time.
type timestampLayout struct{}

func (timestampLayout) dirFor(id guten.BookID, now time.Time) string {
	return filepath.Join(now.Format("20060102"), now.Format("15"), id.String())
}

func (timestampLayout) deterministic() bool { return false }
