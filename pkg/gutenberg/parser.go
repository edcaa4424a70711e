// Package gutenberg turns a book identifier into a validated header/body
// pair: the downloader fetches the raw text from an ordered list of mirror
// URLs, the parser validates the Project Gutenberg markers and splits the
// stream, and the metadata extractor reads the bibliographic fields out of
// the header.
package gutenberg

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirpekel/gutensearch/pkg/guten"
)

var (
	startMarkerRe = regexp.MustCompile(`(?im)^\*\*\*\s*START\s+OF.*$`)
	endMarkerRe   = regexp.MustCompile(`(?im)^\*\*\*\s*END\s+OF.*$`)
)

// Split validates raw book content and separates it into header and body.
//
// The header is everything before the first START marker line; the body is
// everything strictly between the START marker line and the first END marker
// line after it. Both are returned trimmed and must be non-empty. Violations
// are reported as guten.ErrBookFormat, never as transport errors.
func Split(raw string) (header, body string, err error) {
	start := startMarkerRe.FindStringIndex(raw)
	if start == nil {
		return "", "", fmt.Errorf("%w: missing START marker", guten.ErrBookFormat)
	}

	rest := raw[start[1]:]
	end := endMarkerRe.FindStringIndex(rest)
	if end == nil {
		return "", "", fmt.Errorf("%w: missing END marker after START", guten.ErrBookFormat)
	}

	header = strings.TrimSpace(raw[:start[0]])
	body = strings.TrimSpace(rest[:end[0]])

	if header == "" {
		return "", "", fmt.Errorf("%w: empty header section", guten.ErrBookFormat)
	}
	if body == "" {
		return "", "", fmt.Errorf("%w: empty body section", guten.ErrBookFormat)
	}
	return header, body, nil
}
