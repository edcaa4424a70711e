package gutenberg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kadirpekel/gutensearch/pkg/guten"
)

const maxTitleLen = 300

var (
	titleRe    = regexp.MustCompile(`(?i)Title:\s*(.+)`)
	authorRe   = regexp.MustCompile(`(?i)Author:\s*(.+)`)
	languageRe = regexp.MustCompile(`(?i)Language:\s*(.+)`)
	yearRe     = regexp.MustCompile(`(?i)Release Date:\s*.*?(\d{4})`)
	wsRunRe    = regexp.MustCompile(`\s+`)
)

// ExtractMetadata reads the bibliographic fields from a book header.
// Missing fields fall back to stable defaults; a year that cannot be parsed
// is recorded as 0 (unknown). path is the directory where the header/body
// pair lives on the local node.
func ExtractMetadata(id guten.BookID, header, path string) guten.Metadata {
	md := guten.Metadata{
		BookID:   id,
		Title:    fmt.Sprintf("Unknown Title (Book %d)", id),
		Author:   "Unknown Author",
		Language: "en",
		Path:     path,
	}

	if m := titleRe.FindStringSubmatch(header); m != nil {
		if title := cleanField(m[1]); title != "" {
			md.Title = truncate(title, maxTitleLen)
		}
	}
	if m := authorRe.FindStringSubmatch(header); m != nil {
		if author := cleanField(m[1]); author != "" {
			md.Author = author
		}
	}
	if m := languageRe.FindStringSubmatch(header); m != nil {
		if lang := cleanField(m[1]); lang != "" {
			md.Language = strings.ToLower(lang)
		}
	}
	if m := yearRe.FindStringSubmatch(header); m != nil {
		if year, err := strconv.Atoi(m[1]); err == nil {
			md.Year = year
		}
	}

	return md
}

// cleanField trims the value and collapses internal whitespace runs.
func cleanField(s string) string {
	return wsRunRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
