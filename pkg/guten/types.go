// Package guten holds the domain types shared by every gutensearch service:
// book identifiers, bibliographic metadata and the error kinds that cross
// component boundaries.
package guten

import (
	"fmt"
	"strconv"
)

// BookID identifies a single book, globally unique across the corpus.
// Identifiers are positive integers assigned by the upstream catalog.
type BookID int

// ParseBookID parses the decimal form of a book identifier.
func ParseBookID(s string) (BookID, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid book id %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid book id %d: must be positive", n)
	}
	return BookID(n), nil
}

// String returns the decimal form used in file names, queue payloads and URLs.
func (id BookID) String() string {
	return strconv.Itoa(int(id))
}

// Metadata is the bibliographic record extracted from a book header.
// Year is 0 when the release year could not be determined.
type Metadata struct {
	BookID   BookID `json:"bookId"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Language string `json:"language"`
	Year     int    `json:"year,omitempty"`
	Path     string `json:"path,omitempty"`
}
