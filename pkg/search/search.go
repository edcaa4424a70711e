// Package search answers queries against the distributed inverted index and
// metadata map.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kadirpekel/gutensearch/pkg/cluster"
	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/guten"
)

// Relevance weights per query token. A token hit in the title outweighs an
// author hit, which outweighs a plain body posting.
const (
	titleWeight   = 10
	authorWeight  = 5
	postingWeight = 1
)

// Query is one search request. Zero-valued filters are inactive; Limit is
// the resolved result cap (the HTTP layer substitutes the configured default
// when the request carries none).
type Query struct {
	Text     string
	Author   string
	Language string
	Year     int
	Limit    int
}

// Result is one scored hit.
type Result struct {
	BookID   guten.BookID `json:"bookId"`
	Title    string       `json:"title"`
	Author   string       `json:"author"`
	Language string       `json:"language"`
	Year     int          `json:"year,omitempty"`
	Score    int          `json:"score"`
}

// Searcher resolves queries against the cluster collections.
type Searcher struct {
	metadata *cluster.MetadataStore
	postings *cluster.Postings
	cfg      config.SearchConfig
	log      *slog.Logger
}

// New wires a searcher over the cluster collections.
func New(metadata *cluster.MetadataStore, postings *cluster.Postings,
	cfg config.SearchConfig, log *slog.Logger) *Searcher {
	return &Searcher{metadata: metadata, postings: postings, cfg: cfg, log: log}
}

// Search runs the query: candidate books come from the postings of each
// whitespace-separated token, scores add up per token across title, author
// and postings, and ties break toward the lower book id. The second return
// value is the number of matches before the limit was applied. A
// non-positive limit returns no results without touching the collections.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}
	tokens := strings.Fields(strings.ToLower(q.Text))
	if limit <= 0 || len(tokens) == 0 {
		return []Result{}, 0, nil
	}

	// Candidate set: union of the postings of every token, remembering how
	// many hits each book collected.
	hits := map[guten.BookID]int{}
	for _, token := range tokens {
		ids, err := s.postings.Get(ctx, token)
		if err != nil {
			return nil, 0, fmt.Errorf("reading postings for %q: %w", token, err)
		}
		for _, id := range ids {
			hits[id] += postingWeight
		}
	}
	if len(hits) == 0 {
		return []Result{}, 0, nil
	}

	ids := make([]guten.BookID, 0, len(hits))
	for id := range hits {
		ids = append(ids, id)
	}
	records, err := s.metadata.GetAll(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("loading metadata: %w", err)
	}

	results := make([]Result, 0, len(records))
	for id, score := range hits {
		md, ok := records[id]
		if !ok {
			// Postings without metadata mean an indexing pass is still in
			// flight for this book; leave it out.
			s.log.Debug("candidate has no metadata yet", "bookId", id)
			continue
		}
		if !matchesFilters(md, q) {
			continue
		}

		title := strings.ToLower(md.Title)
		author := strings.ToLower(md.Author)
		for _, token := range tokens {
			if strings.Contains(title, token) {
				score += titleWeight
			}
			if strings.Contains(author, token) {
				score += authorWeight
			}
		}
		results = append(results, Result{
			BookID:   id,
			Title:    md.Title,
			Author:   md.Author,
			Language: md.Language,
			Year:     md.Year,
			Score:    score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].BookID < results[j].BookID
	})
	total := len(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, total, nil
}

func matchesFilters(md guten.Metadata, q Query) bool {
	if q.Author != "" && !strings.Contains(strings.ToLower(md.Author), strings.ToLower(q.Author)) {
		return false
	}
	if q.Language != "" && !strings.EqualFold(md.Language, q.Language) {
		return false
	}
	if q.Year != 0 && md.Year != q.Year {
		return false
	}
	return true
}

// DefaultLimit returns the configured limit for requests that carry none.
func (s *Searcher) DefaultLimit() int {
	return s.cfg.DefaultLimit
}

// ListBooks returns up to limit indexed books, capped at the configured
// maximum, sorted by ascending book id. The second return value is the total
// number of books in the metadata store.
func (s *Searcher) ListBooks(ctx context.Context, limit int) ([]guten.Metadata, int, error) {
	if limit <= 0 || limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}
	total, err := s.metadata.Size(ctx)
	if err != nil {
		return nil, 0, err
	}
	records, err := s.metadata.List(ctx, limit)
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].BookID < records[j].BookID })
	return records, total, nil
}

// Stats describes the searchable corpus.
type Stats struct {
	Books int `json:"total_books"`
	Terms int `json:"unique_words"`
}

// Stats returns cluster-wide corpus counters.
func (s *Searcher) Stats(ctx context.Context) (Stats, error) {
	books, err := s.metadata.Size(ctx)
	if err != nil {
		return Stats{}, err
	}
	terms, err := s.postings.TermCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Books: books, Terms: terms}, nil
}
