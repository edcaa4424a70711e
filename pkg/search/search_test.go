package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/gutensearch/pkg/cluster"
	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/guten"
	"github.com/kadirpekel/gutensearch/pkg/logger"
)

type corpus struct {
	metadata *cluster.MetadataStore
	postings *cluster.Postings
}

func newTestSearcher(t *testing.T) (*Searcher, corpus) {
	t.Helper()

	node, err := cluster.NewNode(config.ClusterConfig{
		Members:       "127.0.0.1:7600",
		CurrentNodeIP: "127.0.0.1",
		NodePort:      7600,
	}, logger.GetLogger())
	require.NoError(t, err)

	c := corpus{
		metadata: cluster.NewMetadataStore(node.Client().Map("books-metadata")),
		postings: cluster.NewPostings(node.Client().MultiMap("inverted-index")),
	}
	cfg := config.SearchConfig{MaxResults: 100, DefaultLimit: 10}
	return New(c.metadata, c.postings, cfg, logger.GetLogger()), c
}

func (c corpus) add(t *testing.T, md guten.Metadata, terms ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.metadata.Put(ctx, md))
	for _, term := range terms {
		require.NoError(t, c.postings.Put(ctx, term, md.BookID))
	}
}

func TestSearchScoresTitleOverAuthorOverPosting(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSearcher(t)

	c.add(t, guten.Metadata{BookID: 1, Title: "The Whale Hunt", Author: "A. Nobody", Language: "en"}, "whale")
	c.add(t, guten.Metadata{BookID: 2, Title: "Ocean Tales", Author: "W. Whale", Language: "en"}, "whale")
	c.add(t, guten.Metadata{BookID: 3, Title: "Ocean Tales II", Author: "A. Nobody", Language: "en"}, "whale")

	results, _, err := s.Search(ctx, Query{Text: "whale", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, guten.BookID(1), results[0].BookID)
	assert.Equal(t, 11, results[0].Score, "posting plus title")
	assert.Equal(t, guten.BookID(2), results[1].BookID)
	assert.Equal(t, 6, results[1].Score, "posting plus author")
	assert.Equal(t, guten.BookID(3), results[2].BookID)
	assert.Equal(t, 1, results[2].Score, "posting only")
}

func TestSearchMultiTokenScoresAdd(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSearcher(t)

	c.add(t, guten.Metadata{BookID: 11, Title: "Alice in Wonderland", Author: "Lewis Carroll", Language: "en"},
		"alice", "rabbit")

	results, _, err := s.Search(ctx, Query{Text: "alice rabbit", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	// alice: posting + title; rabbit: posting.
	assert.Equal(t, 13, results[0].Score)
}

func TestSearchTiesBreakTowardLowerBookID(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSearcher(t)

	c.add(t, guten.Metadata{BookID: 300, Title: "B", Author: "X", Language: "en"}, "storm")
	c.add(t, guten.Metadata{BookID: 7, Title: "A", Author: "Y", Language: "en"}, "storm")

	results, _, err := s.Search(ctx, Query{Text: "storm", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, guten.BookID(7), results[0].BookID)
	assert.Equal(t, guten.BookID(300), results[1].BookID)
}

func TestSearchFilters(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSearcher(t)

	c.add(t, guten.Metadata{BookID: 1, Title: "T1", Author: "Jane Austen", Language: "en", Year: 1998}, "love")
	c.add(t, guten.Metadata{BookID: 2, Title: "T2", Author: "Victor Hugo", Language: "fr", Year: 1998}, "love")
	c.add(t, guten.Metadata{BookID: 3, Title: "T3", Author: "Jane Austen", Language: "en", Year: 2003}, "love")

	results, _, err := s.Search(ctx, Query{Text: "love", Author: "austen", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, _, err = s.Search(ctx, Query{Text: "love", Language: "FR", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, guten.BookID(2), results[0].BookID)

	results, _, err = s.Search(ctx, Query{Text: "love", Year: 2003, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, guten.BookID(3), results[0].BookID)

	results, _, err = s.Search(ctx, Query{Text: "love", Author: "austen", Language: "en", Year: 1998, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, guten.BookID(1), results[0].BookID)
}

func TestSearchLimitAndCap(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSearcher(t)

	for id := 1; id <= 8; id++ {
		c.add(t, guten.Metadata{BookID: guten.BookID(id), Title: "T", Author: "A", Language: "en"}, "common")
	}

	results, total, err := s.Search(ctx, Query{Text: "common", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 8, total, "total counts matches before the limit")

	results, _, err = s.Search(ctx, Query{Text: "common", Limit: 0})
	require.NoError(t, err)
	assert.Empty(t, results, "explicit zero limit returns nothing")

	results, _, err = s.Search(ctx, Query{Text: "common", Limit: 5000})
	require.NoError(t, err)
	assert.Len(t, results, 8, "limit caps at max_results, not below corpus size")
}

func TestSearchNoMatches(t *testing.T) {
	s, c := newTestSearcher(t)
	c.add(t, guten.Metadata{BookID: 1, Title: "T", Author: "A", Language: "en"}, "something")

	results, _, err := s.Search(context.Background(), Query{Text: "nothing here", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, _, err = s.Search(context.Background(), Query{Text: "   ", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSkipsCandidatesWithoutMetadata(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSearcher(t)

	// Posting published, metadata not yet: an indexing pass in flight.
	require.NoError(t, c.postings.Put(ctx, "ghost", 99))

	results, _, err := s.Search(ctx, Query{Text: "ghost", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestListBooksSortedByID(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSearcher(t)

	c.add(t, guten.Metadata{BookID: 20, Title: "B", Author: "A", Language: "en"})
	c.add(t, guten.Metadata{BookID: 3, Title: "A", Author: "A", Language: "en"})

	books, total, err := s.ListBooks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, 2, total)
	assert.Equal(t, guten.BookID(3), books[0].BookID)
	assert.Equal(t, guten.BookID(20), books[1].BookID)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSearcher(t)

	c.add(t, guten.Metadata{BookID: 1, Title: "T", Author: "A", Language: "en"}, "one", "two")

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Books)
	assert.Equal(t, 2, stats.Terms)
}
