package datalake

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/guten"
	"github.com/kadirpekel/gutensearch/pkg/logger"
)

func newBucketLake(t *testing.T, bucketSize int) *Lake {
	t.Helper()
	cfg := config.DatalakeConfig{
		Path:             t.TempDir(),
		Type:             config.DatalakeBucket,
		BucketSize:       bucketSize,
		TrackingFilename: "downloaded_books.txt",
	}
	lake, err := New(cfg, logger.GetLogger())
	require.NoError(t, err)
	return lake
}

func newTimestampLake(t *testing.T) *Lake {
	t.Helper()
	cfg := config.DatalakeConfig{
		Path:             t.TempDir(),
		Type:             config.DatalakeTimestamp,
		BucketSize:       1000,
		TrackingFilename: "downloaded_books.txt",
	}
	lake, err := New(cfg, logger.GetLogger())
	require.NoError(t, err)
	return lake
}

func TestSaveAndReadBack(t *testing.T) {
	lake := newBucketLake(t, 1000)

	dir, err := lake.Save(11, "Title: Alice", "white rabbit hole alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(lake.Root(), "bucket_0"), dir)

	header, err := lake.ReadHeader(11)
	require.NoError(t, err)
	assert.Equal(t, "Title: Alice", header)

	body, err := lake.ReadBody(11)
	require.NoError(t, err)
	assert.Equal(t, "white rabbit hole alice", body)

	assert.True(t, lake.IsPresent(11))
	assert.False(t, lake.IsPresent(12))
}

func TestBucketPlacement(t *testing.T) {
	lake := newBucketLake(t, 10)

	tests := []struct {
		id     guten.BookID
		bucket string
	}{
		{1, "bucket_0"},
		{9, "bucket_0"},
		{10, "bucket_1"},
		{1342, "bucket_134"},
	}
	for _, tt := range tests {
		dir, err := lake.Save(tt.id, "h", "b")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(lake.Root(), tt.bucket), dir)
	}
}

func TestTimestampPlacement(t *testing.T) {
	lake := newTimestampLake(t)

	dir, err := lake.Save(42, "header text", "body text")
	require.NoError(t, err)

	// Directory resolution goes through the tracking file for this layout.
	resolved, err := lake.Dir(42)
	require.NoError(t, err)
	assert.Equal(t, dir, resolved)

	body, err := lake.ReadBody(42)
	require.NoError(t, err)
	assert.Equal(t, "body text", body)

	// id|path format
	data, err := os.ReadFile(filepath.Join(lake.Root(), "downloaded_books.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "42|"+dir)
}

func TestReadMissingBook(t *testing.T) {
	lake := newBucketLake(t, 1000)

	_, err := lake.ReadHeader(99)
	assert.True(t, errors.Is(err, guten.ErrNotFound))

	_, err = lake.ReadBody(99)
	assert.True(t, errors.Is(err, guten.ErrNotFound))
}

func TestListIDsSortedAndCoalesced(t *testing.T) {
	lake := newBucketLake(t, 1000)

	for _, id := range []guten.BookID{30, 10, 20, 10, 30} {
		_, err := lake.Save(id, "h", "b")
		require.NoError(t, err)
	}

	ids, err := lake.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []guten.BookID{10, 20, 30}, ids)
}

func TestTrackingFileCoalescesForeignDuplicates(t *testing.T) {
	lake := newBucketLake(t, 1000)

	// Simulate a tracking file with duplicates and junk left by a crashed
	// writer; the next save must coalesce and sort it.
	track := filepath.Join(lake.Root(), "downloaded_books.txt")
	require.NoError(t, os.WriteFile(track, []byte("7\n7\nnot-a-number\n3\n"), 0644))

	_, err := lake.Save(5, "h", "b")
	require.NoError(t, err)

	data, err := os.ReadFile(track)
	require.NoError(t, err)
	assert.Equal(t, "3\n5\n7\n", string(data))
}

func TestScanIDs(t *testing.T) {
	lake := newBucketLake(t, 10)

	for _, id := range []guten.BookID{11, 1342, 5} {
		_, err := lake.Save(id, "h", "b")
		require.NoError(t, err)
	}

	// Remove the tracking file to force disaster recovery via scan.
	require.NoError(t, os.Remove(filepath.Join(lake.Root(), "downloaded_books.txt")))

	ids, err := lake.ScanIDs()
	require.NoError(t, err)
	assert.Equal(t, []guten.BookID{5, 11, 1342}, ids)

	listed, err := lake.ListIDs()
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestConcurrentSaves(t *testing.T) {
	lake := newBucketLake(t, 1000)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id guten.BookID) {
			defer wg.Done()
			_, err := lake.Save(id, "h", "b")
			assert.NoError(t, err)
		}(guten.BookID(i))
	}
	wg.Wait()

	ids, err := lake.ListIDs()
	require.NoError(t, err)
	require.Len(t, ids, 20)
	for i, id := range ids {
		assert.Equal(t, guten.BookID(i+1), id)
	}
}
