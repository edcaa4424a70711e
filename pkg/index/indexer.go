package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kadirpekel/gutensearch/pkg/cluster"
	"github.com/kadirpekel/gutensearch/pkg/datalake"
	"github.com/kadirpekel/gutensearch/pkg/guten"
	"github.com/kadirpekel/gutensearch/pkg/gutenberg"
)

// Indexer reads stored books from the local datalake and publishes their
// terms and metadata into the distributed collections.
//
// Indexing is idempotent: the metadata record is written last, so a book is
// visible to searches only once all its postings are in place, and a crashed
// or repeated indexing attempt converges to the same state. Writers to one
// term partition serialize through a fixed table of cluster-wide shard
// locks.
type Indexer struct {
	lake     datalake.Store
	metadata *cluster.MetadataStore
	postings *cluster.Postings
	locks    cluster.LockService
	shards   int
	log      *slog.Logger

	mu         sync.Mutex
	lastUpdate time.Time
}

// New wires an indexer over the local datalake and the cluster collections.
func New(lake datalake.Store, metadata *cluster.MetadataStore, postings *cluster.Postings,
	locks cluster.LockService, shards int, log *slog.Logger) *Indexer {
	if shards <= 0 {
		shards = 1
	}
	return &Indexer{
		lake:     lake,
		metadata: metadata,
		postings: postings,
		locks:    locks,
		shards:   shards,
		log:      log,
	}
}

// Result reports what IndexBook did for one identifier.
type Result struct {
	BookID  guten.BookID `json:"bookId"`
	Indexed bool         `json:"indexed"`
	Terms   int          `json:"terms,omitempty"`
}

// shardOf maps a term to its lock shard.
func (ix *Indexer) shardOf(term string) int {
	return int(xxhash.Sum64String(term) % uint64(ix.shards))
}

func shardLockName(shard int) string {
	return fmt.Sprintf("lock:shard:%d", shard)
}

// IndexBook indexes one stored book. A book whose metadata record already
// exists is skipped. Returns guten.ErrNotFound when the book is not in the
// local datalake.
func (ix *Indexer) IndexBook(ctx context.Context, id guten.BookID) (Result, error) {
	already, err := ix.metadata.Contains(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("checking index state for book %d: %w", id, err)
	}
	if already {
		ix.log.Debug("book already indexed", "bookId", id)
		return Result{BookID: id, Indexed: false}, nil
	}

	header, err := ix.lake.ReadHeader(id)
	if err != nil {
		return Result{}, err
	}
	body, err := ix.lake.ReadBody(id)
	if err != nil {
		return Result{}, err
	}

	dir, err := ix.lake.Dir(id)
	if err != nil {
		return Result{}, err
	}
	md := gutenberg.ExtractMetadata(id, header, dir)

	terms := Tokenize(body)
	if err := ix.publishTerms(ctx, id, terms); err != nil {
		return Result{}, err
	}

	// Metadata last: its presence marks the book fully indexed.
	if err := ix.metadata.Put(ctx, md); err != nil {
		return Result{}, fmt.Errorf("publishing metadata for book %d: %w", id, err)
	}

	ix.mu.Lock()
	ix.lastUpdate = time.Now()
	ix.mu.Unlock()

	ix.log.Info("book indexed", "bookId", id, "terms", len(terms), "title", md.Title)
	return Result{BookID: id, Indexed: true, Terms: len(terms)}, nil
}

// publishTerms writes the postings shard by shard, holding the shard lock
// across each batch. Shards are taken in ascending order so concurrent
// indexers never deadlock on each other's lock sets.
func (ix *Indexer) publishTerms(ctx context.Context, id guten.BookID, terms []string) error {
	byShard := map[int][]string{}
	for _, term := range terms {
		s := ix.shardOf(term)
		byShard[s] = append(byShard[s], term)
	}
	shards := make([]int, 0, len(byShard))
	for s := range byShard {
		shards = append(shards, s)
	}
	sort.Ints(shards)

	for _, s := range shards {
		if err := ix.publishShard(ctx, id, s, byShard[s]); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) publishShard(ctx context.Context, id guten.BookID, shard int, terms []string) error {
	release, err := ix.locks.Lock(ctx, shardLockName(shard))
	if err != nil {
		return fmt.Errorf("acquiring shard %d for book %d: %w", shard, id, err)
	}
	defer func() {
		if err := release(); err != nil {
			ix.log.Warn("shard lock release failed", "shard", shard, "error", err)
		}
	}()

	for _, term := range terms {
		if err := ix.postings.Put(ctx, term, id); err != nil {
			return fmt.Errorf("publishing term %q for book %d: %w", term, id, err)
		}
	}
	return nil
}

// Report summarizes a rebuild pass.
type Report struct {
	Indexed int            `json:"indexed"`
	Skipped int            `json:"skipped"`
	Failed  int            `json:"failed"`
	Errors  []string       `json:"errors,omitempty"`
	IDs     []guten.BookID `json:"-"`
}

// Rebuild clears the cluster collections and indexes every book the local
// datalake holds. The tracking file drives the pass; a missing or unusable
// tracking file falls back to a filesystem scan. Individual book failures
// are collected, not fatal.
func (ix *Indexer) Rebuild(ctx context.Context) (Report, error) {
	if err := ix.metadata.Clear(ctx); err != nil {
		return Report{}, fmt.Errorf("clearing metadata: %w", err)
	}
	if err := ix.postings.Clear(ctx); err != nil {
		return Report{}, fmt.Errorf("clearing postings: %w", err)
	}

	ids, err := ix.lake.ListIDs()
	if err != nil || len(ids) == 0 {
		ix.log.Warn("tracking file unusable or empty, scanning datalake", "error", err)
		ids, err = ix.lake.ScanIDs()
		if err != nil {
			return Report{}, fmt.Errorf("recovering identifiers: %w", err)
		}
	}
	return ix.indexAll(ctx, ids), nil
}

func (ix *Indexer) indexAll(ctx context.Context, ids []guten.BookID) Report {
	report := Report{IDs: ids}
	for _, id := range ids {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, ctx.Err().Error())
			return report
		}
		res, err := ix.IndexBook(ctx, id)
		switch {
		case err != nil:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("book %d: %v", id, err))
			ix.log.Error("rebuild failed for book", "bookId", id, "error", err)
		case res.Indexed:
			report.Indexed++
		default:
			report.Skipped++
		}
	}
	return report
}

// RecoverIfEmpty reindexes the local datalake when the cluster index has no
// books. Run at indexer startup so a full-cluster restart does not come back
// empty while the books are still on disk. Unlike Rebuild it never clears:
// several nodes recovering at once stay safe through the per-book
// idempotency check, and identifiers come from a filesystem scan so a lost
// tracking file cannot block recovery.
func (ix *Indexer) RecoverIfEmpty(ctx context.Context) (Report, bool, error) {
	size, err := ix.metadata.Size(ctx)
	if err != nil {
		return Report{}, false, fmt.Errorf("checking index size: %w", err)
	}
	if size > 0 {
		return Report{}, false, nil
	}
	ix.log.Info("cluster index is empty, rebuilding from local datalake")
	ids, err := ix.lake.ScanIDs()
	if err != nil {
		return Report{}, true, fmt.Errorf("scanning datalake: %w", err)
	}
	return ix.indexAll(ctx, ids), true, nil
}

// Status describes the current index extent. LastUpdate is when this node
// last indexed a book; zero if it has not indexed anything since starting.
type Status struct {
	Books      int       `json:"books_indexed"`
	Terms      int       `json:"unique_words"`
	LastUpdate time.Time `json:"last_update,omitzero"`
}

// Status returns cluster-wide index counters.
func (ix *Indexer) Status(ctx context.Context) (Status, error) {
	books, err := ix.metadata.Size(ctx)
	if err != nil {
		return Status{}, err
	}
	terms, err := ix.postings.TermCount(ctx)
	if err != nil {
		return Status{}, err
	}
	ix.mu.Lock()
	last := ix.lastUpdate
	ix.mu.Unlock()
	return Status{Books: books, Terms: terms, LastUpdate: last}, nil
}
