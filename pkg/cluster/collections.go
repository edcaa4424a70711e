package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/gutensearch/pkg/guten"
)

// MetadataStore is the books metadata map with typed accessors. Keys are the
// decimal book id, values the JSON-encoded metadata record.
type MetadataStore struct {
	m Map
}

// NewMetadataStore wraps the named distributed map.
func NewMetadataStore(m Map) *MetadataStore {
	return &MetadataStore{m: m}
}

func (s *MetadataStore) Get(ctx context.Context, id guten.BookID) (guten.Metadata, bool, error) {
	raw, ok, err := s.m.Get(ctx, id.String())
	if err != nil || !ok {
		return guten.Metadata{}, false, err
	}
	var md guten.Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return guten.Metadata{}, false, fmt.Errorf("decoding metadata for book %d: %w", id, err)
	}
	return md, true, nil
}

// GetAll loads the metadata for the given ids in one pass. Ids without a
// record are absent from the result.
func (s *MetadataStore) GetAll(ctx context.Context, ids []guten.BookID) (map[guten.BookID]guten.Metadata, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	entries, err := s.m.GetAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[guten.BookID]guten.Metadata, len(entries))
	for k, raw := range entries {
		id, err := guten.ParseBookID(k)
		if err != nil {
			continue
		}
		var md guten.Metadata
		if err := json.Unmarshal(raw, &md); err != nil {
			return nil, fmt.Errorf("decoding metadata for book %s: %w", k, err)
		}
		out[id] = md
	}
	return out, nil
}

func (s *MetadataStore) Put(ctx context.Context, md guten.Metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("encoding metadata for book %d: %w", md.BookID, err)
	}
	return s.m.Put(ctx, md.BookID.String(), raw)
}

func (s *MetadataStore) Contains(ctx context.Context, id guten.BookID) (bool, error) {
	return s.m.ContainsKey(ctx, id.String())
}

func (s *MetadataStore) Size(ctx context.Context) (int, error) {
	return s.m.Size(ctx)
}

// List returns up to limit metadata records in partition order. limit <= 0
// returns everything.
func (s *MetadataStore) List(ctx context.Context, limit int) ([]guten.Metadata, error) {
	values, err := s.m.Values(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]guten.Metadata, 0, len(values))
	for _, raw := range values {
		var md guten.Metadata
		if err := json.Unmarshal(raw, &md); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
		out = append(out, md)
	}
	return out, nil
}

func (s *MetadataStore) Clear(ctx context.Context) error {
	return s.m.Clear(ctx)
}

// Postings is the inverted index multimap with typed accessors: term to the
// set of book ids containing it.
type Postings struct {
	mm MultiMap
}

// NewPostings wraps the named distributed multimap.
func NewPostings(mm MultiMap) *Postings {
	return &Postings{mm: mm}
}

// Get returns the book ids posted under term, ascending.
func (p *Postings) Get(ctx context.Context, term string) ([]guten.BookID, error) {
	members, err := p.mm.Get(ctx, term)
	if err != nil {
		return nil, err
	}
	ids := make([]guten.BookID, len(members))
	for i, m := range members {
		ids[i] = guten.BookID(m)
	}
	return ids, nil
}

func (p *Postings) Put(ctx context.Context, term string, id guten.BookID) error {
	return p.mm.Put(ctx, term, int(id))
}

func (p *Postings) Contains(ctx context.Context, term string, id guten.BookID) (bool, error) {
	return p.mm.ContainsEntry(ctx, term, int(id))
}

// TermCount returns the number of distinct indexed terms.
func (p *Postings) TermCount(ctx context.Context) (int, error) {
	return p.mm.KeyCount(ctx)
}

func (p *Postings) Terms(ctx context.Context) ([]string, error) {
	return p.mm.KeySet(ctx)
}

func (p *Postings) Clear(ctx context.Context) error {
	return p.mm.Clear(ctx)
}
