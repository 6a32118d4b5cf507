package shard

import (
	"fmt"
	"sync/atomic"

	"github.com/dreamware/strata/internal/search"
	"github.com/dreamware/strata/internal/storage"
)

// Stats counts operations served by one shard copy.
type Stats struct {
	Docs     int   `json:"docs"`
	Writes   int64 `json:"writes"`
	Searches int64 `json:"searches"`
}

// Info identifies a shard copy in node-level listings.
type Info struct {
	Index   string `json:"index"`
	Shard   int    `json:"shard"`
	Primary bool   `json:"primary"`
	Docs    int    `json:"docs"`
}

// Shard is one copy of one shard of an index, backed by its own document
// store. Safe for concurrent use; the store provides the synchronization.
type Shard struct {
	Index   string
	ID      int
	Primary bool

	store    storage.DocStore
	writes   atomic.Int64
	searches atomic.Int64
}

// New creates a shard copy over the given store.
func New(index string, id int, primary bool, store storage.DocStore) *Shard {
	return &Shard{
		Index:   index,
		ID:      id,
		Primary: primary,
		store:   store,
	}
}

// PutDoc stores a document on this copy, replacing any previous version.
func (s *Shard) PutDoc(id string, doc []byte) error {
	if id == "" {
		return fmt.Errorf("document ID must not be empty")
	}
	if err := s.store.Put(id, doc); err != nil {
		return fmt.Errorf("put doc [%s] on [%s][%d]: %w", id, s.Index, s.ID, err)
	}
	s.writes.Add(1)
	return nil
}

// GetDoc returns one document, or storage.ErrDocNotFound.
func (s *Shard) GetDoc(id string) ([]byte, error) {
	return s.store.Get(id)
}

// Search executes a shard-level search on this copy. Only match_all is
// supported, so the hit set is every stored document; hits come back in
// document ID order, truncated to the request size, with sources attached
// when the request asks for them.
func (s *Shard) Search(req search.ShardRequest) (*search.ShardResult, error) {
	s.searches.Add(1)

	ids, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("list docs on [%s][%d]: %w", s.Index, s.ID, err)
	}

	n := req.Size
	if n > len(ids) {
		n = len(ids)
	}

	hits := make([]search.Hit, 0, n)
	for _, id := range ids[:n] {
		hit := search.Hit{
			Index: s.Index,
			ID:    id,
			Score: 1.0,
		}
		if req.IncludeSource {
			doc, err := s.store.Get(id)
			if err != nil {
				return nil, fmt.Errorf("get doc [%s] on [%s][%d]: %w", id, s.Index, s.ID, err)
			}
			hit.Source = doc
		}
		hits = append(hits, hit)
	}

	return &search.ShardResult{
		Shard: s.ID,
		Total: len(ids),
		Hits:  hits,
	}, nil
}

// Stats returns a snapshot of this copy's counters.
func (s *Shard) Stats() (Stats, error) {
	docs, err := s.store.Count()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Docs:     docs,
		Writes:   s.writes.Load(),
		Searches: s.searches.Load(),
	}, nil
}

// Describe returns the copy's identity for node-level shard listings.
func (s *Shard) Describe() (Info, error) {
	docs, err := s.store.Count()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Index:   s.Index,
		Shard:   s.ID,
		Primary: s.Primary,
		Docs:    docs,
	}, nil
}

// Close releases the underlying store.
func (s *Shard) Close() error {
	return s.store.Close()
}
