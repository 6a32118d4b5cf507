package shard

import (
	"fmt"
	"testing"

	"github.com/dreamware/strata/internal/search"
	"github.com/dreamware/strata/internal/storage"
)

func newTestShard(t *testing.T) *Shard {
	t.Helper()
	store, err := storage.OpenBadger("")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	s := New("idx", 0, true, store)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close shard: %v", err)
		}
	})
	return s
}

// TestPutAndSearch verifies the basic index-then-search cycle with sources.
func TestPutAndSearch(t *testing.T) {
	s := newTestShard(t)

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("doc-%d", i)
		if err := s.PutDoc(id, []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("Failed to put %s: %v", id, err)
		}
	}

	result, err := s.Search(search.ShardRequest{Index: "idx", Shard: 0, IncludeSource: true, Size: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if result.Shard != 0 {
		t.Errorf("Expected shard 0 in result, got %d", result.Shard)
	}
	if result.Total != 4 {
		t.Errorf("Expected total 4, got %d", result.Total)
	}
	if len(result.Hits) != 4 {
		t.Fatalf("Expected 4 hits, got %d", len(result.Hits))
	}

	// Hits come back in document ID order with sources and unit scores.
	for i, hit := range result.Hits {
		wantID := fmt.Sprintf("doc-%d", i)
		if hit.ID != wantID {
			t.Errorf("Hit %d: expected ID %s, got %s", i, wantID, hit.ID)
		}
		if hit.Index != "idx" {
			t.Errorf("Hit %d: expected index idx, got %s", i, hit.Index)
		}
		if hit.Score != 1.0 {
			t.Errorf("Hit %d: expected score 1.0, got %f", i, hit.Score)
		}
		if len(hit.Source) == 0 {
			t.Errorf("Hit %d: expected source", i)
		}
	}
}

// TestSearchSizeAndSource verifies size truncation and source suppression.
// Total still counts every document, not just the returned page.
func TestSearchSizeAndSource(t *testing.T) {
	s := newTestShard(t)

	for i := 0; i < 6; i++ {
		if err := s.PutDoc(fmt.Sprintf("doc-%d", i), []byte(`{}`)); err != nil {
			t.Fatalf("Failed to put doc: %v", err)
		}
	}

	result, err := s.Search(search.ShardRequest{Index: "idx", Shard: 0, IncludeSource: false, Size: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if result.Total != 6 {
		t.Errorf("Expected total 6, got %d", result.Total)
	}
	if len(result.Hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(result.Hits))
	}
	for i, hit := range result.Hits {
		if hit.Source != nil {
			t.Errorf("Hit %d: expected no source, got %s", i, hit.Source)
		}
	}
}

// TestSearchEmptyShard verifies an empty shard answers cleanly.
func TestSearchEmptyShard(t *testing.T) {
	s := newTestShard(t)

	result, err := s.Search(search.ShardRequest{Index: "idx", Shard: 0, Size: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.Total != 0 || len(result.Hits) != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}

// TestPutDocValidation verifies the empty-ID rejection.
func TestPutDocValidation(t *testing.T) {
	s := newTestShard(t)

	if err := s.PutDoc("", []byte(`{}`)); err == nil {
		t.Error("Expected error for empty document ID")
	}
}

// TestStatsAndDescribe verifies counters and the node-level listing shape.
func TestStatsAndDescribe(t *testing.T) {
	s := newTestShard(t)

	if err := s.PutDoc("doc-1", []byte(`{}`)); err != nil {
		t.Fatalf("Failed to put doc: %v", err)
	}
	if _, err := s.Search(search.ShardRequest{Index: "idx", Shard: 0, Size: 10}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Docs != 1 || stats.Writes != 1 || stats.Searches != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	info, err := s.Describe()
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if info.Index != "idx" || info.Shard != 0 || !info.Primary || info.Docs != 1 {
		t.Errorf("Unexpected info: %+v", info)
	}
}
