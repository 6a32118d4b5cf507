package coordinator

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
)

// IndexMetadata is the settings an index was created with. Shard and replica
// counts are fixed for the index lifetime.
type IndexMetadata struct {
	Name        string
	NumShards   int
	NumReplicas int
}

// copyAssignment pins one copy of a shard to a node. Assignments are created
// at index creation time and ordered primary first, so the router's candidate
// ordering (primary, then replicas) falls directly out of storage order.
type copyAssignment struct {
	NodeID  string
	Primary bool
}

type indexEntry struct {
	meta   IndexMetadata
	copies [][]copyAssignment // indexed by shard number, primary first
}

// ErrIndexExists is returned when creating an index that already exists.
var ErrIndexExists = errors.New("index already exists")

// ErrNoNodes is returned when creating an index on an empty cluster.
var ErrNoNodes = errors.New("no nodes available for shard allocation")

// IndexRegistry holds index metadata and shard-copy assignments. It is the
// cluster-metadata collaborator the router consults to resolve an index into
// shards and candidate copies.
type IndexRegistry struct {
	mu      sync.RWMutex
	indices map[string]*indexEntry
}

// NewIndexRegistry creates an empty index registry.
func NewIndexRegistry() *IndexRegistry {
	return &IndexRegistry{indices: make(map[string]*indexEntry)}
}

// CreateIndex registers an index and assigns its shard copies across the
// nodes of topo. Primaries are placed round-robin; each replica goes to the
// next distinct node, so no shard has two copies on one node. Replica copies
// beyond the node count are left unallocated, mirroring how a one-node
// cluster holds unassigned replicas.
func (r *IndexRegistry) CreateIndex(meta IndexMetadata, topo Topology) error {
	if meta.Name == "" {
		return errors.New("index name is required")
	}
	if meta.NumShards <= 0 {
		return fmt.Errorf("invalid number_of_shards %d, must be > 0", meta.NumShards)
	}
	if meta.NumReplicas < 0 {
		return fmt.Errorf("invalid number_of_replicas %d, must be >= 0", meta.NumReplicas)
	}
	if topo.Size() == 0 {
		return ErrNoNodes
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.indices[meta.Name]; ok {
		return fmt.Errorf("%w: [%s]", ErrIndexExists, meta.Name)
	}

	n := topo.Size()
	copies := make([][]copyAssignment, meta.NumShards)
	for shard := 0; shard < meta.NumShards; shard++ {
		assigned := []copyAssignment{{NodeID: topo.Nodes[shard%n].ID, Primary: true}}
		for rep := 1; rep <= meta.NumReplicas && rep < n; rep++ {
			assigned = append(assigned, copyAssignment{NodeID: topo.Nodes[(shard+rep)%n].ID})
		}
		copies[shard] = assigned
	}

	r.indices[meta.Name] = &indexEntry{meta: meta, copies: copies}
	return nil
}

// Exists reports whether an index is registered.
func (r *IndexRegistry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.indices[name]
	return ok
}

// Get returns the metadata for an index.
func (r *IndexRegistry) Get(name string) (IndexMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.indices[name]
	if !ok {
		return IndexMetadata{}, false
	}
	return e.meta, true
}

// ShardForDoc maps a document ID onto one of the index's shards using FNV-1a,
// so a document routes to the same shard on every request.
func (r *IndexRegistry) ShardForDoc(index, docID string) (int, error) {
	r.mu.RLock()
	e, ok := r.indices[index]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("no such index [%s]", index)
	}

	h := fnv.New32a()
	h.Write([]byte(docID))
	return int(h.Sum32() % uint32(e.meta.NumShards)), nil
}

// assignments returns the per-shard copy assignments for an index. The
// returned slices are owned by the registry; the router copies what it keeps.
func (r *IndexRegistry) assignments(name string) ([][]copyAssignment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.indices[name]
	if !ok {
		return nil, false
	}
	return e.copies, true
}
