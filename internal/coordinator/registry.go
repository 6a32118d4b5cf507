// Package coordinator implements the control plane of the Strata search
// cluster. See doc.go for complete package documentation.
package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/dreamware/strata/internal/cluster"
)

// Topology is an immutable snapshot of cluster membership taken at the start
// of a search. A search never observes membership or version changes that
// happen mid-flight: updates produce a new snapshot rather than mutating the
// one already handed out.
type Topology struct {
	// Gen increases on every membership or version change. Two snapshots
	// with equal Gen are identical.
	Gen uint64

	// Nodes is sorted by node ID so per-snapshot iteration order is stable.
	Nodes []cluster.NodeInfo
}

// Size returns the number of nodes in the snapshot.
func (t Topology) Size() int { return len(t.Nodes) }

// NodeByID returns the descriptor for a node, if it is part of the snapshot.
func (t Topology) NodeByID(id string) (cluster.NodeInfo, bool) {
	idx := slices.IndexFunc(t.Nodes, func(n cluster.NodeInfo) bool { return n.ID == id })
	if idx < 0 {
		return cluster.NodeInfo{}, false
	}
	return t.Nodes[idx], true
}

// OldestVersion returns the lowest software version among the snapshot's
// nodes, or false when the snapshot is empty. The oldest node decides
// whether version-gating options are understood cluster-wide.
func (t Topology) OldestVersion() (*semver.Version, bool) {
	var oldest *semver.Version
	for _, n := range t.Nodes {
		v, err := n.SemVer()
		if err != nil {
			// Registry validates versions on entry; an unparsable one
			// here means the snapshot was built by hand in a test.
			continue
		}
		if oldest == nil || v.LessThan(oldest) {
			oldest = v
		}
	}
	return oldest, oldest != nil
}

// NodeRegistry tracks the live nodes of the cluster and the software version
// each one advertises. It is read by every search and written only by the
// membership path (registration, health-driven removal), so reads return a
// cached immutable Topology snapshot and writers rebuild it.
type NodeRegistry struct {
	mu       sync.RWMutex
	gen      uint64
	nodes    map[string]cluster.NodeInfo
	snapshot Topology
	log      *logrus.Logger
}

// NewNodeRegistry creates an empty registry.
func NewNodeRegistry(log *logrus.Logger) *NodeRegistry {
	if log == nil {
		log = logrus.New()
	}
	return &NodeRegistry{
		nodes: make(map[string]cluster.NodeInfo),
		log:   log,
	}
}

// Register adds a node or refreshes an existing one. Re-registering with a
// new version (a restarted, upgraded node) replaces the old descriptor and
// bumps the snapshot generation. The advertised version must parse as a
// semantic version.
func (r *NodeRegistry) Register(n cluster.NodeInfo) error {
	if n.ID == "" || n.Addr == "" {
		return errors.New("node ID and address are required")
	}
	if _, err := n.SemVer(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.nodes[n.ID]; ok && prev == n {
		return nil
	}
	r.nodes[n.ID] = n
	r.rebuildLocked()

	r.log.WithFields(logrus.Fields{
		"node":    n.ID,
		"addr":    n.Addr,
		"version": n.Version,
	}).Info("node registered")
	return nil
}

// Remove drops a node from the registry. Removing an unknown node is a no-op.
func (r *NodeRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[id]; !ok {
		return
	}
	delete(r.nodes, id)
	r.rebuildLocked()

	r.log.WithField("node", id).Info("node removed")
}

// Snapshot returns the current immutable topology. The returned value is
// shared between callers and must not be mutated.
func (r *NodeRegistry) Snapshot() Topology {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Len returns the number of registered nodes.
func (r *NodeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// rebuildLocked rebuilds the cached snapshot. Caller holds the write lock.
func (r *NodeRegistry) rebuildLocked() {
	nodes := make([]cluster.NodeInfo, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b cluster.NodeInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	r.gen++
	r.snapshot = Topology{Gen: r.gen, Nodes: nodes}
}

// String implements fmt.Stringer for log output.
func (t Topology) String() string {
	return fmt.Sprintf("topology(gen=%d, nodes=%d)", t.Gen, len(t.Nodes))
}
