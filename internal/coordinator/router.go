package coordinator

import (
	"errors"
	"fmt"

	"github.com/dreamware/strata/internal/cluster"
)

// ShardID identifies one logical shard of an index.
type ShardID struct {
	Index string
	Shard int
}

func (s ShardID) String() string {
	return fmt.Sprintf("[%s][%d]", s.Index, s.Shard)
}

// ShardCopy is one candidate copy of a shard: the shard it belongs to, the
// node currently hosting it, and whether it is the primary. Copies are
// computed per search from the topology snapshot and discarded afterwards.
type ShardCopy struct {
	ID      ShardID
	Node    cluster.NodeInfo
	Primary bool
}

// ShardRoute is a shard together with its ordered candidate copies. The
// primary comes first, then replicas in assignment order; the search path
// walks this list as a fallback chain, so the ordering decides which copy a
// shard query lands on when earlier candidates are rejected or fail.
type ShardRoute struct {
	ID     ShardID
	Copies []ShardCopy
}

// Routing failure categories.
var (
	ErrIndexNotFound   = errors.New("index not found")
	ErrNoAvailableCopy = errors.New("no available shard copy")
)

// RoutingError reports why an index could not be resolved into dispatchable
// shard routes. It wraps one of the routing sentinel errors for errors.Is.
type RoutingError struct {
	Index string
	Shard int // -1 for index-level failures
	Err   error
}

func (e *RoutingError) Error() string {
	if e.Shard < 0 {
		return fmt.Sprintf("no such index [%s]", e.Index)
	}
	return fmt.Sprintf("no available copy for shard [%s][%d]", e.Index, e.Shard)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// ShardRouter resolves an index into its shards and, for each shard, the
// ordered candidate copies that may serve it under the given topology.
type ShardRouter struct {
	indices *IndexRegistry
}

// NewShardRouter creates a router over the given index registry.
func NewShardRouter(indices *IndexRegistry) *ShardRouter {
	return &ShardRouter{indices: indices}
}

// Route returns one ShardRoute per shard of the index, ordered by shard
// number. Copies assigned to nodes that have left the topology are dropped;
// a shard left with zero live copies fails the whole route with
// ErrNoAvailableCopy, because a search may not silently omit a shard.
func (r *ShardRouter) Route(index string, topo Topology) ([]ShardRoute, error) {
	assignments, ok := r.indices.assignments(index)
	if !ok {
		return nil, &RoutingError{Index: index, Shard: -1, Err: ErrIndexNotFound}
	}

	routes := make([]ShardRoute, 0, len(assignments))
	for shard, assigned := range assignments {
		route, err := buildRoute(index, shard, assigned, topo)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// RouteShard resolves the candidate copies for a single shard, used by the
// document write path.
func (r *ShardRouter) RouteShard(index string, shard int, topo Topology) (ShardRoute, error) {
	assignments, ok := r.indices.assignments(index)
	if !ok {
		return ShardRoute{}, &RoutingError{Index: index, Shard: -1, Err: ErrIndexNotFound}
	}
	if shard < 0 || shard >= len(assignments) {
		return ShardRoute{}, &RoutingError{Index: index, Shard: shard, Err: ErrNoAvailableCopy}
	}
	return buildRoute(index, shard, assignments[shard], topo)
}

func buildRoute(index string, shard int, assigned []copyAssignment, topo Topology) (ShardRoute, error) {
	id := ShardID{Index: index, Shard: shard}
	copies := make([]ShardCopy, 0, len(assigned))
	for _, a := range assigned {
		node, live := topo.NodeByID(a.NodeID)
		if !live {
			continue
		}
		copies = append(copies, ShardCopy{ID: id, Node: node, Primary: a.Primary})
	}
	if len(copies) == 0 {
		return ShardRoute{}, &RoutingError{Index: index, Shard: shard, Err: ErrNoAvailableCopy}
	}
	return ShardRoute{ID: id, Copies: copies}, nil
}
