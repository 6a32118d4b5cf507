// Package coordinator implements the control plane of a strata cluster: it
// tracks which nodes exist and what version each one runs, maps indices onto
// shard copies, and drives distributed searches across those copies.
//
// # Architecture
//
// The coordinator is organized around a handful of cooperating pieces:
//
//	NodeRegistry ──> Topology snapshots (immutable, generation-numbered)
//	      │
//	IndexRegistry ──> shard counts and copy placement per index
//	      │
//	ShardRouter ──> ShardRoute per shard (primary first, then replicas)
//	      │
//	SearchCoordinator ──> validate, gate, fan out, reduce
//	      │
//	HTTPExecutor ──> per-node circuit-broken HTTP to /shards/search
//
// A search request flows top to bottom. The registry hands out an immutable
// Topology snapshot so every decision within one request observes a single
// consistent view of the cluster, even while nodes register and fail
// concurrently. The router expands the target index into one route per
// shard; the coordinator applies version gating per copy, dispatches the
// surviving copies with bounded concurrency, and reduces the outcomes into
// either a merged response or a search phase failure with a deterministic
// cause.
//
// # Version gating
//
// During a rolling upgrade a cluster holds nodes of mixed versions. Clients
// may pin a search to nodes at or above a minimum version via the
// min_compatible_shard_node option. Gating happens on the coordinator,
// before any network dispatch: a copy on a too-old node is skipped locally
// and the search falls through to the shard's other copies. If no copy of
// some shard clears the bar the whole search fails with a version mismatch
// cause, never a partial result.
//
// # Health monitoring
//
// The HealthMonitor probes every registered node's /info endpoint on an
// interval. Probes double as version discovery: a node that restarts with a
// newer build is re-registered at its new version without any client
// involvement. Nodes failing three consecutive probes are evicted so routes
// stop including their copies.
package coordinator
