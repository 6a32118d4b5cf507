// Package cluster provides the shared vocabulary of the Strata search cluster:
// node identity and version metadata, registration payloads, and the HTTP/JSON
// helpers every component uses to talk to its peers.
//
// # Topology
//
// Strata runs a coordinator-based topology. A single coordinator tracks the
// set of live nodes, routes index and search traffic onto shard copies hosted
// by those nodes, and enforces search admission control during rolling
// upgrades:
//
//	              ┌──────────────┐
//	              │ Coordinator  │
//	              │              │
//	              │ - Registry   │
//	              │ - Router     │
//	              │ - Gate       │
//	              └──────┬───────┘
//	                     │
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│ Node v8.1 │ │ Node v8.1 │ │ Node v7.17│
//	│ shards    │ │ shards    │ │ shards    │
//	└───────────┘ └───────────┘ └───────────┘
//
// # Versions
//
// Every NodeInfo carries a semantic version. A rolling upgrade leaves the
// cluster mixed (some 7.x, some 8.x nodes); searches that set
// min_compatible_shard_node use these versions to refuse shard copies that
// are too old. Version ordering follows semver, including pre-release
// builds (8.0.0-SNAPSHOT sorts before 8.0.0), so upgrade candidates gate
// consistently across the cluster.
//
// # Communication
//
// All inter-node communication is HTTP/JSON with a 5 second client timeout:
//
// Node registration (POST /register):
//   - Nodes announce their ID, public address, and software version
//   - Re-registration after a restart refreshes the advertised version
//
// Health checking (GET /health, GET /info):
//   - The coordinator probes nodes periodically
//   - /info returns the node's NodeInfo so version changes are observed
//
// Shard dispatch (POST /shards/search, PUT /shards/docs):
//   - The coordinator forwards per-shard work to the owning node
//
// Non-2xx responses surface as *StatusError carrying the remote body, which
// the search layer uses to aggregate per-shard failures.
package cluster
