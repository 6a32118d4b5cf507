// Package shard implements a single shard copy hosted on a node: a slice of
// an index's documents plus the local search execution over them.
//
// A shard copy is either a primary or a replica; the distinction matters
// only to the coordinator's routing, not to local behavior. Writes land on
// every copy of a shard, so a replica answers searches with the same data
// as its primary.
//
// Local search is deliberately simple: match_all over the copy's documents,
// hits ordered by document ID so results are deterministic regardless of
// insertion order.
package shard
